package webhooks

import (
	"context"
	"sync"

	"github.com/goliatone/go-fanout/core"
)

type capturedEntry struct {
	level   string
	message string
}

type captureLogger struct {
	mu      *sync.Mutex
	entries *[]capturedEntry
}

func newCaptureLogger() captureLogger {
	return captureLogger{mu: &sync.Mutex{}, entries: &[]capturedEntry{}}
}

func (l captureLogger) record(level, message string) {
	l.mu.Lock()
	*l.entries = append(*l.entries, capturedEntry{level: level, message: message})
	l.mu.Unlock()
}

func (l captureLogger) Trace(msg string, _ ...any) { l.record("trace", msg) }
func (l captureLogger) Debug(msg string, _ ...any) { l.record("debug", msg) }
func (l captureLogger) Info(msg string, _ ...any)  { l.record("info", msg) }
func (l captureLogger) Warn(msg string, _ ...any)  { l.record("warn", msg) }
func (l captureLogger) Error(msg string, _ ...any) { l.record("error", msg) }
func (l captureLogger) Fatal(msg string, _ ...any) { l.record("fatal", msg) }
func (l captureLogger) WithContext(context.Context) core.Logger {
	return l
}

func (l captureLogger) has(level, message string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range *l.entries {
		if entry.level == level && entry.message == message {
			return true
		}
	}
	return false
}
