package core

import (
	"context"
	"sync"
	"testing"

	"github.com/alecthomas/types/optional"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type capturedEntry struct {
	level   string
	message string
	args    []any
}

type captureLogger struct {
	mu      *sync.Mutex
	entries *[]capturedEntry
}

func newCaptureLogger() captureLogger {
	return captureLogger{mu: &sync.Mutex{}, entries: &[]capturedEntry{}}
}

func (l captureLogger) record(level, message string, args []any) {
	l.mu.Lock()
	*l.entries = append(*l.entries, capturedEntry{level: level, message: message, args: args})
	l.mu.Unlock()
}

func (l captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args) }
func (l captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l captureLogger) Error(msg string, args ...any) { l.record("error", msg, args) }
func (l captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args) }
func (l captureLogger) WithContext(context.Context) Logger {
	return l
}

func (l captureLogger) messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, entry := range *l.entries {
		if entry.level == level {
			out = append(out, entry.message)
		}
	}
	return out
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

// duplicatingQuerier repeats every row once, the way a subject join does
// when a subscription intersects on two subject names.
type duplicatingQuerier struct {
	inner MatchQuerier
	calls int
}

func (q *duplicatingQuerier) MatchQuery(ctx context.Context, query MatchQuery) ([]MatchRow, error) {
	q.calls++
	inner := query
	if inner.Limit > 0 {
		inner.Limit = (inner.Limit + 1) / 2
	}
	rows, err := q.inner.MatchQuery(ctx, inner)
	if err != nil {
		return nil, err
	}
	out := make([]MatchRow, 0, len(rows)*2)
	for _, row := range rows {
		out = append(out, row, row)
	}
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func newHotelNotification(address string, action string, subjects ...string) Notification {
	return Notification{
		Index:           "hotels",
		ResourceType:    "availability",
		ResourceAddress: address,
		Action:          OptionalString(action),
		Subjects:        subjects,
	}
}

func mustCreate(t *testing.T, store SubscriptionStore, in CreateSubscriptionInput) Subscription {
	t.Helper()
	sub, err := store.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return sub
}

func hotelSubscription(url string) CreateSubscriptionInput {
	return CreateSubscriptionInput{
		Index:        "hotels",
		ResourceType: "availability",
		URL:          url,
	}
}

func withAction(in CreateSubscriptionInput, action string) CreateSubscriptionInput {
	in.Action = optional.Some(action)
	return in
}
