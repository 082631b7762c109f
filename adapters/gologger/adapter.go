package gologger

import (
	"io"
	"os"
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the glog pair and returns the go-job equivalents.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}

// NewProvider builds the go-logger root logger writing to w, JSON when json
// is set and key=value text otherwise. Named loggers from GetLogger carry a
// "logger" attribute. Fatal only logs; exiting stays with the caller.
func NewProvider(w io.Writer, level string, json bool) *glog.BaseLogger {
	if w == nil {
		w = os.Stderr
	}
	loggerType := glog.WithLoggerTypeConsole()
	if json {
		loggerType = glog.WithLoggerTypeJSON()
	}
	return glog.NewLogger(
		glog.WithWriter(w),
		glog.WithLevel(strings.TrimSpace(level)),
		loggerType,
		glog.WithFatalBehavior(glog.FatalBehaviorLogOnly),
	)
}
