// Package cucumber is the top-level builder: it wires the gherkin parser,
// step registry, feature store, scenario scheduler and executor, and
// writer pipeline into the single Run entry point a consuming test suite
// calls (spec §1, §2, §6).
package cucumber

import (
	"log/slog"
	"os"
)

// Logger is the ambient structured-logging seam of a run: RunWithWriter
// logs the run's start at Info, feature-file parse errors at Warn and an
// aborted run at Error. The scheduler and executor do not log. Compatible
// with *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoopLogger discards every call. Pass it via WithLogger to silence
// logging entirely.
type NoopLogger struct{}

func (NoopLogger) Debug(string, ...any) {}
func (NoopLogger) Info(string, ...any)  {}
func (NoopLogger) Warn(string, ...any)  {}
func (NoopLogger) Error(string, ...any) {}

// defaultLogger is a text-handler slog.Logger writing to stdout, used
// whenever the caller hasn't supplied one.
func defaultLogger() Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
