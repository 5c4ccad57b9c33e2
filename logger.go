package texstage

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the package logger. Accessed atomically so that
// SetLogger can race with logging from surfaces on other goroutines.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger used by texstage and its backends.
// By default nothing is logged. Pass nil to restore silence.
//
// Surfaces and managers capture the logger when they are created; use
// WithLogger to give one of them a different logger.
//
// Log levels used by texstage:
//   - [slog.LevelDebug]: allocator decisions, bracket transitions
//   - [slog.LevelInfo]: backend selection, pool growth
//   - [slog.LevelWarn]: misuse (double map, destroy while mapped,
//     mapping a surface the GPU is still reading)
//
// Example:
//
//	texstage.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current package logger. Backend packages call it so
// they share the configuration without an import cycle.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
