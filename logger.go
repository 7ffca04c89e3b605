package cts

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler drops every record. Logging is off until SetLogger is called.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr is read by pool and runner goroutines while the command line
// may swap it.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger routes the log output of the pool, the runner and the backends
// to l. A nil l turns logging off again.
//
// Records are prefixed with the emitting package ("devicepool:",
// "runner:", "wgpu:") and carry the canonical descriptor as "key" or the
// case query as "case":
//   - [slog.LevelDebug]: a device was created, a holder was evicted for
//     capacity, an expected device loss was absorbed, a wgpu device was
//     released, a case passed
//   - [slog.LevelInfo]: the wgpu adapter was selected, the pool created
//     its first device, a descriptor
//     was found unsupported, a case was skipped, a run finished with its
//     pass/fail/skip counts
//   - [slog.LevelWarn]: a holder was removed after a lost device,
//     out-of-memory, a leaked scope or a release timeout; a case failed
//   - [slog.LevelError]: the first device could not be created, or the
//     runner aborted because the pool failed or was closed
//
// The cts command installs a text or JSON handler from --log-level and
// --log-format:
//
//	cts.SetLogger(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelWarn,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the logger set by SetLogger. Packages fetch it at each log
// call rather than caching it.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
