// Package logx is the logging sink consumed by every layer of the
// allocator: category name plus verbosity plus message. It wraps zap the
// way a categorized C++ logging macro wraps its own sinks, one named
// logger per subsystem.
package logx

import (
	"os"

	"go.uber.org/zap"
)

var base = mustBuild()

func mustBuild() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		// Logging itself cannot be allowed to take the process down during
		// allocator bootstrap; fall back to a no-op logger.
		return zap.NewNop()
	}
	return l
}

// Logger is a single log category, mirroring LogMemory / LogCore etc.
type Logger struct {
	z *zap.SugaredLogger
}

// Category returns the logger for a named category, created lazily.
func Category(name string) Logger {
	return Logger{z: base.Sugar().Named(name)}
}

func (l Logger) Verbose(msg string, kv ...interface{}) { l.z.Debugw(msg, kv...) }
func (l Logger) Info(msg string, kv ...interface{})    { l.z.Infow(msg, kv...) }
func (l Logger) Warning(msg string, kv ...interface{}) { l.z.Warnw(msg, kv...) }
func (l Logger) Error(msg string, kv ...interface{})   { l.z.Errorw(msg, kv...) }

// Fatal logs msg at error level and aborts the process. Used for
// unrecoverable allocator corruption (bad free-list tokens, overlapping
// decommit ranges, failed bootstrap) — the allocator never unwinds through
// a panic for these, it terminates at the point of detection so the crash
// dump reflects the corrupted state.
func (l Logger) Fatal(msg string, kv ...interface{}) {
	l.z.Errorw(msg, kv...)
	_ = base.Sync()
	os.Exit(2)
}
