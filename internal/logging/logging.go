// Package logging provides the structured logger the capture engine uses
// for every "logged, not raised" error path (spec §7): runtime transient
// errors, runtime hard errors, and teardown errors. It wraps
// go.uber.org/zap the way dmzoneill-ollama-proxy's pkg/logging does.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NoOp returns a logger that discards everything, the default for callers
// that never configure logging. The capture engine never forces a caller
// to set up zap.
func NoOp() *zap.Logger {
	return zap.NewNop()
}

// New builds a development-style console logger at the given level
// ("debug", "info", "warn", "error"); unrecognized levels fall back to
// "info".
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return cfg.Build()
}

// current is the package-level logger Init installs. It starts as NoOp so
// a process that never calls Init still gets a safe, silent logger from L.
var current = NoOp()

// Init builds a logger at the given level and installs it as the
// package-level logger returned by L. Deployments that configure logging
// once at startup (spec §10.1) call this instead of threading a *zap.Logger
// through every capture.Config themselves.
func Init(level string) error {
	log, err := New(level)
	if err != nil {
		return err
	}
	current = log
	return nil
}

// L returns the package-level logger last installed by Init, or a no-op
// logger if Init was never called.
func L() *zap.Logger {
	return current
}

// Sync flushes the package-level logger's buffered entries. Callers should
// defer it after a successful Init.
func Sync() error {
	return current.Sync()
}
