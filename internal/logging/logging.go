// Package logging wires the engine's structured logger.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-style JSON logger at the given level. Panics if
// the logger cannot be constructed, since the engine has no meaningful way
// to run without diagnostics.
func New(level zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

// Nop returns a logger that discards everything, useful for tests.
func Nop() *zap.Logger {
	return zap.NewNop()
}
