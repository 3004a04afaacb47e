// Package logging builds the logr.Logger the engine components share, backed by
// zap.
package logging

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production logger at the given verbosity. Higher verbosity enables
// the engine's V(1) commit tracing.
func New(verbosity int) (logr.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zl, err := cfg.Build()
	if err != nil {
		return logr.Logger{}, err
	}
	return zapr.NewLogger(zl), nil
}

// NewDevelopment returns a human-readable logger for tests and local runs. Errors
// building the underlying zap logger fall back to a discarding logger.
func NewDevelopment(verbosity int) logr.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}
