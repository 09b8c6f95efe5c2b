// Package kaorilog configures the zap logger used by cmd/kaori, and only
// there: the CLI logs each pipeline stage at debug level under --verbose,
// and logs the VM's instructions under --trace through the VM's tracer
// callback. The compiler and VM packages do not import it.
package kaorilog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger for the CLI: human-readable console encoding,
// info level by default, debug level when verbose is requested.
func New(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.TimeKey = ""
	cfg.DisableStacktrace = true
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return cfg.Build()
}

// Nop returns a logger that discards everything, for tests and library
// callers that don't want CLI-style output.
func Nop() *zap.Logger { return zap.NewNop() }
