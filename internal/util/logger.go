// internal/util/logger.go
package util

import (
	"fmt"

	"github.com/go-logr/logr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	ctrl "sigs.k8s.io/controller-runtime"
)

// NewLogger creates a new logger with the given name
func NewLogger(name string) logr.Logger {
	return ctrl.Log.WithName(name)
}

// NewZapLogger builds the production zap logger. level is a zap level name
// ("debug" enables the V(1) lock and command traces); an empty file logs to
// stderr.
func NewZapLogger(level, file string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	if file != "" {
		cfg.OutputPaths = []string{file}
		cfg.ErrorOutputPaths = []string{file}
	}

	return cfg.Build()
}
