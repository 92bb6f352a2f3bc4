// Package logging builds the zap logger used across mdmath.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Thiago4532/mdmath.nvim/internal/config"
)

// New builds a logger from cfg. Output goes to cfg.File when set and to
// fallback otherwise; an empty fallback disables logging entirely, which
// is what host mode wants when no file is configured.
func New(cfg config.Log, fallback string) (*zap.Logger, error) {
	output := cfg.File
	if output == "" {
		output = fallback
	}
	if output == "" {
		return zap.NewNop(), nil
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Sampling = nil
	zc.OutputPaths = []string{output}
	zc.ErrorOutputPaths = []string{output}
	if cfg.Format == "console" {
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
