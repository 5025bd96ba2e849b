// Package logutil builds the zap.Logger used across qcp-send/qcp-recv,
// grounded on the teacher's zap.NewDevelopment()/zap.NewProduction() split
// (examples/session/main.go and the gateway services).
package logutil

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger for the given profile. "dev" yields the console
// encoder with debug level (matching zap.NewDevelopment); anything else
// yields the JSON production encoder at info level.
func New(profile string) (*zap.Logger, error) {
	if profile == "dev" {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("logutil: build dev logger: %w", err)
		}
		return logger, nil
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logutil: build prod logger: %w", err)
	}
	return logger, nil
}
