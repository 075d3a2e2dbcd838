package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AppName is attached to every log entry.
const AppName = "eventqueue"

// NewSugaredLogger creates a development logger when verbose is true and a
// production logger otherwise. Entries carry the application name and, when
// set, the CLI command that produced them. Output goes to stderr so command
// results on stdout stay machine readable.
func NewSugaredLogger(verbose bool, command string) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.InitialFields = map[string]any{"app": AppName}
	if command != "" {
		cfg.InitialFields["command"] = command
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return l.Sugar(), nil
}
