package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const encodingConsole = "console"

// NewLogger returns a zap logger for the requested level and encoding ("json" or "console").
func NewLogger(level, encoding string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if strings.EqualFold(strings.TrimSpace(encoding), encodingConsole) {
		cfg.Encoding = encodingConsole
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
