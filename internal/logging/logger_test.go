package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	testCases := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"verbose": zapcore.InfoLevel,
	}
	for input, want := range testCases {
		if got := parseLevel(input); got != want {
			t.Fatalf("parseLevel(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	logger, err := NewLogger("error", "console")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger.Core().Enabled(zapcore.WarnLevel) {
		t.Fatalf("warn should be disabled at error level")
	}
	if !logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Fatalf("error should be enabled")
	}
}
