package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zapcore.Level
	}{
		{in: "debug", want: zapcore.DebugLevel},
		{in: "INFO", want: zapcore.InfoLevel},
		{in: " warn ", want: zapcore.WarnLevel},
		{in: "warning", want: zapcore.WarnLevel},
		{in: "error", want: zapcore.ErrorLevel},
		{in: "verbose", want: zapcore.InfoLevel},
		{in: "", want: zapcore.InfoLevel},
	}
	for _, testCase := range cases {
		if got := parseLevel(testCase.in); got != testCase.want {
			t.Fatalf("parseLevel(%q) = %s, want %s", testCase.in, got, testCase.want)
		}
	}
}

func TestNewLoggerBuilds(t *testing.T) {
	logger, err := NewLogger("debug")
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug level to be enabled")
	}
}
