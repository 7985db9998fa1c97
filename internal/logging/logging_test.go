package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"ERROR", slog.LevelError},
		{"warn", slog.LevelWarn},
		{" Warning ", slog.LevelWarn},
		{"INFO", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"", slog.LevelDebug},
	}
	for _, tt := range tests {
		if got := levelFromString(tt.in); got != tt.want {
			t.Errorf("levelFromString(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComponentAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(NewWithWriter(&buf, "info"), "ledger")
	logger.Info("cache miss", "record_id", "r1")
	logger.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "component=ledger") {
		t.Errorf("expected component attr, got %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug line should be filtered at info level")
	}
}
