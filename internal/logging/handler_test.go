package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewHandler_JSONWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, Options{Level: "debug"}))
	logger.Debug("cache swept", "removed", 3)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "cache swept" || line["removed"] != float64(3) {
		t.Errorf("unexpected record: %v", line)
	}
}

func TestNewHandler_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, Options{Format: FormatText}))
	logger.Info("session created", "session", "abc")
	logger.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "session created") || !strings.Contains(out, "session=abc") {
		t.Errorf("unexpected text output: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug records must be filtered at info level")
	}
	if strings.Contains(out, "\033[") {
		t.Error("non-terminal output must not be colorized")
	}
}
