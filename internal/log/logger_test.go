package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	logger.Info("workflow started", RunIDKey, "run-1", WorkflowKey, "place_order")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "workflow started" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry[RunIDKey] != "run-1" {
		t.Errorf("%s = %v", RunIDKey, entry[RunIDKey])
	}
}

func TestNewTextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatText, Output: &buf})

	logger.Info("step completed", StepKey, "validate")

	if !strings.Contains(buf.String(), "step=validate") {
		t.Errorf("text output missing step field: %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Format: FormatJSON, Output: &buf})

	logger.Debug("hidden")
	logger.Info("also hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output below warn, got %q", buf.String())
	}

	logger.Warn("visible")
	if buf.Len() == 0 {
		t.Error("expected warn output")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CADENZA_DEBUG", "")
	t.Setenv("CADENZA_LOG_LEVEL", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("LOG_SOURCE", "")

	cfg := FromEnv()
	if cfg.Level != "info" || cfg.Format != FormatJSON {
		t.Errorf("defaults wrong: %+v", cfg)
	}

	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "text")
	cfg = FromEnv()
	if cfg.Level != "warn" {
		t.Errorf("Level = %q, want warn", cfg.Level)
	}
	if cfg.Format != FormatText {
		t.Errorf("Format = %q, want text", cfg.Format)
	}

	// CADENZA_LOG_LEVEL takes precedence over LOG_LEVEL
	t.Setenv("CADENZA_LOG_LEVEL", "error")
	cfg = FromEnv()
	if cfg.Level != "error" {
		t.Errorf("Level = %q, want error", cfg.Level)
	}

	// CADENZA_DEBUG takes precedence over everything
	t.Setenv("CADENZA_DEBUG", "1")
	cfg = FromEnv()
	if cfg.Level != "debug" || !cfg.AddSource {
		t.Errorf("debug config wrong: %+v", cfg)
	}
}
