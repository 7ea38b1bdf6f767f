package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDestination(t *testing.T) {
	tests := []struct {
		output string
		want   io.Writer
	}{
		{"", os.Stdout},
		{"stdout", os.Stdout},
		{"STDERR", os.Stderr},
		{"discard", io.Discard},
		{"none", io.Discard},
	}
	for _, tt := range tests {
		if got := destination(tt.output); got != tt.want {
			t.Errorf("destination(%q) = %v, want %v", tt.output, got, tt.want)
		}
	}
}

func TestNewWithWriter_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info"}, "1.2.3", &buf)
	logger.Component("router").With("consumer", "live").Info("consumer registered", "capacity", 100)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}

	want := map[string]any{
		"service":   ServiceName,
		"version":   "1.2.3",
		"component": "router",
		"consumer":  "live",
		"msg":       "consumer registered",
		"capacity":  float64(100),
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
}

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(config.LoggingConfig{Format: "TEXT"}, "dev", &buf).Info("sink started")

	out := buf.String()
	if !strings.Contains(out, "msg=\"sink started\"") || !strings.Contains(out, "service="+ServiceName) {
		t.Errorf("unexpected text output %q", out)
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "text"}, "test", &buf)
	logger.Debug("event dropped")
	logger.Info("consumer registered")

	if buf.Len() != 0 {
		t.Errorf("expected nothing below warn, got %q", buf.String())
	}

	logger.Warn("batch write failed, retrying")
	if !strings.Contains(buf.String(), "batch write failed") {
		t.Errorf("expected warn entry, got %q", buf.String())
	}
}

func TestWithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWithWriter(config.LoggingConfig{}, "test", &buf)
	child := parent.With("consumer", "tsdb")
	if child == parent {
		t.Fatal("With returned the parent")
	}

	parent.Info("plain")
	if strings.Contains(buf.String(), "tsdb") {
		t.Errorf("parent picked up child field: %q", buf.String())
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}
}
