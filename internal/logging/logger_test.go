package logging

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/felixgeelhaar/bolt/v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "warn" {
		t.Errorf("Level = %s, want warn", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("Format = %s, want json", cfg.Format)
	}
	if cfg.Output != os.Stderr {
		t.Errorf("Output = %v, want os.Stderr", cfg.Output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected bolt.Level
	}{
		{"trace", bolt.TRACE},
		{"debug", bolt.DEBUG},
		{"info", bolt.INFO},
		{"warn", bolt.WARN},
		{"WARNING", bolt.WARN},
		{"error", bolt.ERROR},
		{"unknown", bolt.INFO},
		{"", bolt.INFO},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%s) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNew_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: "warn", Format: "json", Output: buf})

	logger.Info().Msg("hidden")
	logger.Warn().Str("namespace", "users").Err(errors.New("boom")).Msg("cache write failed")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "cache write failed") || !strings.Contains(out, "users") {
		t.Errorf("expected warn entry with fields, got %s", out)
	}
}

func TestNew_Console(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: "debug", Format: "console", Output: buf})

	logger.Debug().Msg("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("expected debug output, got %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error().Msg("dropped")
}
