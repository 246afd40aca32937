// Package logging builds the bolt loggers used across the module.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/felixgeelhaar/bolt/v3"
)

// Config configures a logger.
type Config struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `yaml:"level"`

	// Format is the output format (json or console).
	Format string `yaml:"format"`

	// Output is the output destination. Nil means stderr.
	Output io.Writer `yaml:"-"`
}

// DefaultConfig logs warnings and errors as JSON to stderr. Cache failures
// the mediators swallow are reported at warn.
func DefaultConfig() Config {
	return Config{
		Level:  "warn",
		Format: "json",
		Output: os.Stderr,
	}
}

// parseLevel converts a string level to bolt.Level.
func parseLevel(s string) bolt.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return bolt.TRACE
	case "debug":
		return bolt.DEBUG
	case "info":
		return bolt.INFO
	case "warn", "warning":
		return bolt.WARN
	case "error":
		return bolt.ERROR
	default:
		return bolt.INFO
	}
}

// New builds a logger from cfg.
func New(cfg Config) *bolt.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var handler bolt.Handler
	if cfg.Format == "console" {
		handler = bolt.NewConsoleHandler(output)
	} else {
		handler = bolt.NewJSONHandler(output)
	}

	return bolt.New(handler).SetLevel(parseLevel(cfg.Level))
}

// Default returns a logger built from DefaultConfig.
func Default() *bolt.Logger {
	return New(DefaultConfig())
}

// Discard returns a logger that drops everything.
func Discard() *bolt.Logger {
	return New(Config{Level: "error", Format: "json", Output: io.Discard})
}
