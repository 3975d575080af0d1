// Package log configures the zerolog logger shared by all learnplay packages.
// Logs go to stderr so they never interleave with JSON written to stdout.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Canonical field names.
const (
	FieldSessionID  = "session_id"
	FieldComponent  = "component"
	FieldSourceKind = "source_kind"
	FieldQualityID  = "quality_id"
	FieldURL        = "url"
	FieldOldState   = "old_state"
	FieldNewState   = "new_state"
	FieldErrorKind  = "error_kind"
	FieldFatal      = "fatal"
	FieldLatencyMS  = "latency_ms"
)

// Config captures options for the global logger.
type Config struct {
	Level  string    // "debug", "info", ...; falls back to LEARNPLAY_LOG_LEVEL, then "warn"
	Output io.Writer // defaults to os.Stderr
	Pretty bool      // human-readable console output
}

var (
	mu   sync.RWMutex
	base = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel)
)

// Configure replaces the global logger.
func Configure(cfg Config) {
	level := zerolog.WarnLevel
	raw := cfg.Level
	if raw == "" {
		raw = os.Getenv("LEARNPLAY_LOG_LEVEL")
	}
	if raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}
	if cfg.Pretty {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.Kitchen}
	}

	mu.Lock()
	base = zerolog.New(writer).With().Timestamp().Logger().Level(level)
	mu.Unlock()
}

// Base returns the configured logger.
func Base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return Base().With().Str(FieldComponent, component).Logger()
}

// Discard returns a logger that drops everything; used by tests and library callers.
func Discard() zerolog.Logger {
	return zerolog.Nop()
}
