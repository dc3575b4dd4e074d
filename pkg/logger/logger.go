// Package logger configures structured logging for the dashboard backend.
// Subsystems derive their own loggers from the root one with a component
// tag, e.g. log.With().Str("component", "orchestrator").Logger().
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // Human-readable console output, used in dev mode
}

// New builds the root logger. Unknown or empty levels fall back to info so
// a misconfigured LOG_LEVEL never silences the service.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// SetGlobalLogger routes the zerolog package-level logger through l so code
// logging via rs/zerolog/log shares the service configuration.
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
