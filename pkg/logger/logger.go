package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New creates the application logger, writing to stderr so command output
// stays clean on stdout. Log level comes from the LOG_LEVEL environment
// variable (trace, debug, info, warn, error); pretty selects human-readable
// console output instead of JSON.
func New(pretty bool) zerolog.Logger {
	level := parseLogLevel(os.Getenv("LOG_LEVEL"))

	if pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).
			With().
			Timestamp().
			Logger()
	}
	return zerolog.New(os.Stderr).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
