package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the service logger. Output is JSON on stdout unless pretty is
// set, in which case a console writer is used for local development.
func New(level string, pretty bool) zerolog.Logger {
	var out = zerolog.New(os.Stdout)
	if pretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return out.
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("service", "aibridge").
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
