package observability

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the process-wide logger and returns it. Output goes
// to stderr so daemons keep stdout free for payload traffic; the default
// info level can be overridden through WIRECTL_LOG_LEVEL.
func InitLogger(service string) zerolog.Logger {
	level := zerolog.InfoLevel
	if raw := os.Getenv("WIRECTL_LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(raw)); err == nil {
			level = parsed
		}
	}
	out := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(out).Level(level).With().Timestamp().Str("service", service).Logger()
	log.Logger = logger
	return logger
}
