// Package logging builds the service's zerolog loggers. Output format is
// selected by APP_ENV: development gets a console writer, everything else
// structured JSON on stdout.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger tagged with the given component. LOG_LEVEL picks the
// minimum level; unknown or empty values mean info.
func New(component string) zerolog.Logger {
	level := ParseLevel(os.Getenv("LOG_LEVEL"))
	env := strings.ToLower(os.Getenv("APP_ENV"))

	var z zerolog.Logger
	if env == "development" || env == "dev" {
		writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		z = zerolog.New(writer)
	} else {
		z = zerolog.New(os.Stdout)
	}
	return z.Level(level).With().Timestamp().Str("component", component).Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
