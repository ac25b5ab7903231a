// Package logging configures structured logging for log/slog: colored text
// with tint for terminals, or JSON for log collectors.
//
// Usage:
//
//	logging.Setup()                            // from LOG_LEVEL and LOG_FORMAT
//	logging.SetupWith("debug", logging.JSON)   // explicit override
//
// Environment variables:
//
//	LOG_LEVEL: debug, info, warn, error (default: info)
//	LOG_FORMAT: text, json (default: text)
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Output formats.
const (
	Text = "text"
	JSON = "json"
)

// Setup configures logging from the LOG_LEVEL and LOG_FORMAT env vars.
func Setup() {
	SetupWith(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// SetupWith configures logging at the named level and format.
func SetupWith(level, format string) {
	slog.SetDefault(slog.New(NewHandler(os.Stderr, ParseLevel(level), format)))
}

// SetupWithLevel configures colored logging at the given level.
func SetupWithLevel(level slog.Level) {
	slog.SetDefault(slog.New(NewHandler(os.Stderr, level, Text)))
}

// NewHandler returns a tint handler, or a JSON handler when format is JSON.
func NewHandler(w io.Writer, level slog.Level, format string) slog.Handler {
	if strings.EqualFold(format, JSON) {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		AddSource:  true,
	})
}

// ParseLevel maps a level name to a slog.Level, defaulting to INFO.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
