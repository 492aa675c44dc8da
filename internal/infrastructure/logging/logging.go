// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	log "log/slog"
	"os"
	"strings"
)

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.LevelDebug
	case "warn", "warning":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}

// New builds a text or JSON logger writing to w.
func New(w io.Writer, level, format string) *log.Logger {
	opts := &log.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return log.New(log.NewJSONHandler(w, opts))
	}
	return log.New(log.NewTextHandler(w, opts))
}

// Setup installs a logger on stderr as the default and returns it.
func Setup(level, format string) *log.Logger {
	return SetupWriter(os.Stderr, level, format)
}

// SetupWriter installs a logger writing to w as the default.
func SetupWriter(w io.Writer, level, format string) *log.Logger {
	l := New(w, level, format)
	log.SetDefault(l)
	return l
}
