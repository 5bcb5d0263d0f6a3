// Package logger builds the process-wide slog logger from configuration.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the log output format.
type Format string

const (
	// FormatJSON emits one JSON object per line. Default in production.
	FormatJSON Format = "json"
	// FormatText emits human-readable key=value lines. Default in dev.
	FormatText Format = "text"
)

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to w. The service attribute tags every record
// so the two binaries can share one log stream.
func New(w io.Writer, level slog.Level, format Format, service string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == FormatText {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(slog.String("service", service))
}

// Setup builds the logger and installs it as the slog default.
func Setup(levelStr, formatStr, service string) *slog.Logger {
	format := FormatJSON
	if strings.EqualFold(formatStr, string(FormatText)) {
		format = FormatText
	}
	log := New(os.Stdout, ParseLevel(levelStr), format, service)
	slog.SetDefault(log)
	return log
}
