package utils

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the process logger. Release mode logs JSON, everything
// else logs human readable text.
func NewLogger(w io.Writer, mode, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if mode == "release" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
