// Package logger builds the process-wide structured logger from configuration.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/HatiCode/solariq/cmd/forecaster/config"
)

// New creates a logger writing to stderr and installs it as the slog default.
func New(cfg *config.Config) *slog.Logger {
	l := NewWithWriter(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(l)
	return l
}

// NewWithWriter creates a text or JSON logger at level. Unknown formats fall
// back to text and unknown levels to info.
func NewWithWriter(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
