// ABOUTME: Structured logging setup: slog JSON over a rotating file.
// ABOUTME: Falls back to plain stderr logging when no file is configured.

package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the station logger. With a file the output is JSON into a
// size-rotated log; without one it is human-readable text on stderr.
func New(level, file string) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if file == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}

	var w io.Writer = &lumberjack.Logger{
		Filename:   file,
		MaxSize:    32, // MB
		MaxBackups: 3,
		MaxAge:     14,
		Compress:   true,
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
