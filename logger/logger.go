package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var Log *slog.Logger

// Init installs a JSON slog handler as the process default. level is one of
// debug, info, warn, error; anything else falls back to info.
func Init(level string) *slog.Logger {
	return InitWithWriter(os.Stdout, level)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     ParseLevel(level),
	})
	Log = slog.New(handler)
	slog.SetDefault(Log)
	return Log
}

// ParseLevel maps a LOG_LEVEL string onto a slog level
func ParseLevel(level string) slog.Level {
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
