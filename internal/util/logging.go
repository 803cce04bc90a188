package util

import (
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a config string to a slog level. Unknown or empty input
// falls back to info.
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

// InitLogger installs a JSON slog logger at the given level as the process
// default. Source locations are included so ingestion and retrieval errors
// point at the failing stage.
func InitLogger(level string) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: true,
	}))
	slog.SetDefault(logger)
	return logger
}
