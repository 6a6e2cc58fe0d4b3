package main

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// setupLogger ставит tint обработчиком по умолчанию. Стандартный log
// после slog.SetDefault тоже пишет через него.
func setupLogger(logLevel string) *slog.Logger {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      parseLogLevel(logLevel),
		TimeFormat: "2006-01-02 15:04:05",
	}))
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(levelStr string) slog.Level {
	switch levelStr {
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
