// Package logging wires up the structured logger shared by both storage
// engines and the CLI entrypoint.
package logging

import (
	"log/slog"
	"os"

	"minikv/internal/config"
)

// New builds a slog.Logger from the given config and installs it as the
// process default, mirroring the teacher's cmd/init.go initLogger helper.
func New(cfg config.LoggingConfig) *slog.Logger {
	level := parseLevel(cfg.Level)

	opts := &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	logger.Info("logger initialized", "level", cfg.Level, "json", cfg.JSON)
	return logger
}

func parseLevel(level string) slog.Level {
	switch level {
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
