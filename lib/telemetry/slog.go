package telemetry

import (
	"io"
	"log/slog"
	"os"
)

// InitSlog replaces the default logger with a text logger writing to stderr.
func InitSlog(verbose bool) *slog.Logger {
	return initSlog(os.Stderr, verbose)
}

func initSlog(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
