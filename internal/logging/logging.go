// Package logging configures the structured loggers used across the
// wayfind core. Components obtain a per-service file logger through
// NewFileLogger and fall back to a discard handler when file setup fails.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	structuredLogger *slog.Logger
	initOnce         sync.Once
)

// Init initializes the default structured logger (JSON to stdout).
// Safe to call more than once; only the first call takes effect.
func Init() {
	initOnce.Do(func() {
		handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
		structuredLogger = slog.New(handler)
		slog.SetDefault(structuredLogger)
	})
}

// Structured returns the globally configured structured logger.
// Returns nil if Init() has not been called.
func Structured() *slog.Logger {
	return structuredLogger
}

// ForService creates a logger instance with the 'service' attribute added,
// based on the global structured logger. Falls back to the slog default
// when Init() has not been called.
func ForService(serviceName string) *slog.Logger {
	if structuredLogger == nil {
		return slog.Default().With("service", serviceName)
	}
	return structuredLogger.With("service", serviceName)
}

// NewFileLogger creates a slog.Logger writing JSON logs to the given file
// path, tagged with a 'service' attribute. The level var allows dynamic
// level control after creation. It returns the logger, a close function
// for the underlying file, and an error if setup fails.
func NewFileLogger(filePath, serviceName string, level slog.Leveler) (*slog.Logger, func() error, error) {
	logDir := filepath.Dir(filePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", filePath, err)
	}

	handler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With("service", serviceName)

	// Several component instances can share one service log file; only the
	// first close touches the file.
	var closeOnce sync.Once
	closeFn := func() error {
		var err error
		closeOnce.Do(func() { err = f.Close() })
		return err
	}
	return logger, closeFn, nil
}

// DiscardLogger returns a logger that drops everything while still
// honoring the given level var. Used as the fallback when file logger
// initialization fails, so callers never hold a nil logger.
func DiscardLogger(serviceName string, level slog.Leveler) *slog.Logger {
	handler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", serviceName)
}
