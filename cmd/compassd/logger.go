package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the available logging levels
type LogLevel string

const (
	LogLevelError LogLevel = "error"
	LogLevelWarn  LogLevel = "warn"
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
)

// parseLogLevel converts a string to a LogLevel
func parseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "error":
		return LogLevelError, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "info":
		return LogLevelInfo, nil
	case "debug":
		return LogLevelDebug, nil
	default:
		return "", fmt.Errorf("invalid log level: %s (must be error, warn, info, or debug)", level)
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelError:
		return slog.LevelError
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// setupLogger creates a text slog logger writing to w.
func setupLogger(level LogLevel, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level.slogLevel(),
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// logWriter returns stdout, or stdout plus a size-rotated log file when
// logging.file is set. The returned closer flushes the file.
func logWriter(cfg LoggingConfig) (io.Writer, io.Closer) {
	if cfg.File == "" {
		return os.Stdout, io.NopCloser(nil)
	}
	lj := &lumberjack.Logger{
		Filename:   ExpandPath(cfg.File),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	return io.MultiWriter(os.Stdout, lj), lj
}
