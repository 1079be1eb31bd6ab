package logger

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// NewSlogLogger creates a JSON logger writing to writer. Tests pass a buffer or io.Discard.
func NewSlogLogger(writer io.Writer, level LogLevel, timezone *time.Location) Logger {
	if writer == nil {
		writer = os.Stdout
	}
	if timezone == nil {
		timezone = time.UTC
	}

	slogLevel := parseSlogLevel(level)
	return &moduleLogger{
		logger:   slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slogLevel})),
		level:    slogLevel,
		timezone: timezone,
	}
}

// NewConsoleLogger creates a console logger for use before the central logger is configured.
func NewConsoleLogger(module string, level LogLevel) Logger {
	slogLevel := parseSlogLevel(level)
	return &moduleLogger{
		module:   module,
		logger:   slog.New(newTextHandler(os.Stdout, slogLevel, time.Local)),
		level:    slogLevel,
		timezone: time.Local,
	}
}

// NewDiscardLogger returns a logger that drops everything
func NewDiscardLogger() Logger {
	return NewSlogLogger(io.Discard, LogLevelError, nil)
}
