// Package logger provides structured logging for the knowledge core.
// Messages carry slog key/value pairs. Debug output is only written when
// verbose mode is enabled via the --verbose flag.
package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	level             = new(slog.LevelVar)
	output  io.Writer = os.Stderr
	log               = newLogger(os.Stderr, false)
)

func newLogger(w io.Writer, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetVerbose enables or disables debug logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	if v {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	log = newLogger(w, false)
}

// SetJSON switches between JSON and text records on the current output.
func SetJSON(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	log = newLogger(output, enabled)
}

// L returns the underlying slog logger.
func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Debug logs at debug level. Only written in verbose mode.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Section logs a pipeline stage marker in verbose mode.
func Section(name string) {
	L().Debug("section", "name", name)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs a recoverable problem such as a retry or a fallback.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs a failure.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}
