// Package logger provides structured logging for snapcommit built on hclog.
package logger

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	mu   sync.RWMutex
	root = hclog.New(&hclog.LoggerOptions{
		Name:   "snapcommit",
		Level:  hclog.Info,
		Output: os.Stderr,
	})
)

// Configure replaces the root logger. Level accepts hclog level names
// ("trace", "debug", "info", "warn", "error"); unknown values fall back
// to info. JSON output is used when format is "json".
func Configure(level, format string) {
	mu.Lock()
	defer mu.Unlock()

	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		lvl = hclog.Info
	}

	root = hclog.New(&hclog.LoggerOptions{
		Name:       "snapcommit",
		Level:      lvl,
		Output:     os.Stderr,
		JSONFormat: format == "json",
	})
}

// Named returns a sub-logger with the given name appended.
func Named(name string) hclog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(name)
}

// Debug logs a debug message with optional key/value pairs.
func Debug(msg string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	root.Debug(msg, args...)
}

// Info logs an informational message with optional key/value pairs.
func Info(msg string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	root.Info(msg, args...)
}

// Warn logs a warning message with optional key/value pairs.
func Warn(msg string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	root.Warn(msg, args...)
}

// Error logs an error message with optional key/value pairs.
func Error(msg string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	root.Error(msg, args...)
}
