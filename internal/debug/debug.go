// Package debug provides debug logging functionality using log/slog
package debug

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

var (
	// logger is the global debug logger instance
	logger *slog.Logger
	// enabled indicates if debug logging is enabled
	enabled bool
	// mu protects the logger and enabled flag
	mu sync.RWMutex
)

func init() {
	Init(false)
}

// Init initializes the debug logger
// If enable is true, debug logs will be written to os.Stderr
// If enable is false, debug logs will be silently discarded
func Init(enable bool) {
	mu.Lock()
	defer mu.Unlock()

	enabled = enable

	if enable {
		opts := &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
	} else {
		logger = slog.New(slog.DiscardHandler)
	}
}

// Enabled returns whether debug logging is enabled
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Error(msg, args...)
}

// With returns a logger with the given attributes
func With(args ...any) *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	return l.With(args...)
}

// Logger returns the underlying slog.Logger instance
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

var (
	kindColor    = color.New(color.FgCyan, color.Bold)
	errColor     = color.New(color.FgRed, color.Bold)
	elapsedColor = color.New(color.FgYellow)
)

// TraceSQL prints one traced statement to stderr in color. Wired as the
// trace hook when debug mode is on.
func TraceSQL(kind, sqlText string, args []any, err error, elapsed time.Duration) {
	if !Enabled() {
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s", kindColor.Sprint(kind), sqlText)
	if len(args) > 0 {
		fmt.Fprintf(os.Stderr, " %v", args)
	}
	fmt.Fprintf(os.Stderr, " %s", elapsedColor.Sprint(elapsed.Round(time.Microsecond)))
	if err != nil {
		fmt.Fprintf(os.Stderr, " %s", errColor.Sprint(err))
	}
	fmt.Fprintln(os.Stderr)
}
