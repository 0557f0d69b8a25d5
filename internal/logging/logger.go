/**
 * Structured logging for the document processing worker.
 *
 * Thin wrapper over zerolog so call sites keep the familiar
 * Info(msg, key, value, ...) shape used throughout the codebase.
 */

package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger provides leveled key-value logging for one component.
type Logger struct {
	zl zerolog.Logger
}

// Options configures logger construction.
type Options struct {
	Level   string // debug, info, warn, error
	Console bool   // human-readable console output instead of JSON
	Output  io.Writer
}

// NewLogger creates a JSON logger tagged with a component name.
func NewLogger(component string) *Logger {
	return NewLoggerWithOptions(component, Options{Level: "info"})
}

// NewLoggerWithOptions creates a logger with explicit options.
func NewLoggerWithOptions(component string, opts Options) *Logger {
	output := opts.Output
	if output == nil {
		output = os.Stdout
	}

	var zl zerolog.Logger
	if opts.Console {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339})
	} else {
		zl = zerolog.New(output)
	}

	zl = zl.Level(parseLevel(opts.Level)).With().
		Timestamp().
		Str("component", component).
		Logger()

	return &Logger{zl: zl}
}

// With returns a child logger carrying an additional fixed field.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// Debug logs a debug message with key-value pairs.
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.emit(l.zl.Debug(), msg, keysAndValues)
}

// Info logs an informational message with key-value pairs.
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.emit(l.zl.Info(), msg, keysAndValues)
}

// Warn logs a warning message with key-value pairs.
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.emit(l.zl.Warn(), msg, keysAndValues)
}

// Error logs an error message with key-value pairs.
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.emit(l.zl.Error(), msg, keysAndValues)
}

func (l *Logger) emit(evt *zerolog.Event, msg string, keysAndValues []interface{}) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key := fmt.Sprintf("%v", keysAndValues[i])
		evt = evt.Interface(key, keysAndValues[i+1])
	}
	evt.Msg(msg)
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Nop returns a logger that discards everything, for tests and optional
// dependencies.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}
