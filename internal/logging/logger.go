/**
 * Structured logging for the extraction worker
 *
 * Key-value loggers with a process-wide minimum level read from LOG_LEVEL.
 * Info and debug lines go to stdout; warnings and errors go to stderr so
 * job narration stays separable from operational noise.
 */

package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

// Logger provides leveled key-value logging for one worker component
type Logger struct {
	prefix   string
	minLevel int
	out      *log.Logger
	errOut   *log.Logger
}

// NewLogger creates a logger with a component prefix. The minimum level
// comes from LOG_LEVEL (debug, info, warn, error); unset means info.
func NewLogger(prefix string) *Logger {
	return newLogger(prefix, os.Stdout, os.Stderr, levelFromEnv())
}

func newLogger(prefix string, out, errOut io.Writer, minLevel int) *Logger {
	flags := log.LstdFlags
	return &Logger{
		prefix:   prefix,
		minLevel: minLevel,
		out:      log.New(out, fmt.Sprintf("[%s] ", prefix), flags),
		errOut:   log.New(errOut, fmt.Sprintf("[%s] ", prefix), flags),
	}
}

func levelFromEnv() int {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return levelDebug
	case "warn", "warning":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// Info logs an informational message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logWithKV(levelInfo, "INFO", msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.logWithKV(levelWarn, "WARN", msg, keysAndValues...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.logWithKV(levelError, "ERROR", msg, keysAndValues...)
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.logWithKV(levelDebug, "DEBUG", msg, keysAndValues...)
}

func (l *Logger) logWithKV(level int, tag, msg string, keysAndValues ...interface{}) {
	if level < l.minLevel {
		return
	}

	kvStr := ""
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		kvStr += fmt.Sprintf(" %v=%v", keysAndValues[i], keysAndValues[i+1])
	}

	dst := l.out
	if level >= levelWarn {
		dst = l.errOut
	}
	dst.Printf("[%s] %s%s", tag, msg, kvStr)
}
