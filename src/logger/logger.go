package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// -----------------------------------------------------------------------------

// Level ordering for filtering.
const (
	levelDebug = iota
	levelInfo
	levelWarning
	levelError
)

// -----------------------------------------------------------------------------

// Logger provides leveled printf-style logging, one named instance per component.
type Logger struct {
	name     string
	logger   *log.Logger
	minLevel int
}

// -----------------------------------------------------------------------------

// NewLogger creates a Logger. logLevel is one of DEBUG, INFO, WARNING, ERROR
// (empty defaults to INFO).
func NewLogger(logLevel, name string) *Logger {
	return &Logger{
		name:     name,
		logger:   log.New(os.Stdout, "", log.LstdFlags),
		minLevel: parseLevel(logLevel),
	}
}

// -----------------------------------------------------------------------------

// Named returns a child logger sharing the level but with its own component name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{name: name, logger: l.logger, minLevel: l.minLevel}
}

// -----------------------------------------------------------------------------

// Debug logs debug messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf(levelDebug, "DEBUG", format, args...)
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.logf(levelInfo, "INFO", format, args...)
}

// -----------------------------------------------------------------------------

// Warning logs warnings
func (l *Logger) Warning(format string, args ...interface{}) {
	l.logf(levelWarning, "WARNING", format, args...)
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.logf(levelError, "ERROR", format, args...)
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] CRITICAL: %s", l.name, msg)
	os.Exit(1)
}

// -----------------------------------------------------------------------------

func (l *Logger) logf(level int, tag, format string, args ...interface{}) {
	if level < l.minLevel {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] %s: %s", l.name, tag, msg)
}

// -----------------------------------------------------------------------------

func parseLevel(s string) int {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return levelDebug
	case "WARNING":
		return levelWarning
	case "ERROR":
		return levelError
	default:
		return levelInfo
	}
}
