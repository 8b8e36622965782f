// Package logging provides the leveled logger used by the client loops.
// CRDT packages never log; only the sync and watch machinery does.
package logging

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
)

// Level is the logger verbosity threshold.
type Level int

// Log levels, lowest to highest severity.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is the minimal leveled logging surface.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// StandardLogger writes leveled lines through the standard log package.
type StandardLogger struct {
	prefix string
	level  Level
	logger *log.Logger
}

// NewStandardLogger creates a logger writing to stderr with the given prefix.
func NewStandardLogger(prefix string) *StandardLogger {
	return &StandardLogger{
		prefix: prefix,
		level:  LevelInfo,
		logger: log.New(os.Stderr, "", log.LstdFlags),
	}
}

// WithLevel returns a copy of the logger with the given threshold.
func (l *StandardLogger) WithLevel(level Level) *StandardLogger {
	return &StandardLogger{prefix: l.prefix, level: level, logger: l.logger}
}

// Debug logs a debug message.
func (l *StandardLogger) Debug(msg string, fields map[string]interface{}) {
	l.log(LevelDebug, msg, fields)
}

// Info logs an info message.
func (l *StandardLogger) Info(msg string, fields map[string]interface{}) {
	l.log(LevelInfo, msg, fields)
}

// Warn logs a warning message.
func (l *StandardLogger) Warn(msg string, fields map[string]interface{}) {
	l.log(LevelWarn, msg, fields)
}

// Error logs an error message.
func (l *StandardLogger) Error(msg string, fields map[string]interface{}) {
	l.log(LevelError, msg, fields)
}

func (l *StandardLogger) log(level Level, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}
	var sb strings.Builder
	sb.WriteString("[" + level.String() + "] ")
	if l.prefix != "" {
		sb.WriteString(l.prefix + ": ")
	}
	sb.WriteString(msg)
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf(" %s=%v", k, fields[k]))
		}
	}
	l.logger.Println(sb.String())
}

// Noop discards everything; the default for library consumers that do not
// wire a logger.
type Noop struct{}

// Debug does nothing.
func (Noop) Debug(string, map[string]interface{}) {}

// Info does nothing.
func (Noop) Info(string, map[string]interface{}) {}

// Warn does nothing.
func (Noop) Warn(string, map[string]interface{}) {}

// Error does nothing.
func (Noop) Error(string, map[string]interface{}) {}
