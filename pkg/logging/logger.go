package logging

import (
	"io"
	"os"
	"sort"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// Level represents log level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) charm() charmlog.Level {
	switch l {
	case DEBUG:
		return charmlog.DebugLevel
	case WARN:
		return charmlog.WarnLevel
	case ERROR:
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

// Fields carries structured context for a log line
type Fields map[string]interface{}

// Logger provides leveled structured logging
type Logger struct {
	charm  *charmlog.Logger
	fields Fields
}

// Config selects level, format and destination
type Config struct {
	Level      Level
	JSON       bool
	Output     io.Writer
	TimeFormat string
}

// New creates a logger from a full configuration
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = "2006-01-02 15:04:05"
	}
	charm := charmlog.NewWithOptions(out, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      timeFormat,
		Level:           cfg.Level.charm(),
	})
	if cfg.JSON {
		charm.SetFormatter(charmlog.JSONFormatter)
	} else {
		charm.SetFormatter(charmlog.TextFormatter)
	}
	return &Logger{charm: charm, fields: Fields{}}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return New(Config{Level: ERROR, Output: io.Discard})
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...Fields) {
	l.charm.Debug(message, l.keyvals(fields)...)
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...Fields) {
	l.charm.Info(message, l.keyvals(fields)...)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...Fields) {
	l.charm.Warn(message, l.keyvals(fields)...)
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...Fields) {
	l.charm.Error(message, l.keyvals(fields)...)
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	newFields := make(Fields, len(l.fields)+1)
	for k, v := range l.fields {
		newFields[k] = v
	}
	newFields[key] = value
	return &Logger{charm: l.charm, fields: newFields}
}

// WithComponent tags every line with the emitting component
func (l *Logger) WithComponent(name string) *Logger {
	return l.WithField("component", name)
}

// keyvals merges logger and call fields into sorted key/value pairs
func (l *Logger) keyvals(fields []Fields) []interface{} {
	merged := make(Fields, len(l.fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return nil
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kv := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		kv = append(kv, k, merged[k])
	}
	return kv
}

// ParseLevel parses a log level string
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}
