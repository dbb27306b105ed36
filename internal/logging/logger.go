// Package logging sets up structured logging with console and file output.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents logging levels
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration
type Config struct {
	Level   LogLevel // Minimum log level (default: info)
	File    string   // Optional log file, appended to
	Console bool     // Human-readable console output instead of JSON on stderr
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Level:   LevelInfo,
		Console: true,
	}
}

// Logger wraps zerolog with an optional log file
type Logger struct {
	zlog zerolog.Logger
	file *os.File
}

// New creates a Logger writing to stderr and, if configured, a file
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var out io.Writer = os.Stderr
	if cfg.Console {
		out = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		}
	}

	var file *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		out = io.MultiWriter(out, file)
	}

	zlog := zerolog.New(out).
		Level(ParseLevel(string(cfg.Level))).
		With().
		Timestamp().
		Str("app", "procurevoice").
		Logger()

	return &Logger{zlog: zlog, file: file}, nil
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch LogLevel(strings.ToLower(strings.TrimSpace(level))) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

// Zerolog returns the underlying logger
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// Component returns a child logger tagged with a component name
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// SetLevel changes the minimum level, e.g. after a config reload
func (l *Logger) SetLevel(level LogLevel) {
	l.zlog = l.zlog.Level(ParseLevel(string(level)))
}

// Close flushes and closes the log file, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	l.zlog.Info().Time("closed", time.Now()).Msg("Logger closed")
	return l.file.Close()
}
