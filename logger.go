package tandem

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logging hook used for debug output. Arguments after msg are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// DebugConfig selects which lifecycle events are logged.
type DebugConfig struct {
	Enabled         bool
	LogRequests     bool
	LogQueue        bool
	LogInterceptors bool
	LogErrors       bool
}

// DefaultDebugConfig returns a disabled config with every category selected,
// so enabling it logs everything.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:         false,
		LogRequests:     true,
		LogQueue:        true,
		LogInterceptors: true,
		LogErrors:       true,
	}
}

// zerologLogger adapts a zerolog.Logger to Logger.
type zerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger wraps l.
func NewZerologLogger(l zerolog.Logger) Logger {
	return &zerologLogger{log: l}
}

// NewSimpleLogger returns a human-readable console logger on stderr.
func NewSimpleLogger() Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return NewZerologLogger(zerolog.New(out).With().Timestamp().Str("component", "tandem").Logger().Level(zerolog.DebugLevel))
}

func (l *zerologLogger) Debug(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *zerologLogger) Info(msg string, keysAndValues ...any) {
	l.log.Info().Fields(keysAndValues).Msg(msg)
}

func (l *zerologLogger) Warn(msg string, keysAndValues ...any) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

func (l *zerologLogger) Error(msg string, keysAndValues ...any) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
