// Package log provides leveled, structured logging for the modlib runtime.
//
// It wraps logrus with a small surface tuned to the runtime's needs: component
// loggers, and a Fatal severity that only takes the process down in strict
// (development) mode. In production a Fatal condition is logged and the host
// keeps running; crashing the host over a misbehaving module is worse than
// continuing with a degraded one.
package log

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Environment variables honored at first use.
const (
	// EnvLevel sets the log level ("debug", "info", "warn", "error").
	EnvLevel = "MODLIB_LOG_LEVEL"

	// EnvStrict enables strict mode when set to "1" or "true".
	// In strict mode Fatal panics instead of merely logging.
	EnvStrict = "MODLIB_STRICT"
)

// Fields is an alias for logrus.Fields for callers' convenience.
type Fields = logrus.Fields

var (
	initOnce sync.Once
	root     *logrus.Logger
	strict   atomic.Bool
)

func setup() {
	initOnce.Do(func() {
		root = logrus.New()
		root.SetOutput(os.Stderr)
		root.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})

		switch strings.ToLower(os.Getenv(EnvLevel)) {
		case "debug":
			root.SetLevel(logrus.DebugLevel)
		case "warn", "warning":
			root.SetLevel(logrus.WarnLevel)
		case "error":
			root.SetLevel(logrus.ErrorLevel)
		default:
			root.SetLevel(logrus.InfoLevel)
		}

		switch strings.ToLower(os.Getenv(EnvStrict)) {
		case "1", "true", "yes":
			strict.Store(true)
		}
	})
}

// SetStrict overrides strict mode. Intended for tests and embedding hosts
// that configure the runtime programmatically rather than via environment.
func SetStrict(on bool) {
	setup()
	strict.Store(on)
}

// Strict reports whether strict mode is enabled.
func Strict() bool {
	setup()
	return strict.Load()
}

// SetLevel overrides the log level programmatically.
func SetLevel(level string) {
	setup()
	switch strings.ToLower(level) {
	case "debug":
		root.SetLevel(logrus.DebugLevel)
	case "info":
		root.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		root.SetLevel(logrus.WarnLevel)
	case "error":
		root.SetLevel(logrus.ErrorLevel)
	}
}

// Logger is a component-scoped logger.
type Logger struct {
	entry *logrus.Entry
}

// New returns a logger tagged with the given component name.
func New(component string) *Logger {
	setup()
	return &Logger{entry: root.WithField("component", component)}
}

// WithField returns a derived logger carrying an extra field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a derived logger carrying extra fields.
func (l *Logger) WithFields(fields Fields) *Logger {
	return &Logger{entry: l.entry.WithFields(fields)}
}

// WithError returns a derived logger carrying an error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

// Debug logs at debug level.
func (l *Logger) Debug(args ...any) { l.entry.Debug(args...) }

// Debugf logs a formatted message at debug level.
func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }

// Info logs at info level.
func (l *Logger) Info(args ...any) { l.entry.Info(args...) }

// Infof logs a formatted message at info level.
func (l *Logger) Infof(format string, args ...any) { l.entry.Infof(format, args...) }

// Warn logs at warning level.
func (l *Logger) Warn(args ...any) { l.entry.Warn(args...) }

// Warnf logs a formatted message at warning level.
func (l *Logger) Warnf(format string, args ...any) { l.entry.Warnf(format, args...) }

// Error logs at error level.
func (l *Logger) Error(args ...any) { l.entry.Error(args...) }

// Errorf logs a formatted message at error level.
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

// Fatal reports an unrecoverable contract violation. It logs at error level
// with fatal=true; in strict mode it additionally panics with the message.
// It never calls os.Exit: the host owns process lifetime.
func (l *Logger) Fatal(args ...any) {
	l.entry.WithField("fatal", true).Error(args...)
	if strict.Load() {
		panic(fmt.Sprint(args...))
	}
}

// Fatalf is the formatted variant of Fatal.
func (l *Logger) Fatalf(format string, args ...any) {
	l.entry.WithField("fatal", true).Errorf(format, args...)
	if strict.Load() {
		panic(fmt.Sprintf(format, args...))
	}
}
