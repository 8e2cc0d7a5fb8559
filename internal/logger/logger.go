// Package logger builds the logrus loggers shared by the engine, its
// collectors and the background enrichment workers.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Options controls how a logger is built.
type Options struct {
	Level  string
	Debug  bool
	JSON   bool
	Output io.Writer
}

var (
	mu  sync.RWMutex
	std = New(Options{Level: "info"})
)

// New creates a logger. An unparsable level falls back to info; Debug
// forces the debug level regardless of Level.
func New(opts Options) *logrus.Logger {
	l := logrus.New()

	if opts.Output != nil {
		l.SetOutput(opts.Output)
	} else {
		l.SetOutput(os.Stderr)
	}

	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if opts.Debug {
		level = logrus.DebugLevel
	}
	l.SetLevel(level)

	return l
}

// Default returns the process-wide logger.
func Default() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *logrus.Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	std = l
	mu.Unlock()
}

// Component returns an entry tagged with the component name.
func Component(name string) *logrus.Entry {
	return Default().WithField("component", name)
}

// Or returns e when set, otherwise a component entry on the default logger.
func Or(e *logrus.Entry, name string) *logrus.Entry {
	if e != nil {
		return e
	}
	return Component(name)
}
