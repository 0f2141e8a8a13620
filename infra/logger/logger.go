// Package logger provides the zerolog backed implementation of the core
// Logger interface. Every component logger derives from one process-wide
// root so that Configure applies everywhere.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	corelogger "github.com/kilianp07/faultfleet/core/logger"
)

type Logger = corelogger.Logger

// NopLogger discards every entry.
type NopLogger = corelogger.Nop

// Options selects the root output. Empty fields fall back to LOG_LEVEL
// and APP_ENV (dev selects console output).
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

var (
	mu   sync.RWMutex
	root = build(Options{})
)

// Configure replaces the root logger. Loggers created earlier keep their
// previous output.
func Configure(o Options) error {
	if o.Level != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(o.Level)); err != nil {
			return err
		}
	}
	z := build(o)
	mu.Lock()
	root = z
	mu.Unlock()
	return nil
}

// New returns a Logger tagged with component.
func New(component string) Logger {
	mu.RLock()
	z := root
	mu.RUnlock()
	return &zlog{z: z.With().Str("component", component).Logger()}
}

func build(o Options) zerolog.Logger {
	out := o.Output
	if out == nil {
		out = os.Stdout
	}
	format := o.Format
	if format == "" && strings.EqualFold(os.Getenv("APP_ENV"), "dev") {
		format = "console"
	}
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(parseLevel(o.Level))
}

func parseLevel(s string) zerolog.Level {
	if s == "" {
		s = os.Getenv("LOG_LEVEL")
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
