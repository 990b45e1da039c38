// Package logging provides structured logging for mseedindex using zerolog.
package logging

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var logger *zerolog.Logger

// prettyMode tracks whether the console (human-friendly) writer is active,
// so CompletionEvent can decide whether to add "_h" human-readable
// companion fields alongside the canonical numeric ones.
var prettyMode atomic.Bool

func init() {
	// Default to JSON logging at info level, matching the CLI's default
	// non-interactive output (scans are frequently piped or run from cron).
	l := zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger = &l
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Init configures the global logger.
// If debug is true, sets log level to Debug (the CLI's -v/-verbose flag).
// If human is true, uses a human-friendly console writer instead of JSON.
func Init(debug bool, human bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	prettyMode.Store(human)

	var output zerolog.LevelWriter
	if human {
		output = zerolog.LevelWriterAdapter{Writer: zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    false,
		}}
	} else {
		output = zerolog.LevelWriterAdapter{Writer: os.Stderr}
	}

	l := zerolog.New(output).With().Timestamp().Logger()
	logger = &l
}

// IsPrettyMode reports whether pretty mode is on, as last set by Init's
// human argument or by SetPrettyMode.
func IsPrettyMode() bool {
	return prettyMode.Load()
}

// SetPrettyMode turns the "_h" human-readable companion fields on or off
// without reconfiguring the logger's output writer.
func SetPrettyMode(on bool) {
	prettyMode.Store(on)
}

// L returns the base logger.
func L() *zerolog.Logger {
	return logger
}

// WithPhase returns a logger with the phase field set (e.g. "scan",
// "reconcile", "finalize").
func WithPhase(phase string) zerolog.Logger {
	return logger.With().Str("phase", phase).Logger()
}

// SetLogger allows overriding the global logger (useful for testing).
func SetLogger(l zerolog.Logger) {
	logger = &l
}
