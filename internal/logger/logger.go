// Package logger builds the zerolog logger used across the application.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the logger.
type Options struct {
	// Verbose enables debug output, including per-page progress.
	Verbose bool
	// Format is "console" (default) or "json".
	Format string
	// Writer defaults to os.Stderr so that stdout stays free for the JSON report.
	Writer io.Writer
}

// New returns a root logger configured from opts.
func New(opts Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stderr
	if opts.Writer != nil {
		w = opts.Writer
	}
	if strings.ToLower(opts.Format) != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Named returns a child of l tagged with a component field.
func Named(l zerolog.Logger, component string) zerolog.Logger {
	if component == "" {
		return l
	}
	return l.With().Str("component", component).Logger()
}
