// Package logging configures the structured zerolog logger shared by every
// component, and the goroutine panic-recovery helpers built on top of it.
package logging

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the process-wide logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json, pretty
}

// New builds a structured logger: JSON in production, a console writer in
// "pretty" mode, with timestamp, caller and a fixed service field so log
// lines are filterable once shipped to a central sink.
func New(opts Options) zerolog.Logger {
	var level zerolog.Level
	switch opts.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if opts.Format == "pretty" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Str("service", "malka").
		Logger()
}

// RecoverPanic is deferred in the long-running goroutines (the subscriber
// main loop, the process-stats sampler) to catch a panic, log it with a
// stack trace, and let the goroutine exit cleanly instead of crashing the
// process.
func RecoverPanic(logger zerolog.Logger, goroutineName string, fields map[string]any) {
	if r := recover(); r != nil {
		event := logger.Error().
			Str("goroutine", goroutineName).
			Interface("panic_value", r).
			Str("stack_trace", string(debug.Stack()))
		for k, v := range fields {
			event = event.Interface(k, v)
		}
		event.Msg("goroutine panic recovered")
	}
}

// Fatal logs err at fatal level and terminates the process. Used for
// startup failures (missing arguments, bad configuration, a failed
// subscribe) and for the two unrecoverable runtime conditions: a failed
// commit or rollback, where continuing risks silent duplicate or lost
// delivery.
func Fatal(logger zerolog.Logger, err error, msg string, fields map[string]any) {
	event := logger.Fatal().Err(err)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}
