// Package log provides a global zerolog logger and gin middleware that
// attaches a request scoped logger to each request context.
package log

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	SetOutput(os.Stdout)
}

// SetOutput replaces the global logger, writing JSON lines to w.
func SetOutput(w io.Writer) {
	l := zerolog.New(w).With().Timestamp().Logger()
	log.Logger = l
	// set the default context logger
	zerolog.DefaultContextLogger = &log.Logger
}

// Logger returns the global zerolog Logger.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// SetLevel sets the minimum global log level.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// ParseLevel parses a level name, falling back to info for unknown names.
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// Ctx returns the logger associated with ctx, or the global logger.
func Ctx(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// WithContext returns a context that has an associated logger and extra
// fields set via update.
func WithContext(ctx context.Context, update func(c zerolog.Context) zerolog.Context) context.Context {
	l := Ctx(ctx).With().Logger()
	l.UpdateContext(update)
	return l.WithContext(ctx)
}

// Info starts a new message with info level.
//
// You must call Msg on the returned event in order to send the event.
func Info(ctx context.Context) *zerolog.Event {
	return Ctx(ctx).Info()
}

// Warn starts a new message with warn level.
func Warn(ctx context.Context) *zerolog.Event {
	return Ctx(ctx).Warn()
}

// Error starts a new message with error level.
func Error(ctx context.Context) *zerolog.Event {
	return Ctx(ctx).Error()
}

// Fatal starts a new message with fatal level. The os.Exit(1) function
// is called by the Msg method.
func Fatal() *zerolog.Event {
	return Logger().Fatal()
}
