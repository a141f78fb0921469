// Package logger builds the process logger for the configured environment.
package logger

import (
	"io"
	"os"

	"golang.org/x/exp/slog"

	"github.com/mesh-intelligence/carsync/pkg/types"
)

// New returns a logger for env: local logs colored text at debug, dev logs
// JSON at debug, anything else logs JSON at info.
func New(env string) *slog.Logger {
	return NewWithWriter(env, os.Stderr)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(env string, w io.Writer) *slog.Logger {
	switch env {
	case types.EnvLocal:
		return setupPrettySlog(w)
	case types.EnvDev:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDiscard returns log, or a discarding logger when log is nil.
func OrDiscard(log *slog.Logger) *slog.Logger {
	if log == nil {
		return Discard()
	}
	return log
}

// Err is the attribute used for errors in every component.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

func setupPrettySlog(w io.Writer) *slog.Logger {
	opts := PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{Level: slog.LevelDebug},
	}
	return slog.New(opts.NewPrettyHandler(w))
}
