// Package logging defines a minimal structured-logging interface used across
// the project. Implementations wrap log/slog and zerolog.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "starting server", "addr", addr, "mode", mode)
type Logger interface {
	// Debug logs a diagnostic message, normally disabled in production.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning message for unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs an error message for failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

// Options selects the logging backend and its output shape.
//
//   - Backend: "slog" (default) or "zerolog".
//   - Format: "json" (default) or "text".
//   - Level: "debug", "info" (default), "warn" or "error".
type Options struct {
	Backend string
	Format  string
	Level   string
}

// New builds a Logger writing to w according to opts.
func New(w io.Writer, opts Options) (Logger, error) {
	switch strings.ToLower(opts.Backend) {
	case "", "slog":
		level, err := parseSlogLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		ho := &slog.HandlerOptions{Level: level}
		var h slog.Handler
		if strings.EqualFold(opts.Format, "text") {
			h = slog.NewTextHandler(w, ho)
		} else {
			h = slog.NewJSONHandler(w, ho)
		}
		return NewSlogLogger(slog.New(h)), nil

	case "zerolog":
		level, err := parseZerologLevel(opts.Level)
		if err != nil {
			return nil, err
		}
		out := w
		if strings.EqualFold(opts.Format, "text") {
			out = zerolog.ConsoleWriter{Out: w, NoColor: true}
		}
		zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
		return NewZerologLogger(zl), nil

	default:
		return nil, fmt.Errorf("unknown log backend %q", opts.Backend)
	}
}

func parseSlogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func parseZerologLevel(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	if strings.EqualFold(s, "warning") {
		return zerolog.WarnLevel, nil
	}
	return zerolog.ParseLevel(strings.ToLower(s))
}
