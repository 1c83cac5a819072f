// Package logger provides the structured logger shared by the CLI, the
// generation pipeline and the HTTP server.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger so components can take a logger by interface.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithGroup(name string) Logger
	Enabled(level slog.Level) bool
}

// Format selects the handler used by Setup.
type Format string

const (
	FormatPretty Format = "pretty"
	FormatText   Format = "text"
	FormatJSON   Format = "json"
)

type slogLogger struct {
	l *slog.Logger
}

// New returns a Logger backed by handler.
func New(handler slog.Handler) Logger {
	return &slogLogger{l: slog.New(handler)}
}

// Default writes text records at info level to stderr.
func Default() Logger {
	return New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// Discard drops every record.
func Discard() Logger {
	return New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func JSON(w io.Writer, level slog.Level) Logger {
	return New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func Text(w io.Writer, level slog.Level) Logger {
	return New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Pretty writes colored single-line records for interactive terminals.
func Pretty(w io.Writer, level slog.Level) Logger {
	return New(NewPrettyHandler(w, &slog.HandlerOptions{Level: level}))
}

// Setup builds a logger from configuration strings.
func Setup(w io.Writer, format, level string) (Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	switch Format(strings.ToLower(strings.TrimSpace(format))) {
	case FormatPretty, "":
		return Pretty(w, lvl), nil
	case FormatText:
		return Text(w, lvl), nil
	case FormatJSON:
		return JSON(w, lvl), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want pretty, text or json)", format)
	}
}

type loggerKey struct{}

// FromContext returns the logger stored in ctx, or Default.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return Default()
}

// SetDefault installs l as the slog default so packages logging through
// log/slog share its handler.
func SetDefault(l Logger) {
	if sl, ok := l.(*slogLogger); ok {
		slog.SetDefault(sl.l)
	}
}

func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...)}
}

func (s *slogLogger) WithGroup(name string) Logger {
	return &slogLogger{l: s.l.WithGroup(name)}
}

func (s *slogLogger) Enabled(level slog.Level) bool {
	return s.l.Enabled(context.Background(), level)
}

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
// An empty string means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
