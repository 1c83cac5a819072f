package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
)

// PrettyHandler renders records as
//
//	15:04:05 INFO  message key=value ...
//
// with ANSI colors. Handlers derived through WithAttrs and WithGroup share
// the parent's writer lock.
type PrettyHandler struct {
	level  slog.Leveler
	w      io.Writer
	mu     *sync.Mutex
	prefix string
	attrs  []slog.Attr
}

func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	h := &PrettyHandler{w: w, mu: &sync.Mutex{}, level: slog.LevelInfo}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	buf := make([]byte, 0, 256)
	buf = append(buf, ansiGray...)
	buf = r.Time.AppendFormat(buf, time.TimeOnly)
	buf = append(buf, ansiReset...)
	buf = append(buf, ' ')

	buf = append(buf, levelColor(r.Level)...)
	buf = append(buf, ansiBold...)
	buf = fmt.Appendf(buf, "%-5s", r.Level.String())
	buf = append(buf, ansiReset...)
	buf = append(buf, ' ')
	buf = append(buf, r.Message...)

	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		buf = append(buf, ansiCyan...)
		for _, a := range h.attrs {
			buf = appendAttr(buf, "", a)
		}
		r.Attrs(func(a slog.Attr) bool {
			buf = appendAttr(buf, h.prefix, a)
			return true
		})
		buf = append(buf, ansiReset...)
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

// WithAttrs qualifies attrs with the current group before storing them.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return ansiRed
	case level >= slog.LevelWarn:
		return ansiYellow
	case level >= slog.LevelInfo:
		return ansiBlue
	default:
		return ansiGray
	}
}

func appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range group {
			buf = appendAttr(buf, prefix, ga)
		}
		return buf
	}

	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if needsQuoting(s) {
			buf = strconv.AppendQuote(buf, s)
		} else {
			buf = append(buf, s...)
		}
	case slog.KindTime:
		buf = a.Value.Time().AppendFormat(buf, time.RFC3339)
	case slog.KindDuration:
		buf = append(buf, a.Value.Duration().Round(time.Microsecond).String()...)
	default:
		buf = fmt.Append(buf, a.Value.Any())
	}
	return buf
}

func needsQuoting(s string) bool {
	return strings.ContainsAny(s, " \t\n\"=")
}
