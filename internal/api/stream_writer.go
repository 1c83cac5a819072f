package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

var errStreamingUnsupported = errors.New("streaming unsupported")

// sseWriter writes server-sent events, flushing after each one. Headers are
// written with the first event so a handler can still fall back to a JSON
// error before anything is sent.
type sseWriter struct {
	w     http.ResponseWriter
	flush func()
	sent  int
}

func newSSEWriter(c *echo.Context) (*sseWriter, error) {
	res := c.Response()
	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return nil, errStreamingUnsupported
	}
	return &sseWriter{w: res, flush: flusher.Flush}, nil
}

func (s *sseWriter) writeHeaders() {
	h := s.w.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Send writes v as one data event.
func (s *sseWriter) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if s.sent == 0 {
		s.writeHeaders()
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	s.flush()
	s.sent++
	return nil
}

// Error writes an error event in the same shape as non-streaming errors.
func (s *sseWriter) Error(err error) error {
	_, typ := statusFor(err)
	return s.Send(map[string]ErrorBody{"error": {Message: err.Error(), Type: typ}})
}

// Done writes the terminating sentinel.
func (s *sseWriter) Done() error {
	if _, err := io.WriteString(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.flush()
	return nil
}
