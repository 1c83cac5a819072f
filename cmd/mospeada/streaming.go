package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

type StreamMode string

const (
	StreamInstant StreamMode = "instant"
	StreamQuiet   StreamMode = "quiet"
)

func parseStreamMode(s string) (StreamMode, error) {
	switch StreamMode(strings.ToLower(strings.TrimSpace(s))) {
	case StreamInstant, "":
		return StreamInstant, nil
	case StreamQuiet:
		return StreamQuiet, nil
	default:
		return "", fmt.Errorf("unknown stream mode %q (want instant or quiet)", s)
	}
}

// StreamWriter prints generated fragments. Instant mode writes each fragment
// as it arrives; quiet mode holds everything back until Flush.
type StreamWriter struct {
	mode StreamMode
	out  *bufio.Writer

	mu          sync.Mutex
	accumulator strings.Builder
}

func NewStreamWriter(mode StreamMode, w io.Writer) *StreamWriter {
	return &StreamWriter{mode: mode, out: bufio.NewWriterSize(w, 4096)}
}

// Write handles one fragment. Its signature matches pipeline.OnText.
func (w *StreamWriter) Write(fragment string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.accumulator.WriteString(fragment)
	if w.mode == StreamQuiet {
		return nil
	}
	if _, err := w.out.WriteString(fragment); err != nil {
		return err
	}
	return w.out.Flush()
}

// Flush writes anything held back and returns the full text.
func (w *StreamWriter) Flush() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	text := w.accumulator.String()
	if w.mode == StreamQuiet {
		_, _ = w.out.WriteString(text)
	}
	_ = w.out.Flush()
	return text
}

// Reset clears the accumulated text between turns.
func (w *StreamWriter) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.accumulator.Reset()
}
