package main

import (
	"errors"
	"io"
	"testing"
)

func feedAll(t *testing.T, e *lineEditor, input string) (bool, error) {
	t.Helper()
	for i := 0; i < len(input); i++ {
		done, err := e.feed(input[i])
		if done || err != nil {
			return done, err
		}
	}
	return false, nil
}

func TestLineEditorEditing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "hello\r", "hello"},
		{"backspace", "helpx\x7f\x7flo\r", "hello"},
		{"insert after left", "hllo\x1b[D\x1b[D\x1b[De\r", "hello"},
		{"home and end", "ello\x01h\x05!\r", "hello!"},
		{"ctrl w", "hello world\x17there\r", "hello there"},
		{"alt backspace", "one two\x1b\x7fthree\r", "one three"},
		{"word left", "one two\x1b[1;5Dbig \r", "one big two"},
		{"delete forward", "abc\x01\x1b[3~\r", "bc"},
		{"ctrl k", "abcdef\x1b[D\x1b[D\x0b\r", "abcd"},
		{"ctrl u", "abcdef\x1b[D\x1b[D\x15\r", "ef"},
		{"control bytes ignored", "a\x02b\r", "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newLineEditor("> ", io.Discard, nil)
			done, err := feedAll(t, e, tt.input)
			if err != nil || !done {
				t.Fatalf("done=%v err=%v", done, err)
			}
			if got := e.String(); got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestLineEditorHistory(t *testing.T) {
	t.Parallel()

	e := newLineEditor("> ", io.Discard, []string{"first", "second"})
	if _, err := feedAll(t, e, "draft\x1b[A"); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if e.String() != "second" {
		t.Fatalf("up: %q", e.String())
	}
	_, _ = feedAll(t, e, "\x1b[A\x1b[A")
	if e.String() != "first" {
		t.Fatalf("up past start: %q", e.String())
	}
	_, _ = feedAll(t, e, "\x1b[B\x1b[B")
	if e.String() != "draft" {
		t.Fatalf("down restores draft: %q", e.String())
	}
}

func TestLineEditorEOF(t *testing.T) {
	t.Parallel()

	e := newLineEditor("> ", io.Discard, nil)
	if _, err := e.feed(4); !errors.Is(err, io.EOF) {
		t.Fatalf("ctrl-d on empty line: %v", err)
	}

	e = newLineEditor("> ", io.Discard, nil)
	_, _ = feedAll(t, e, "ab")
	if _, err := e.feed(4); err != nil {
		t.Fatalf("ctrl-d with text should be ignored: %v", err)
	}
	if _, err := e.feed(3); !errors.Is(err, io.EOF) {
		t.Fatalf("ctrl-c: %v", err)
	}
}

func TestRemember(t *testing.T) {
	prev := lineHistory
	t.Cleanup(func() { lineHistory = prev })
	lineHistory = nil

	remember("a")
	remember("a")
	remember("  ")
	remember("b")
	if len(lineHistory) != 2 {
		t.Fatalf("unexpected history: %q", lineHistory)
	}
	for i := range maxHistory + 10 {
		remember(string(rune('a' + i%26)))
	}
	if len(lineHistory) != maxHistory {
		t.Fatalf("history not bounded: %d", len(lineHistory))
	}
}
