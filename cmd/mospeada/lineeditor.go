package main

import (
	"fmt"
	"io"
	"strings"
)

const maxHistory = 200

// lineHistory is shared by every prompt of one chat process.
var lineHistory []string

func remember(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if n := len(lineHistory); n > 0 && lineHistory[n-1] == line {
		return
	}
	lineHistory = append(lineHistory, line)
	if len(lineHistory) > maxHistory {
		lineHistory = lineHistory[len(lineHistory)-maxHistory:]
	}
}

type escState int

const (
	escNone escState = iota
	escStart
	escCSI
)

// lineEditor is the key handling of the raw-mode prompt. It is fed one byte
// at a time and redraws to out.
type lineEditor struct {
	prompt string
	out    io.Writer
	line   []byte
	cursor int

	esc    escState
	escBuf strings.Builder

	history  []string
	histPos  int
	browsing bool
	draft    string
}

func newLineEditor(prompt string, out io.Writer, history []string) *lineEditor {
	return &lineEditor{prompt: prompt, out: out, history: history, histPos: len(history)}
}

func (e *lineEditor) String() string { return string(e.line) }

func (e *lineEditor) redraw() {
	_, _ = fmt.Fprintf(e.out, "\r%s%s\x1b[K", e.prompt, e.line)
	if e.cursor < len(e.line) {
		_, _ = fmt.Fprintf(e.out, "\r%s%s", e.prompt, e.line[:e.cursor])
	}
}

func isBlank(b byte) bool { return b == ' ' || b == '\t' }

func (e *lineEditor) wordLeft() int {
	i := e.cursor
	for i > 0 && isBlank(e.line[i-1]) {
		i--
	}
	for i > 0 && !isBlank(e.line[i-1]) {
		i--
	}
	return i
}

func (e *lineEditor) wordRight() int {
	i := e.cursor
	for i < len(e.line) && isBlank(e.line[i]) {
		i++
	}
	for i < len(e.line) && !isBlank(e.line[i]) {
		i++
	}
	return i
}

func (e *lineEditor) moveTo(i int) {
	if i != e.cursor {
		e.cursor = i
		e.redraw()
	}
}

// cut removes line[from:to] and leaves the cursor at from.
func (e *lineEditor) cut(from, to int) {
	if from >= to {
		return
	}
	e.line = append(e.line[:from], e.line[to:]...)
	e.cursor = from
	e.redraw()
}

func (e *lineEditor) insert(b byte) {
	e.line = append(e.line, 0)
	copy(e.line[e.cursor+1:], e.line[e.cursor:])
	e.line[e.cursor] = b
	e.cursor++
	e.redraw()
}

func (e *lineEditor) recall(delta int) {
	if len(e.history) == 0 {
		return
	}
	if !e.browsing {
		if delta > 0 {
			return
		}
		e.draft = string(e.line)
		e.browsing = true
		e.histPos = len(e.history)
	}
	pos := e.histPos + delta
	switch {
	case pos < 0:
		return
	case pos >= len(e.history):
		e.histPos = len(e.history)
		e.line = append(e.line[:0], e.draft...)
		e.browsing = false
	default:
		e.histPos = pos
		e.line = append(e.line[:0], e.history[pos]...)
	}
	e.cursor = len(e.line)
	e.redraw()
}

func (e *lineEditor) csi(seq string) {
	switch seq {
	case "A":
		e.recall(-1)
	case "B":
		e.recall(1)
	case "D":
		e.moveTo(max(e.cursor-1, 0))
	case "C":
		e.moveTo(min(e.cursor+1, len(e.line)))
	case "H":
		e.moveTo(0)
	case "F":
		e.moveTo(len(e.line))
	case "3~":
		e.cut(e.cursor, min(e.cursor+1, len(e.line)))
	case "1;5D", "5D":
		e.moveTo(e.wordLeft())
	case "1;5C", "5C":
		e.moveTo(e.wordRight())
	case "3;5~":
		e.cut(e.cursor, e.wordRight())
	}
}

// feed handles one input byte. done reports an accepted line; io.EOF is
// returned for Ctrl+C, or Ctrl+D on an empty line.
func (e *lineEditor) feed(b byte) (done bool, err error) {
	switch e.esc {
	case escStart:
		e.esc = escNone
		switch b {
		case '[':
			e.esc = escCSI
			e.escBuf.Reset()
		case 'b', 'B':
			e.moveTo(e.wordLeft())
		case 'f', 'F':
			e.moveTo(e.wordRight())
		case 127:
			e.cut(e.wordLeft(), e.cursor)
		}
		return false, nil
	case escCSI:
		e.escBuf.WriteByte(b)
		if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '~' {
			e.csi(e.escBuf.String())
			e.esc = escNone
		}
		return false, nil
	}

	switch b {
	case 27:
		e.esc = escStart
	case '\r', '\n':
		_, _ = io.WriteString(e.out, "\r\n")
		return true, nil
	case 3: // Ctrl+C
		_, _ = io.WriteString(e.out, "^C\r\n")
		return false, io.EOF
	case 4: // Ctrl+D
		if len(e.line) == 0 {
			_, _ = io.WriteString(e.out, "\r\n")
			return false, io.EOF
		}
	case 127, 8:
		e.cut(max(e.cursor-1, 0), e.cursor)
	case 1: // Ctrl+A
		e.moveTo(0)
	case 5: // Ctrl+E
		e.moveTo(len(e.line))
	case 11: // Ctrl+K
		e.cut(e.cursor, len(e.line))
	case 21: // Ctrl+U
		e.cut(0, e.cursor)
	case 23: // Ctrl+W
		e.cut(e.wordLeft(), e.cursor)
	default:
		if b >= 32 {
			e.insert(b)
		}
	}
	return false, nil
}
