// Package reasoning separates <think>...</think> blocks from model output.
package reasoning

import "strings"

const (
	openTag  = "<think>"
	closeTag = "</think>"
)

type SplitResult struct {
	Content   string
	Reasoning string
}

// SplitRaw separates content and reasoning in a complete output. Tags match
// case-insensitively. An unclosed block runs to the end of the text.
func SplitRaw(raw string) SplitResult {
	var s Splitter
	c1, r1 := s.Push(raw)
	c2, r2 := s.Flush()
	return SplitResult{Content: c1 + c2, Reasoning: r1 + r2}
}

// Splitter splits streamed text incrementally. Text that could be the start
// of a tag is held back until the next Push or Flush decides it.
type Splitter struct {
	thinking bool
	pending  string
}

// Push consumes delta and returns the content and reasoning that are now
// certain.
func (s *Splitter) Push(delta string) (content, reasoning string) {
	text := s.pending + delta
	s.pending = ""
	var c, r strings.Builder
	for text != "" {
		tag := openTag
		out := &c
		if s.thinking {
			tag = closeTag
			out = &r
		}
		if i := indexFold(text, tag); i >= 0 {
			out.WriteString(text[:i])
			text = text[i+len(tag):]
			s.thinking = !s.thinking
			continue
		}
		keep := partialSuffix(text, tag)
		out.WriteString(text[:len(text)-keep])
		s.pending = text[len(text)-keep:]
		break
	}
	return c.String(), r.String()
}

// Flush releases held-back text at the end of the stream.
func (s *Splitter) Flush() (content, reasoning string) {
	rest := s.pending
	s.pending = ""
	if s.thinking {
		return "", rest
	}
	return rest, ""
}

// Thinking reports whether the stream is inside a think block.
func (s *Splitter) Thinking() bool { return s.thinking }

func indexFold(s, tag string) int {
	for i := 0; i+len(tag) <= len(s); i++ {
		if tagAt(s[i:], tag) {
			return i
		}
	}
	return -1
}

// partialSuffix is the length of the longest suffix of s that is a proper
// prefix of tag.
func partialSuffix(s, tag string) int {
	for n := min(len(s), len(tag)-1); n > 0; n-- {
		if tagAt(s[len(s)-n:], tag[:n]) {
			return n
		}
	}
	return 0
}

// tagAt reports whether s starts with the lowercase ASCII tag, ignoring ASCII
// case. Offsets stay in bytes of s.
func tagAt(s, tag string) bool {
	if len(s) < len(tag) {
		return false
	}
	for i := 0; i < len(tag); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != tag[i] {
			return false
		}
	}
	return true
}
