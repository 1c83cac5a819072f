package generation

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Detokenizer is the subset of a tokenizer the output stream needs.
type Detokenizer interface {
	Decode(ids []int, skipSpecial bool) (string, error)
}

// Vocab is implemented by tokenizers that can look up a token by its string.
type Vocab interface {
	TokenID(token string) (int, bool)
}

// TextOutputStream turns a growing token sequence into text fragments that
// are only emitted once the trailing word is complete, so subword pieces and
// partial UTF-8 sequences are held back. Emitted text is valid UTF-8:
// malformed bytes become U+FFFD.
type TextOutputStream struct {
	tok     Detokenizer
	tokens  []int
	prev    int
	current int
}

// NewTextOutputStream returns an empty stream.
func NewTextOutputStream(tok Detokenizer) *TextOutputStream {
	return &TextOutputStream{tok: tok}
}

// NewTextOutputStreamWithPrefix seeds the stream with tokens that have
// already been shown to the user; only text after the prefix is emitted.
func NewTextOutputStreamWithPrefix(tok Detokenizer, prefix []int) *TextOutputStream {
	return &TextOutputStream{
		tok:     tok,
		tokens:  slices.Clone(prefix),
		prev:    len(prefix),
		current: len(prefix),
	}
}

// Push appends id and returns the newly stable text, if any.
func (s *TextOutputStream) Push(id int) (string, bool, error) {
	prevText, err := s.pendingPrefix()
	if err != nil {
		return "", false, err
	}
	s.tokens = append(s.tokens, id)
	text, err := s.tok.Decode(s.tokens[s.prev:], true)
	if err != nil {
		return "", false, err
	}
	if len(text) > len(prevText) && endsAlnum(text) {
		s.prev = s.current
		s.current = len(s.tokens)
		return validUTF8(text[len(prevText):]), true, nil
	}
	return "", false, nil
}

// DecodeRest returns any text still held back. It does not advance the
// stream, so it can be called repeatedly.
func (s *TextOutputStream) DecodeRest() (string, bool, error) {
	prevText, err := s.pendingPrefix()
	if err != nil {
		return "", false, err
	}
	text, err := s.tok.Decode(s.tokens[s.prev:], true)
	if err != nil {
		return "", false, err
	}
	if len(text) > len(prevText) {
		return validUTF8(text[len(prevText):]), true, nil
	}
	return "", false, nil
}

// DecodeAll decodes the whole history.
func (s *TextOutputStream) DecodeAll() (string, error) {
	text, err := s.tok.Decode(s.tokens, true)
	return validUTF8(text), err
}

// Decode decodes ids with the stream's tokenizer.
func (s *TextOutputStream) Decode(ids []int) (string, error) {
	return s.tok.Decode(ids, true)
}

// TokenID looks up a token in the vocabulary when the tokenizer supports it.
func (s *TextOutputStream) TokenID(token string) (int, bool) {
	v, ok := s.tok.(Vocab)
	if !ok {
		return 0, false
	}
	return v.TokenID(token)
}

// Tokens returns a copy of the history.
func (s *TextOutputStream) Tokens() []int { return slices.Clone(s.tokens) }

// Clear drops the history and rewinds both offsets.
func (s *TextOutputStream) Clear() {
	s.tokens = s.tokens[:0]
	s.prev = 0
	s.current = 0
}

func (s *TextOutputStream) pendingPrefix() (string, error) {
	if len(s.tokens) == 0 || s.prev == s.current {
		return "", nil
	}
	return s.tok.Decode(s.tokens[s.prev:s.current], true)
}

func validUTF8(s string) string { return strings.ToValidUTF8(s, "\uFFFD") }

func endsAlnum(text string) bool {
	r, size := utf8.DecodeLastRuneInString(text)
	if r == utf8.RuneError && size <= 1 {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Other_Alphabetic, r)
}
