package tokenizer

import (
	"math"
	"slices"
	"strings"
)

// mergeKey is an adjacent symbol pair in a BPE merge table.
type mergeKey struct{ left, right string }

// byteTable is the GPT-2 byte-to-rune mapping that keeps every vocabulary
// entry printable.
type byteTable struct {
	enc [256]string
	dec map[string]byte
}

func newByteTable() *byteTable {
	t := &byteTable{dec: make(map[string]byte, 256)}
	printable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}
	shift := 0
	for b := range 256 {
		r := rune(b)
		if !printable(b) {
			r = rune(256 + shift)
			shift++
		}
		t.enc[b] = string(r)
		t.dec[string(r)] = byte(b)
	}
	return t
}

func (t *byteTable) encode(s string) string {
	var b strings.Builder
	b.Grow(2 * len(s))
	for i := 0; i < len(s); i++ {
		b.WriteString(t.enc[s[i]])
	}
	return b.String()
}

// decode appends the raw bytes behind a vocabulary entry. Runes outside the
// table are kept as UTF-8.
func (t *byteTable) decode(dst []byte, piece string) []byte {
	for _, r := range piece {
		if by, ok := t.dec[string(r)]; ok {
			dst = append(dst, by)
		} else {
			dst = append(dst, string(r)...)
		}
	}
	return dst
}

// ByteLevelAlphabet returns the printable rune used for each byte value, in
// byte order. A vocabulary built from it can encode any input.
func ByteLevelAlphabet() []string {
	t := newByteTable()
	return slices.Clone(t.enc[:])
}

// mergeSymbols applies ranked merges to the runes of word until no adjacent
// pair has a rank.
func mergeSymbols(word string, ranks map[mergeKey]int) []string {
	syms := make([]string, 0, len(word))
	for _, r := range word {
		syms = append(syms, string(r))
	}
	for len(syms) > 1 {
		best, at := math.MaxInt, -1
		for i := 0; i+1 < len(syms); i++ {
			if r, ok := ranks[mergeKey{syms[i], syms[i+1]}]; ok && r < best {
				best, at = r, i
			}
		}
		if at < 0 {
			break
		}
		key := mergeKey{syms[at], syms[at+1]}
		out := syms[:at]
		for i := at; i < len(syms); i++ {
			if i+1 < len(syms) && syms[i] == key.left && syms[i+1] == key.right {
				out = append(out, key.left+key.right)
				i++
				continue
			}
			out = append(out, syms[i])
		}
		syms = out
	}
	return syms
}

// looksSpecial reports whether a vocabulary entry has the <|name|> shape.
func looksSpecial(s string) bool {
	return len(s) >= 4 && strings.HasPrefix(s, "<|") && strings.HasSuffix(s, "|>")
}

// collectSpecials returns the text of every special entry, longest first.
func collectSpecials(tokens []string, special []bool) []string {
	var out []string
	for id, t := range tokens {
		if special[id] && t != "" {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b string) int { return len(b) - len(a) })
	return out
}

type segment struct {
	text    string
	special bool
}

// splitSpecials cuts text around the leftmost, longest special match.
func splitSpecials(text string, specials []string) []segment {
	if len(specials) == 0 {
		return []segment{{text: text}}
	}
	var out []segment
	for text != "" {
		at, match := -1, ""
		for _, sp := range specials {
			i := strings.Index(text, sp)
			if i >= 0 && (at < 0 || i < at || (i == at && len(sp) > len(match))) {
				at, match = i, sp
			}
		}
		if at < 0 {
			out = append(out, segment{text: text})
			break
		}
		if at > 0 {
			out = append(out, segment{text: text[:at]})
		}
		out = append(out, segment{text: match, special: true})
		text = text[at+len(match):]
	}
	return out
}
