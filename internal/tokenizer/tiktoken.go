package tokenizer

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TikToken adapts a tiktoken encoding to the Tokenizer interface. It is used
// for repositories that ship no tokenizer.json but name an OpenAI encoding.
type TikToken struct {
	enc     *tiktoken.Tiktoken
	name    string
	special map[string]int
	byID    map[int]string
}

// tiktokenSpecials lists the control tokens of the encodings we accept.
var tiktokenSpecials = map[string]map[string]int{
	"cl100k_base": {
		"<|endoftext|>":   100257,
		"<|fim_prefix|>":  100258,
		"<|fim_middle|>":  100259,
		"<|fim_suffix|>":  100260,
		"<|endofprompt|>": 100276,
	},
	"p50k_base": {"<|endoftext|>": 50256},
	"r50k_base": {"<|endoftext|>": 50256},
}

// NewTikToken loads the named encoding.
func NewTikToken(encoding string) (*TikToken, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}
	special := tiktokenSpecials[encoding]
	byID := make(map[int]string, len(special))
	for s, id := range special {
		byID[id] = s
	}
	return &TikToken{enc: enc, name: encoding, special: special, byID: byID}, nil
}

func (t *TikToken) Encode(text string, addSpecial bool) ([]int, error) {
	if addSpecial {
		return t.enc.Encode(text, []string{"all"}, nil), nil
	}
	// Without special handling, control strings in user text are encoded as
	// ordinary bytes.
	return t.enc.Encode(text, nil, []string{}), nil
}

func (t *TikToken) Decode(ids []int, skipSpecial bool) (string, error) {
	if !skipSpecial {
		return t.enc.Decode(ids), nil
	}
	kept := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := t.byID[id]; ok {
			continue
		}
		kept = append(kept, id)
	}
	return t.enc.Decode(kept), nil
}

// TokenID resolves control tokens and single-token pieces.
func (t *TikToken) TokenID(token string) (int, bool) {
	if id, ok := t.special[token]; ok {
		return id, true
	}
	if strings.HasPrefix(token, "<|") {
		return 0, false
	}
	ids := t.enc.Encode(token, nil, []string{})
	if len(ids) != 1 {
		return 0, false
	}
	return ids[0], true
}

func (t *TikToken) VocabSize() int {
	switch t.name {
	case "cl100k_base":
		return 100277
	default:
		return 50257
	}
}

// Name is the encoding name.
func (t *TikToken) Name() string { return t.name }
