package tokenizer

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// HFTokenizer is a byte-level BPE tokenizer loaded from a Hugging Face
// tokenizer.json. It is safe for concurrent use.
type HFTokenizer struct {
	encoder      map[string]int
	decoder      []string
	special      []bool
	specialText  []string
	bpeRanks     map[mergeKey]int
	bytes        *byteTable
	pattern      *regexp.Regexp
	addBOS       bool
	addEOS       bool
	bosID        int
	eosID        int
	unkID        int
	ignoreMerges bool

	mu    sync.Mutex
	cache map[string][]string
}

type hfPreTokenizer struct {
	Type          string `json:"type"`
	Pretokenizers []struct {
		Type    string `json:"type"`
		Pattern struct {
			Regex string `json:"Regex"`
		} `json:"pattern"`
	} `json:"pretokenizers"`
}

type hfTokenizerJSON struct {
	Model struct {
		Type         string         `json:"type"`
		Vocab        map[string]int `json:"vocab"`
		Merges       []any          `json:"merges"`
		IgnoreMerges bool           `json:"ignore_merges"`
		UnkToken     string         `json:"unk_token"`
	} `json:"model"`
	PreTokenizer  hfPreTokenizer `json:"pre_tokenizer"`
	PostProcessor struct {
		Type       string `json:"type"`
		Processors []struct {
			Type          string `json:"type"`
			SpecialTokens map[string]struct {
				IDs []int `json:"ids"`
			} `json:"special_tokens"`
		} `json:"processors"`
	} `json:"post_processor"`
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
}

// LoadHFTokenizer reads tokenizer.json and, when tokConfig is non-empty,
// tokenizer_config.json.
func LoadHFTokenizer(tokJSON, tokConfig string) (*HFTokenizer, error) {
	data, err := os.ReadFile(tokJSON)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer %s: %w", tokJSON, err)
	}
	var cfg *Config
	if tokConfig != "" {
		if cfg, err = LoadConfig(tokConfig); err != nil {
			return nil, err
		}
	}
	tok, err := NewHFTokenizer(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tokJSON, err)
	}
	return tok, nil
}

// NewHFTokenizer builds a tokenizer from tokenizer.json bytes. cfg may be nil.
func NewHFTokenizer(tokJSON []byte, cfg *Config) (*HFTokenizer, error) {
	var tj hfTokenizerJSON
	if err := json.Unmarshal(tokJSON, &tj); err != nil {
		return nil, fmt.Errorf("parse tokenizer json: %w", err)
	}
	if strings.ToUpper(tj.Model.Type) != "BPE" {
		return nil, fmt.Errorf("unsupported tokenizer model: %s", tj.Model.Type)
	}
	if cfg == nil {
		cfg = &Config{}
	}

	encoder := make(map[string]int, len(tj.Model.Vocab)+len(tj.AddedTokens))
	maxID := -1
	for tok, id := range tj.Model.Vocab {
		encoder[tok] = id
		maxID = max(maxID, id)
	}
	for _, at := range tj.AddedTokens {
		encoder[at.Content] = at.ID
		maxID = max(maxID, at.ID)
	}
	decoder := make([]string, maxID+1)
	special := make([]bool, maxID+1)
	for tok, id := range tj.Model.Vocab {
		decoder[id] = tok
	}
	for _, at := range tj.AddedTokens {
		decoder[at.ID] = at.Content
		special[at.ID] = at.Special
	}
	for id, tok := range decoder {
		if looksSpecial(tok) {
			special[id] = true
		}
	}

	bpeRanks := parseMerges(tj.Model.Merges)

	lookup := func(tok AddedToken) int {
		if tok == "" {
			return -1
		}
		if id, ok := encoder[string(tok)]; ok {
			return id
		}
		return -1
	}
	addBOS := cfg.AddBOSToken
	bosID := lookup(cfg.BOSToken)
	eosID := lookup(cfg.EOSToken)
	// A TemplateProcessing post-processor that names a special token means
	// the model expects it prepended.
	for _, proc := range tj.PostProcessor.Processors {
		if proc.Type != "TemplateProcessing" {
			continue
		}
		for _, spec := range proc.SpecialTokens {
			if len(spec.IDs) > 0 {
				bosID = spec.IDs[0]
				addBOS = true
				break
			}
		}
	}

	unkID := -1
	if tj.Model.UnkToken != "" {
		if id, ok := encoder[tj.Model.UnkToken]; ok {
			unkID = id
		}
	}

	return &HFTokenizer{
		encoder:      encoder,
		decoder:      decoder,
		special:      special,
		specialText:  collectSpecials(decoder, special),
		bpeRanks:     bpeRanks,
		bytes:        newByteTable(),
		pattern:      buildHFPattern(tj.PreTokenizer),
		addBOS:       addBOS,
		addEOS:       cfg.AddEOSToken,
		bosID:        bosID,
		eosID:        eosID,
		unkID:        unkID,
		ignoreMerges: tj.Model.IgnoreMerges,
		cache:        make(map[string][]string),
	}, nil
}

func (t *HFTokenizer) Encode(text string, addSpecial bool) ([]int, error) {
	var ids []int
	if addSpecial && t.addBOS && t.bosID >= 0 {
		ids = append(ids, t.bosID)
	}
	for _, part := range splitSpecials(text, t.specialText) {
		if part.special {
			ids = append(ids, t.encoder[part.text])
			continue
		}
		for _, piece := range t.pattern.FindAllString(part.text, -1) {
			for _, bpeTok := range t.bpe(t.bytes.encode(piece)) {
				id, ok := t.encoder[bpeTok]
				if !ok {
					if t.unkID >= 0 {
						ids = append(ids, t.unkID)
						continue
					}
					return nil, fmt.Errorf("encode %q: %w", bpeTok, ErrUnknownToken)
				}
				ids = append(ids, id)
			}
		}
	}
	if addSpecial && t.addEOS && t.eosID >= 0 {
		ids = append(ids, t.eosID)
	}
	return ids, nil
}

// Decode maps ids back to text. Byte-level pieces that do not form complete
// UTF-8 sequences are passed through as raw bytes.
func (t *HFTokenizer) Decode(ids []int, skipSpecial bool) (string, error) {
	var b []byte
	for _, id := range ids {
		if id < 0 || id >= len(t.decoder) {
			return "", fmt.Errorf("decode id %d: %w", id, ErrUnknownToken)
		}
		if t.special[id] {
			if !skipSpecial {
				b = append(b, t.decoder[id]...)
			}
			continue
		}
		b = t.bytes.decode(b, t.decoder[id])
	}
	return string(b), nil
}

// TokenID returns the id for an exact vocabulary entry.
func (t *HFTokenizer) TokenID(token string) (int, bool) {
	id, ok := t.encoder[token]
	return id, ok
}

func (t *HFTokenizer) VocabSize() int { return len(t.decoder) }
func (t *HFTokenizer) BOSID() int     { return t.bosID }
func (t *HFTokenizer) EOSID() int     { return t.eosID }
func (t *HFTokenizer) AddBOS() bool   { return t.addBOS }

// TokenString returns the raw vocabulary entry for id.
func (t *HFTokenizer) TokenString(id int) string {
	if id < 0 || id >= len(t.decoder) {
		return ""
	}
	return t.decoder[id]
}

func (t *HFTokenizer) bpe(token string) []string {
	t.mu.Lock()
	v, ok := t.cache[token]
	t.mu.Unlock()
	if ok {
		return v
	}

	var word []string
	if _, known := t.encoder[token]; t.ignoreMerges && known {
		word = []string{token}
	} else {
		word = mergeSymbols(token, t.bpeRanks)
	}

	t.mu.Lock()
	t.cache[token] = word
	t.mu.Unlock()
	return word
}

// parseMerges ranks merges in file order. Entries are either "a b" strings
// or two-element arrays; duplicates keep their first rank.
func parseMerges(raw []any) map[mergeKey]int {
	ranks := make(map[mergeKey]int, len(raw))
	add := func(a, b string) {
		k := mergeKey{a, b}
		if _, dup := ranks[k]; !dup && a != "" && b != "" {
			ranks[k] = len(ranks)
		}
	}
	for _, m := range raw {
		switch v := m.(type) {
		case string:
			v = strings.TrimSpace(v)
			if strings.HasPrefix(v, "#") {
				continue
			}
			if fields := strings.Split(v, " "); len(fields) == 2 {
				add(fields[0], fields[1])
			}
		case []any:
			if len(v) != 2 {
				continue
			}
			a, _ := v[0].(string)
			b, _ := v[1].(string)
			add(a, b)
		}
	}
	return ranks
}

func buildHFPattern(pre hfPreTokenizer) *regexp.Regexp {
	// GPT-2 style split by default.
	pat := `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`
	if pre.Type == "Sequence" {
		for _, p := range pre.Pretokenizers {
			if p.Type == "Split" && p.Pattern.Regex != "" {
				pat = p.Pattern.Regex
				break
			}
		}
	}
	// Llama 3 and Qwen patterns use lookahead and inline flags that Go's RE2
	// rejects; substitute the equivalent llama.cpp split.
	if strings.Contains(pat, `(?!\S)`) || strings.Contains(pat, "(?i:") {
		pat = `(?:'[sS]|'[tT]|'[rR][eE]|'[vV][eE]|'[mM]|'[lL][lL]|'[dD])|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+`
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return regexp.MustCompile(`'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`)
	}
	return re
}
