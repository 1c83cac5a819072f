package generation

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/samcharles93/mospeada/internal/logits"
)

// greedyTemperature is the threshold below which sampling collapses to argmax.
const greedyTemperature = 1e-7

// EOSTokenID holds either a single end-of-sequence id or a list of them,
// matching the two shapes model repositories ship.
type EOSTokenID struct {
	ids    []int
	single bool
}

// SingleEOS returns an EOSTokenID that serializes as a bare number.
func SingleEOS(id int) EOSTokenID { return EOSTokenID{ids: []int{id}, single: true} }

// MultipleEOS returns an EOSTokenID that serializes as an array.
func MultipleEOS(ids ...int) EOSTokenID {
	return EOSTokenID{ids: append([]int(nil), ids...)}
}

// IDs returns the ids as a slice.
func (e EOSTokenID) IDs() []int { return append([]int(nil), e.ids...) }

// IsSingle reports whether the value came from a bare number.
func (e EOSTokenID) IsSingle() bool { return e.single }

func (e *EOSTokenID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var ids []int
		if err := json.Unmarshal(b, &ids); err != nil {
			return fmt.Errorf("eos_token_id: %w", err)
		}
		*e = EOSTokenID{ids: ids}
		return nil
	}
	var id int
	if err := json.Unmarshal(b, &id); err != nil {
		return fmt.Errorf("eos_token_id: expected integer or array of integers: %w", err)
	}
	*e = EOSTokenID{ids: []int{id}, single: true}
	return nil
}

func (e EOSTokenID) MarshalJSON() ([]byte, error) {
	if e.single && len(e.ids) == 1 {
		return json.Marshal(e.ids[0])
	}
	if e.ids == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(e.ids)
}

// GenerationConfig is the generation_config.json shipped with a model.
// Every field is optional.
type GenerationConfig struct {
	BOSTokenID        *int        `json:"bos_token_id,omitempty"`
	PadTokenID        *int        `json:"pad_token_id,omitempty"`
	EOSTokenID        *EOSTokenID `json:"eos_token_id,omitempty"`
	DoSample          *bool       `json:"do_sample,omitempty"`
	Temperature       *float64    `json:"temperature,omitempty"`
	RepetitionPenalty *float32    `json:"repetition_penalty,omitempty"`
	TopP              *float64    `json:"top_p,omitempty"`
	TopK              *int        `json:"top_k,omitempty"`
	MaxNewTokens      *int        `json:"max_new_tokens,omitempty"`
}

// ParseGenerationConfig decodes a generation config document.
func ParseGenerationConfig(data []byte) (*GenerationConfig, error) {
	var cfg GenerationConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse generation config: %w", err)
	}
	return &cfg, nil
}

// ReadGenerationConfig decodes a generation config from r.
func ReadGenerationConfig(r io.Reader) (*GenerationConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read generation config: %w", err)
	}
	return ParseGenerationConfig(data)
}

// LoadGenerationConfig reads and decodes the file at path.
func LoadGenerationConfig(path string) (*GenerationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read generation config %s: %w", path, err)
	}
	cfg, err := ParseGenerationConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// EOSTokenIDs flattens eos_token_id. A missing value yields an empty list.
func (c *GenerationConfig) EOSTokenIDs() []int {
	if c == nil || c.EOSTokenID == nil {
		return []int{}
	}
	return c.EOSTokenID.IDs()
}

// Sampling resolves the configured fields into a sampling strategy.
func (c *GenerationConfig) Sampling() logits.Sampling {
	if c == nil || c.Temperature == nil || *c.Temperature < greedyTemperature {
		return logits.ArgMax{}
	}
	t := *c.Temperature
	switch {
	case c.TopK == nil && c.TopP == nil:
		return logits.All{Temperature: t}
	case c.TopP == nil:
		return logits.TopK{K: *c.TopK, Temperature: t}
	case c.TopK == nil:
		return logits.TopP{P: *c.TopP, Temperature: t}
	default:
		return logits.TopKThenTopP{K: *c.TopK, P: *c.TopP, Temperature: t}
	}
}

// RepetitionPenaltyOr returns repetition_penalty or def when unset.
func (c *GenerationConfig) RepetitionPenaltyOr(def float32) float32 {
	if c == nil || c.RepetitionPenalty == nil {
		return def
	}
	return *c.RepetitionPenalty
}

// MaxNewTokensOr returns max_new_tokens or def when unset.
func (c *GenerationConfig) MaxNewTokensOr(def int) int {
	if c == nil || c.MaxNewTokens == nil {
		return def
	}
	return *c.MaxNewTokens
}

func (c *GenerationConfig) SetTemperature(v float64) *GenerationConfig {
	c.Temperature = &v
	return c
}

func (c *GenerationConfig) SetTopK(v int) *GenerationConfig {
	c.TopK = &v
	return c
}

func (c *GenerationConfig) SetTopP(v float64) *GenerationConfig {
	c.TopP = &v
	return c
}

func (c *GenerationConfig) SetRepetitionPenalty(v float32) *GenerationConfig {
	c.RepetitionPenalty = &v
	return c
}

func (c *GenerationConfig) SetMaxNewTokens(v int) *GenerationConfig {
	c.MaxNewTokens = &v
	return c
}

func (c *GenerationConfig) SetEOSTokenIDs(ids ...int) *GenerationConfig {
	var e EOSTokenID
	if len(ids) == 1 {
		e = SingleEOS(ids[0])
	} else {
		e = MultipleEOS(ids...)
	}
	c.EOSTokenID = &e
	return c
}

// Clone returns a deep copy so overrides do not leak into a shared config.
func (c *GenerationConfig) Clone() *GenerationConfig {
	if c == nil {
		return &GenerationConfig{}
	}
	out := *c
	if c.EOSTokenID != nil {
		e := EOSTokenID{ids: c.EOSTokenID.IDs(), single: c.EOSTokenID.single}
		out.EOSTokenID = &e
	}
	out.BOSTokenID = clonePtr(c.BOSTokenID)
	out.PadTokenID = clonePtr(c.PadTokenID)
	out.DoSample = clonePtr(c.DoSample)
	out.Temperature = clonePtr(c.Temperature)
	out.RepetitionPenalty = clonePtr(c.RepetitionPenalty)
	out.TopP = clonePtr(c.TopP)
	out.TopK = clonePtr(c.TopK)
	out.MaxNewTokens = clonePtr(c.MaxNewTokens)
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
