package toy

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/samcharles93/mospeada/internal/safetensors"
	"github.com/samcharles93/mospeada/internal/tokenizer"
)

// Special tokens appended after the 256 byte-level tokens.
const (
	TokenIMStart   = "<|im_start|>"
	TokenIMEnd     = "<|im_end|>"
	TokenEndOfText = "<|endoftext|>"
)

const chatMLTemplate = "{% for message in messages %}{{'<|im_start|>' + message['role'] + '\\n' + message['content'] + '<|im_end|>' + '\\n'}}{% endfor %}{% if add_generation_prompt %}{{ '<|im_start|>assistant\\n' }}{% endif %}"

// ScaffoldOptions controls Scaffold.
type ScaffoldOptions struct {
	Hidden int
	Seed   int64
	// Shards > 1 splits the weights and writes model.safetensors.index.json.
	Shards int
	// Temperature, when positive, is written to generation_config.json.
	Temperature  float64
	MaxNewTokens int
}

// Scaffold writes a self-contained model repository to dir: a byte-level
// tokenizer, a ChatML template, a generation config and random weights.
func Scaffold(dir string, opts ScaffoldOptions) error {
	if opts.Hidden <= 0 {
		opts.Hidden = 16
	}
	if opts.MaxNewTokens <= 0 {
		opts.MaxNewTokens = 64
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	alphabet := tokenizer.ByteLevelAlphabet()
	vocab := make(map[string]int, len(alphabet))
	for id, s := range alphabet {
		vocab[s] = id
	}
	specials := []string{TokenIMStart, TokenIMEnd, TokenEndOfText}
	added := make([]map[string]any, len(specials))
	for i, s := range specials {
		added[i] = map[string]any{"id": len(alphabet) + i, "content": s, "special": true}
	}
	vocabSize := len(alphabet) + len(specials)
	imEnd := len(alphabet) + 1
	endOfText := len(alphabet) + 2

	gen := map[string]any{
		"eos_token_id":   []int{imEnd, endOfText},
		"max_new_tokens": opts.MaxNewTokens,
	}
	if opts.Temperature > 0 {
		gen["temperature"] = opts.Temperature
		gen["top_p"] = 0.9
	}

	docs := map[string]any{
		"tokenizer.json": map[string]any{
			"model":        map[string]any{"type": "BPE", "vocab": vocab, "merges": []string{}},
			"added_tokens": added,
		},
		"tokenizer_config.json": map[string]any{
			"add_bos_token": false,
			"eos_token":     TokenIMEnd,
			"chat_template": chatMLTemplate,
		},
		"config.json": map[string]any{
			"model_type":  "toy",
			"vocab_size":  vocabSize,
			"hidden_size": opts.Hidden,
		},
		"generation_config.json": gen,
	}
	for name, doc := range docs {
		b, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), b, 0o644); err != nil {
			return err
		}
	}

	w := Random(vocabSize, opts.Hidden, opts.Seed)
	// Damp the end tokens so sampled text has some length before stopping.
	w.Bias[imEnd] = -4
	w.Bias[endOfText] = -4
	return writeWeights(dir, w, opts.Shards)
}

func writeWeights(dir string, w *Weights, shards int) error {
	tensors := w.Tensors()
	if shards <= 1 {
		return safetensors.WriteF32(filepath.Join(dir, "model.safetensors"), tensors, map[string]string{"format": "pt"})
	}

	names := []string{TensorEmbed, TensorHead, TensorBias, TensorDecay}
	shards = min(shards, len(names))
	parts := make([]map[string]safetensors.Tensor, shards)
	weightMap := make(map[string]string, len(names))
	for i := range parts {
		parts[i] = make(map[string]safetensors.Tensor)
	}
	for i, name := range names {
		s := i % shards
		parts[s][name] = tensors[name]
		weightMap[name] = fmt.Sprintf("model-%05d-of-%05d.safetensors", s+1, shards)
	}
	for i, part := range parts {
		file := fmt.Sprintf("model-%05d-of-%05d.safetensors", i+1, shards)
		if err := safetensors.WriteF32(filepath.Join(dir, file), part, map[string]string{"format": "pt"}); err != nil {
			return err
		}
	}
	index, err := json.MarshalIndent(map[string]any{
		"metadata":   map[string]any{"total_size": 4 * (2*w.Vocab*w.Hidden + w.Vocab + 1)},
		"weight_map": weightMap,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "model.safetensors.index.json"), index, 0o644)
}
