package toy

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/samcharles93/mospeada/internal/safetensors"
)

const (
	TensorEmbed = "embed_tokens.weight"
	TensorHead  = "lm_head.weight"
	TensorBias  = "lm_head.bias"
	TensorDecay = "decay"
)

// ErrPosition is returned when Forward is called with a start position that
// does not match the model's cache.
var ErrPosition = errors.New("toy: start position does not match cache")

// Weights are the read-only parameters of a toy model. They may be shared
// between instances.
type Weights struct {
	Vocab  int
	Hidden int
	Embed  []float32 // [Vocab x Hidden]
	Head   []float32 // [Vocab x Hidden]
	Bias   []float32 // [Vocab]
	Decay  float32
}

// Model is a tiny recurrent language model: the hidden state decays and
// accumulates token embeddings, and logits are Head·h + Bias. It exists so
// the generation stack can run end to end without a tensor runtime.
type Model struct {
	w   *Weights
	h   []float32
	pos int
}

// New returns a model over w with a fresh cache.
func New(w *Weights) *Model {
	return &Model{w: w, h: make([]float32, w.Hidden)}
}

// Random builds deterministic random weights.
func Random(vocab, hidden int, seed int64) *Weights {
	rng := rand.New(rand.NewSource(seed))
	fill := func(n int) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = float32(rng.NormFloat64())
		}
		return out
	}
	return &Weights{
		Vocab:  vocab,
		Hidden: hidden,
		Embed:  fill(vocab * hidden),
		Head:   fill(vocab * hidden),
		Bias:   make([]float32, vocab),
		Decay:  0.5,
	}
}

// Weights exposes the shared parameters.
func (m *Model) Weights() *Weights { return m.w }

// Fork returns a new instance sharing m's weights with an empty cache.
func (m *Model) Fork() *Model { return New(m.w) }

// Position is the number of tokens consumed since the last Reset.
func (m *Model) Position() int { return m.pos }

func (m *Model) Reset() {
	clear(m.h)
	m.pos = 0
}

// Forward consumes tokens starting at startPos and returns one logits row
// per token.
func (m *Model) Forward(tokens []int, startPos int) ([][]float32, error) {
	if startPos != m.pos {
		return nil, fmt.Errorf("%w: got %d, cache at %d", ErrPosition, startPos, m.pos)
	}
	if len(tokens) == 0 {
		return nil, errors.New("toy: empty input")
	}
	w := m.w
	rows := make([][]float32, len(tokens))
	for i, tok := range tokens {
		if tok < 0 || tok >= w.Vocab {
			return nil, fmt.Errorf("toy: token %d outside vocabulary of %d", tok, w.Vocab)
		}
		emb := w.Embed[tok*w.Hidden : (tok+1)*w.Hidden]
		for j := range m.h {
			m.h[j] = w.Decay*m.h[j] + emb[j]
		}
		row := make([]float32, w.Vocab)
		for v := 0; v < w.Vocab; v++ {
			head := w.Head[v*w.Hidden : (v+1)*w.Hidden]
			var sum float32
			for j, hv := range m.h {
				sum += head[j] * hv
			}
			row[v] = sum + w.Bias[v]
		}
		rows[i] = row
		m.pos++
	}
	return rows, nil
}

// Load reads weights from one or more safetensors files. Tensors may be
// spread across shards.
func Load(paths []string) (*Weights, error) {
	if len(paths) == 0 {
		return nil, errors.New("toy: no weight files")
	}
	byName := make(map[string]*safetensors.File)
	for _, p := range paths {
		f, err := safetensors.Open(p)
		if err != nil {
			return nil, err
		}
		for name := range f.Tensors {
			byName[name] = f
		}
	}
	read := func(name string, required bool) ([]float32, []int, error) {
		f, ok := byName[name]
		if !ok {
			if required {
				return nil, nil, fmt.Errorf("toy: tensor %s not found", name)
			}
			return nil, nil, nil
		}
		data, info, err := f.ReadTensorF32(name)
		if err != nil {
			return nil, nil, err
		}
		return data, info.Shape, nil
	}

	embed, eshape, err := read(TensorEmbed, true)
	if err != nil {
		return nil, err
	}
	if len(eshape) != 2 {
		return nil, fmt.Errorf("toy: %s must be 2-D, got %v", TensorEmbed, eshape)
	}
	vocab, hidden := eshape[0], eshape[1]

	head, hshape, err := read(TensorHead, false)
	if err != nil {
		return nil, err
	}
	if head == nil {
		// Tied embeddings.
		head = embed
	} else if len(hshape) != 2 || hshape[0] != vocab || hshape[1] != hidden {
		return nil, fmt.Errorf("toy: %s shape %v does not match embedding %v", TensorHead, hshape, eshape)
	}

	bias, _, err := read(TensorBias, false)
	if err != nil {
		return nil, err
	}
	if bias == nil {
		bias = make([]float32, vocab)
	} else if len(bias) != vocab {
		return nil, fmt.Errorf("toy: %s has %d values, want %d", TensorBias, len(bias), vocab)
	}

	decay := float32(0.5)
	if d, _, err := read(TensorDecay, false); err != nil {
		return nil, err
	} else if len(d) == 1 {
		decay = d[0]
	}

	return &Weights{Vocab: vocab, Hidden: hidden, Embed: embed, Head: head, Bias: bias, Decay: decay}, nil
}

// Tensors returns the weights in safetensors layout.
func (w *Weights) Tensors() map[string]safetensors.Tensor {
	return map[string]safetensors.Tensor{
		TensorEmbed: {Shape: []int{w.Vocab, w.Hidden}, Data: w.Embed},
		TensorHead:  {Shape: []int{w.Vocab, w.Hidden}, Data: w.Head},
		TensorBias:  {Shape: []int{w.Vocab}, Data: w.Bias},
		TensorDecay: {Shape: []int{}, Data: []float32{w.Decay}},
	}
}
