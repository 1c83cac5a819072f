package generation

import (
	"fmt"
	"slices"

	"github.com/samcharles93/mospeada/internal/device"
	"github.com/samcharles93/mospeada/internal/logits"
)

// Model is the language-model capability the session drives.
//
// Forward runs the given token window starting at startPos and returns one
// row of vocabulary scores per position. Reset clears any recurrent cache so
// the next Forward starts from position zero.
type Model interface {
	Forward(tokens []int, startPos int) ([][]float32, error)
	Reset()
}

type sampler interface {
	Sample(scores []float32) (int, error)
}

// TextGeneration is a single-stream generation session. It is not safe for
// concurrent use; each session needs exclusive access to its model.
type TextGeneration struct {
	model  Model
	device device.Device
	proc   sampler

	eos          []int
	penalty      float32
	repeatLastN  int
	maxNewTokens int

	tokens    []int
	generated int
	failed    error
}

// New builds a session over model. seed drives the sampler; repeatLastN is
// the number of trailing history tokens the repetition penalty looks at.
func New(model Model, dev device.Device, cfg *GenerationConfig, seed uint64, repeatLastN int) (*TextGeneration, error) {
	eos := cfg.EOSTokenIDs()
	if len(eos) == 0 {
		return nil, ErrNoEOS
	}
	return &TextGeneration{
		model:        model,
		device:       dev,
		proc:         logits.NewProcessor(seed, cfg.Sampling()),
		eos:          eos,
		penalty:      cfg.RepetitionPenaltyOr(1.0),
		repeatLastN:  max(repeatLastN, 0),
		maxNewTokens: cfg.MaxNewTokensOr(0),
	}, nil
}

// Apply replaces the session state with prompt and samples the first token.
func (g *TextGeneration) Apply(prompt []int, maxNewTokens int) (int, error) {
	g.model.Reset()
	g.tokens = append(g.tokens[:0], prompt...)
	g.generated = 0
	g.maxNewTokens = maxNewTokens
	g.failed = nil
	return g.step(g.tokens)
}

// Next samples one more token, feeding only the most recent token.
func (g *TextGeneration) Next() (int, error) {
	if g.failed != nil {
		return 0, fmt.Errorf("%w: %w", ErrSessionFailed, g.failed)
	}
	if len(g.tokens) == 0 {
		return 0, ErrEmptyHistory
	}
	return g.step(g.tokens[len(g.tokens)-1:])
}

// Reset clears the model cache and the session history.
func (g *TextGeneration) Reset() {
	g.model.Reset()
	g.tokens = g.tokens[:0]
	g.generated = 0
	g.failed = nil
}

func (g *TextGeneration) step(window []int) (int, error) {
	if g.generated >= g.maxNewTokens {
		return 0, &MaxNewTokensError{Limit: g.maxNewTokens}
	}
	start := len(g.tokens) - len(window)

	rows, err := g.forward(window, start)
	if err != nil {
		g.failed = err
		return 0, err
	}
	if len(rows) == 0 {
		g.failed = fmt.Errorf("model returned no logits for %d tokens at position %d", len(window), start)
		return 0, g.failed
	}
	scores := rows[len(rows)-1]
	if g.penalty != 1.0 {
		from := max(len(g.tokens)-g.repeatLastN, 0)
		scores = logits.ApplyRepeatPenalty(scores, g.penalty, g.tokens[from:])
	}

	next, err := g.proc.Sample(scores)
	if err != nil {
		g.failed = err
		return 0, err
	}
	g.tokens = append(g.tokens, next)
	g.generated++

	if slices.Contains(g.eos, next) {
		return next, &EosError{Token: next, Generated: g.generated}
	}
	return next, nil
}

func (g *TextGeneration) forward(window []int, start int) (rows [][]float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in model forward at position %d: %v", start, r)
		}
	}()
	return g.model.Forward(window, start)
}

// Tokens returns a copy of the full history, prompt included.
func (g *TextGeneration) Tokens() []int { return slices.Clone(g.tokens) }

// Generated is the number of tokens sampled since the last Apply.
func (g *TextGeneration) Generated() int { return g.generated }

// MaxNewTokens is the current new-token budget.
func (g *TextGeneration) MaxNewTokens() int { return g.maxNewTokens }

// Device is the device the session was created for.
func (g *TextGeneration) Device() device.Device { return g.device }

// EOSTokenIDs returns the stop set.
func (g *TextGeneration) EOSTokenIDs() []int { return slices.Clone(g.eos) }
