// Package pipeline runs complete generation requests: prompt rendering,
// encoding, the token loop and streaming detokenization.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samcharles93/mospeada/internal/chat"
	"github.com/samcharles93/mospeada/internal/device"
	"github.com/samcharles93/mospeada/internal/generation"
	"github.com/samcharles93/mospeada/internal/logger"
	"github.com/samcharles93/mospeada/internal/metrics"
	"github.com/samcharles93/mospeada/internal/tokenizer"
)

// DefaultMaxNewTokens applies when neither the request nor the generation
// config sets a budget.
const DefaultMaxNewTokens = 256

// DefaultRepeatLastN is the repetition-penalty window used by the CLI and
// the server.
const DefaultRepeatLastN = 64

var (
	ErrEmptyPrompt = errors.New("pipeline: prompt is empty")
	ErrNoTemplate  = errors.New("pipeline: model has no chat template")
	ErrNoModel     = errors.New("pipeline: no model source configured")
)

// StopReason says why a run ended.
type StopReason string

const (
	StopEOS       StopReason = "eos"
	StopLength    StopReason = "length"
	StopCancelled StopReason = "cancelled"
)

// OnText receives each stable text fragment as it is produced. Returning an
// error aborts the run with that error.
type OnText func(fragment string) error

// Request is one generation. Exactly one of Prompt and Messages is used;
// Messages wins when both are set.
type Request struct {
	Prompt   string
	Messages []chat.Message
	Tools    []any

	// MaxNewTokens of zero falls back to the generation config.
	MaxNewTokens int
	Seed         uint64
	RepeatLastN  int

	Temperature       *float64
	TopK              *int
	TopP              *float64
	RepetitionPenalty *float32
}

// Result summarizes a finished run.
type Result struct {
	Text            string
	Tokens          []int
	PromptTokens    int
	GeneratedTokens int
	StopReason      StopReason
	Duration        time.Duration
	TokensPerSecond float64
}

// Pipeline binds a tokenizer, a chat template and generation defaults to a
// source of models. Models come from Pool when set, otherwise NewModel is
// called once per run.
type Pipeline struct {
	ModelID   string
	Tokenizer tokenizer.Tokenizer
	Template  *chat.Template
	Config    *generation.GenerationConfig
	NewModel  func() (generation.Model, error)
	Pool      *Pool
	Device    device.Device
	Metrics   *metrics.Metrics
	Logger    logger.Logger
}

// Prompt renders the text that Run would encode for req.
func (p *Pipeline) Prompt(req Request) (string, error) {
	if len(req.Messages) == 0 {
		if req.Prompt == "" {
			return "", ErrEmptyPrompt
		}
		return req.Prompt, nil
	}
	if p.Template == nil {
		return "", ErrNoTemplate
	}
	return p.Template.ApplyWithTools(req.Messages, req.Tools, true)
}

// GenerationConfig returns the defaults with req's overrides applied.
func (p *Pipeline) GenerationConfig(req Request) *generation.GenerationConfig {
	cfg := p.Config.Clone()
	if req.Temperature != nil {
		cfg.SetTemperature(*req.Temperature)
	}
	if req.TopK != nil {
		cfg.SetTopK(*req.TopK)
	}
	if req.TopP != nil {
		cfg.SetTopP(*req.TopP)
	}
	if req.RepetitionPenalty != nil {
		cfg.SetRepetitionPenalty(*req.RepetitionPenalty)
	}
	if req.MaxNewTokens > 0 {
		cfg.SetMaxNewTokens(req.MaxNewTokens)
	} else if cfg.MaxNewTokens == nil {
		cfg.SetMaxNewTokens(DefaultMaxNewTokens)
	}
	return cfg
}

// Run generates a completion for req, passing fragments to onText (which may
// be nil). Cancelling ctx stops the loop between tokens; the partial result
// is returned with StopCancelled and a nil error.
func (p *Pipeline) Run(ctx context.Context, req Request, onText OnText) (Result, error) {
	log := p.Logger
	if log == nil {
		log = logger.FromContext(ctx)
	}

	prompt, err := p.Prompt(req)
	if err != nil {
		return Result{}, err
	}
	ids, err := p.Tokenizer.Encode(prompt, true)
	if err != nil {
		return Result{}, fmt.Errorf("tokenizer: encode: %w", err)
	}
	if len(ids) == 0 {
		return Result{}, ErrEmptyPrompt
	}

	cfg := p.GenerationConfig(req)
	maxNew := cfg.MaxNewTokensOr(DefaultMaxNewTokens)

	model, release, err := p.acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Result{PromptTokens: len(ids), StopReason: StopCancelled}, nil
		}
		return Result{}, err
	}
	defer release()

	sess, err := generation.New(model, p.Device, cfg, req.Seed, req.RepeatLastN)
	if err != nil {
		return Result{}, err
	}
	log.Debug("generation started",
		"model", p.ModelID,
		"prompt_tokens", len(ids),
		"max_new_tokens", maxNew,
		"sampling", cfg.Sampling().String(),
	)

	stream := generation.NewTextOutputStream(p.Tokenizer)
	var text strings.Builder
	emit := func(s string) error {
		text.WriteString(s)
		if onText != nil {
			return onText(s)
		}
		return nil
	}

	res := Result{PromptTokens: len(ids)}
	start := time.Now()
	tok, err := sess.Apply(ids, maxNew)
	for {
		var eos *generation.EosError
		var limit *generation.MaxNewTokensError
		switch {
		case errors.As(err, &eos):
			res.StopReason = StopEOS
		case errors.As(err, &limit):
			res.StopReason = StopLength
		case err != nil:
			return Result{}, err
		}
		if res.StopReason != "" {
			break
		}

		frag, ok, perr := stream.Push(tok)
		if perr != nil {
			return Result{}, fmt.Errorf("tokenizer: decode: %w", perr)
		}
		if ok {
			if err := emit(frag); err != nil {
				return Result{}, err
			}
		}
		if ctx.Err() != nil {
			res.StopReason = StopCancelled
			break
		}
		tok, err = sess.Next()
	}

	rest, ok, err := stream.DecodeRest()
	if err != nil {
		return Result{}, fmt.Errorf("tokenizer: decode: %w", err)
	}
	if ok {
		if err := emit(rest); err != nil {
			return Result{}, err
		}
	}

	all := sess.Tokens()
	res.Tokens = all[len(ids):]
	res.Text = text.String()
	res.GeneratedTokens = sess.Generated()
	res.Duration = time.Since(start)
	if secs := res.Duration.Seconds(); secs > 0 {
		res.TokensPerSecond = float64(res.GeneratedTokens) / secs
	}

	p.Metrics.ObserveGeneration(res.PromptTokens, res.GeneratedTokens, string(res.StopReason), res.TokensPerSecond)
	log.Debug("generation finished",
		"model", p.ModelID,
		"generated", res.GeneratedTokens,
		"stop", res.StopReason,
		"tps", res.TokensPerSecond,
	)
	return res, nil
}

func (p *Pipeline) acquire(ctx context.Context) (generation.Model, func(), error) {
	if p.Pool != nil {
		return p.Pool.Acquire(ctx)
	}
	if p.NewModel == nil {
		return nil, nil, ErrNoModel
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	m, err := p.NewModel()
	if err != nil {
		return nil, nil, err
	}
	return m, func() {}, nil
}
