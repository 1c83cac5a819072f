package chat

import (
	"errors"
	"fmt"

	"github.com/samcharles93/mospeada/internal/tplparser"
)

// ErrUnsupportedTemplate is returned by New when no renderer recognizes the
// template source.
var ErrUnsupportedTemplate = errors.New("chat: unsupported template")

type Message = tplparser.Message

type ToolCall = tplparser.ToolCall

type ToolCallFunction = tplparser.ToolCallFunction

// Template is a chat template resolved once from its source. It is
// immutable and safe to share between sessions.
type Template struct {
	source        string
	arch          string
	family        tplparser.Family
	render        tplparser.Renderer
	bos           string
	eos           string
	defaultSystem string
	tokenAddsBOS  bool
}

// Options adjusts how a Template renders.
type Options struct {
	// Arch is the model architecture from config.json; it takes precedence
	// over signature matching.
	Arch string
	// TokenizerAddsBOS is set when encoding with special tokens prepends BOS,
	// so the rendered prompt must not contain it.
	TokenizerAddsBOS bool
}

// New resolves source into a Template.
func New(source, bos, eos string, opts Options) (*Template, error) {
	family, render, err := tplparser.Resolve(source, opts.Arch)
	if err != nil {
		if errors.Is(err, tplparser.ErrUnsupported) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedTemplate, err)
		}
		return nil, err
	}
	return &Template{
		source:        source,
		arch:          opts.Arch,
		family:        family,
		render:        render,
		bos:           bos,
		eos:           eos,
		defaultSystem: tplparser.DefaultSystemPrompt(source),
		tokenAddsBOS:  opts.TokenizerAddsBOS,
	}, nil
}

// Apply renders messages. With addGenerationPrompt the output ends with the
// header that opens an assistant turn.
func (t *Template) Apply(messages []Message, addGenerationPrompt bool) (string, error) {
	return t.ApplyWithTools(messages, nil, addGenerationPrompt)
}

// ApplyWithTools renders messages with tool definitions.
func (t *Template) ApplyWithTools(messages []Message, tools []any, addGenerationPrompt bool) (string, error) {
	out, err := t.render(tplparser.RenderOptions{
		Template:            t.source,
		BOSToken:            t.bos,
		EOSToken:            t.eos,
		AddBOS:              t.tokenAddsBOS,
		AddGenerationPrompt: addGenerationPrompt,
		DefaultSystem:       t.defaultSystem,
		Messages:            messages,
		Tools:               tools,
	})
	if err != nil {
		return "", fmt.Errorf("chat: render %s: %w", t.family, err)
	}
	return out, nil
}

// Source is the raw template text.
func (t *Template) Source() string { return t.source }

// Family names the renderer the template resolved to.
func (t *Template) Family() string { return string(t.family) }
