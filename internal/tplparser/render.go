package tplparser

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupported is returned by Resolve when no renderer matches.
var ErrUnsupported = errors.New("unsupported chat template")

// Family names a supported template family.
type Family string

const (
	FamilyChatML  Family = "chatml"
	FamilyQwen    Family = "qwen"
	FamilyLlama3  Family = "llama3"
	FamilyMistral Family = "mistral"
	FamilyGemma   Family = "gemma"

	// FamilyJinja executes the template source itself.
	FamilyJinja Family = "jinja"
)

var renderers = map[Family]Renderer{
	FamilyChatML:  renderChatML,
	FamilyQwen:    renderQwen,
	FamilyLlama3:  renderLlama3,
	FamilyMistral: renderMistral,
	FamilyGemma:   renderGemma,
}

// Resolve picks a renderer by architecture first and by template signature
// second. An empty template with a known architecture uses that family's
// default layout. Any other non-empty template is compiled as Jinja.
func Resolve(template, arch string) (Family, Renderer, error) {
	if f, ok := familyByArch(arch); ok {
		return f, renderers[f], nil
	}
	if f, ok := familyBySignature(template); ok {
		return f, renderers[f], nil
	}
	if strings.TrimSpace(template) == "" {
		return "", nil, ErrUnsupported
	}
	r, err := compileJinja(template)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return FamilyJinja, r, nil
}

// Render resolves and renders in one call.
func Render(template, arch string, opts RenderOptions) (string, error) {
	_, r, err := Resolve(template, arch)
	if err != nil {
		return "", err
	}
	opts.Template = template
	return r(opts)
}

func familyByArch(arch string) (Family, bool) {
	switch strings.ToLower(strings.TrimSpace(arch)) {
	case "qwen2", "qwen3", "qwen2_5", "qwen2.5":
		return FamilyQwen, true
	case "lfm2", "smollm", "chatml":
		return FamilyChatML, true
	case "llama", "llama3":
		return FamilyLlama3, true
	case "mistral", "mistral3", "ministral":
		return FamilyMistral, true
	case "gemma", "gemma2", "gemma3", "gemma3_text":
		return FamilyGemma, true
	default:
		return "", false
	}
}

func familyBySignature(tpl string) (Family, bool) {
	switch {
	case tpl == "":
		return "", false
	case strings.Contains(tpl, "<start_of_turn>"):
		return FamilyGemma, true
	case strings.Contains(tpl, "[INST]"):
		return FamilyMistral, true
	case strings.Contains(tpl, "<|start_header_id|>"):
		return FamilyLlama3, true
	case strings.Contains(tpl, "<tools>") || strings.Contains(tpl, "<tool_call>"):
		return FamilyQwen, true
	case strings.Contains(tpl, "<|im_start|>") && strings.Contains(tpl, "<|im_end|>"):
		return FamilyChatML, true
	default:
		return "", false
	}
}

// DefaultSystemPrompt returns the fallback system prompt embedded in a
// template, if it is one we recognize.
func DefaultSystemPrompt(template string) string {
	if strings.Contains(template, qwenDefaultSystem) {
		return qwenDefaultSystem
	}
	return ""
}
