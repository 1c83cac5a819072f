package tplparser

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/nikolalohinski/gonja/v2"
	"github.com/nikolalohinski/gonja/v2/exec"
	"github.com/nikolalohinski/gonja/v2/loaders"
)

const jinjaTemplateName = "/chat_template"

// compileJinja parses a Hugging Face chat_template with the environment
// transformers uses: trim_blocks and lstrip_blocks on.
func compileJinja(source string) (Renderer, error) {
	loader, err := loaders.NewMemoryLoader(map[string]string{jinjaTemplateName: source})
	if err != nil {
		return nil, err
	}
	cfg := gonja.DefaultConfig.Inherit()
	cfg.TrimBlocks = true
	cfg.LeftStripBlocks = true
	tpl, err := exec.NewTemplate(jinjaTemplateName, cfg, loader, gonja.DefaultEnvironment)
	if err != nil {
		return nil, err
	}
	return func(opts RenderOptions) (string, error) {
		return renderJinja(tpl, opts)
	}, nil
}

func renderJinja(tpl *exec.Template, opts RenderOptions) (string, error) {
	msgs := make([]map[string]any, len(opts.Messages))
	for i, m := range opts.Messages {
		msg, err := jinjaMessage(m)
		if err != nil {
			return "", err
		}
		msgs[i] = msg
	}
	data := map[string]any{
		"messages":              msgs,
		"bos_token":             opts.BOSToken,
		"eos_token":             opts.EOSToken,
		"add_generation_prompt": opts.AddGenerationPrompt,
		"raise_exception": func(msg string) (string, error) {
			return "", errors.New(msg)
		},
		"strftime_now": func(layout string) (string, error) {
			return formatStrftime(time.Now(), layout), nil
		},
	}
	if len(opts.Tools) > 0 {
		data["tools"] = opts.Tools
	}
	out, err := tpl.ExecuteToString(exec.NewContext(data))
	if err != nil {
		return "", fmt.Errorf("jinja: %w", err)
	}
	// The tokenizer adds BOS on encode; templates that print bos_token would
	// double it.
	if opts.AddBOS && opts.BOSToken != "" {
		out = strings.TrimPrefix(out, opts.BOSToken)
	}
	return out, nil
}

func jinjaMessage(m Message) (map[string]any, error) {
	text, err := contentText(m.Content)
	if err != nil {
		return nil, err
	}
	msg := map[string]any{"role": m.Role, "content": text}
	if m.Name != "" {
		msg["name"] = m.Name
	}
	if len(m.ToolCalls) > 0 {
		calls := make([]map[string]any, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			fn := map[string]any{"name": tc.Function.Name, "arguments": jinjaArguments(tc.Function.Arguments)}
			calls[i] = map[string]any{"id": tc.ID, "type": "function", "function": fn}
		}
		msg["tool_calls"] = calls
	}
	return msg, nil
}

// jinjaArguments decodes JSON-object arguments so templates can iterate or
// tojson them.
func jinjaArguments(args any) any {
	s, ok := args.(string)
	if !ok {
		return args
	}
	var obj map[string]any
	if strings.HasPrefix(strings.TrimSpace(s), "{") && json.Unmarshal([]byte(s), &obj) == nil {
		return obj
	}
	return s
}

var strftimeVerbs = strings.NewReplacer(
	"%Y", "2006", "%m", "01", "%d", "02", "%H", "15", "%M", "04", "%S", "05",
	"%b", "Jan", "%B", "January", "%a", "Mon", "%A", "Monday", "%%", "%",
)

func formatStrftime(t time.Time, layout string) string {
	return t.Format(strftimeVerbs.Replace(layout))
}
