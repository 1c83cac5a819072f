package tplparser

import (
	"fmt"
	"strings"
)

func renderLlama3(opts RenderOptions) (string, error) {
	var b strings.Builder

	if !opts.AddBOS {
		bos := opts.BOSToken
		if bos == "" {
			bos = "<|begin_of_text|>"
		}
		b.WriteString(bos)
	}

	msgs := opts.Messages
	if (len(msgs) == 0 || msgs[0].Role != "system") && opts.DefaultSystem != "" {
		writeLlamaHeader(&b, "system")
		b.WriteString(opts.DefaultSystem)
		b.WriteString("<|eot_id|>")
	}

	for i, m := range msgs {
		text, err := contentText(m.Content)
		if err != nil {
			return "", fmt.Errorf("llama3: message %d: %w", i, err)
		}
		role := m.Role
		if role == "tool" {
			role = "ipython"
		}
		writeLlamaHeader(&b, role)
		b.WriteString(strings.TrimSpace(text))
		for _, call := range m.ToolCalls {
			args, err := toolArguments(call.Function.Arguments)
			if err != nil {
				return "", fmt.Errorf("llama3: tool arguments tojson: %w", err)
			}
			fmt.Fprintf(&b, `{"name": %q, "parameters": %s}`, call.Function.Name, args)
		}
		b.WriteString("<|eot_id|>")
	}
	if opts.AddGenerationPrompt {
		writeLlamaHeader(&b, "assistant")
	}
	return b.String(), nil
}

func writeLlamaHeader(b *strings.Builder, role string) {
	b.WriteString("<|start_header_id|>")
	b.WriteString(role)
	b.WriteString("<|end_header_id|>\n\n")
}
