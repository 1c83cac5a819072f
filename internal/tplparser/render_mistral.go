package tplparser

import (
	"fmt"
	"strings"
)

// renderMistral handles both the v1 layout, which folds the system prompt
// into the first user turn, and the v3 layout with [SYSTEM_PROMPT] blocks.
func renderMistral(opts RenderOptions) (string, error) {
	var b strings.Builder

	if !opts.AddBOS && opts.BOSToken != "" {
		b.WriteString(opts.BOSToken)
	}

	msgs := opts.Messages
	system := ""
	if len(msgs) > 0 && msgs[0].Role == "system" {
		s, err := contentText(msgs[0].Content)
		if err != nil {
			return "", fmt.Errorf("mistral: system content: %w", err)
		}
		system = s
		msgs = msgs[1:]
	}
	blocks := strings.Contains(opts.Template, "[SYSTEM_PROMPT]")
	if blocks && system != "" {
		b.WriteString("[SYSTEM_PROMPT]")
		b.WriteString(system)
		b.WriteString("[/SYSTEM_PROMPT]")
	}
	if len(opts.Tools) > 0 {
		j, err := jsonString(opts.Tools)
		if err != nil {
			return "", fmt.Errorf("mistral: tools tojson: %w", err)
		}
		b.WriteString("[AVAILABLE_TOOLS]")
		b.WriteString(j)
		b.WriteString("[/AVAILABLE_TOOLS]")
	}

	if err := validateAlternation(msgs); err != nil {
		return "", err
	}

	firstUser := true
	for i, msg := range msgs {
		text, err := contentText(msg.Content)
		if err != nil {
			return "", fmt.Errorf("mistral: message %d: %w", i, err)
		}
		switch msg.Role {
		case "user":
			b.WriteString("[INST]")
			if firstUser && !blocks && system != "" {
				b.WriteString(system)
				b.WriteString("\n\n")
			}
			firstUser = false
			b.WriteString(text)
			b.WriteString("[/INST]")
		case "assistant":
			if text == "" && len(msg.ToolCalls) == 0 {
				return "", fmt.Errorf("mistral: assistant message %d must have content or tool calls", i)
			}
			b.WriteString(text)
			for _, call := range msg.ToolCalls {
				args, err := toolArguments(call.Function.Arguments)
				if err != nil {
					return "", fmt.Errorf("mistral: tool args tojson: %w", err)
				}
				b.WriteString("[TOOL_CALLS]")
				b.WriteString(call.Function.Name)
				b.WriteString("[ARGS]")
				b.WriteString(args)
			}
			b.WriteString(opts.EOSToken)
		case "tool":
			b.WriteString("[TOOL_RESULTS]")
			b.WriteString(text)
			b.WriteString("[/TOOL_RESULTS]")
		default:
			return "", fmt.Errorf("mistral: unsupported role %q", msg.Role)
		}
	}
	return b.String(), nil
}

func validateAlternation(msgs []Message) error {
	index := 0
	for _, msg := range msgs {
		if msg.Role == "user" || (msg.Role == "assistant" && len(msg.ToolCalls) == 0) {
			if (msg.Role == "user") != (index%2 == 0) {
				return fmt.Errorf("mistral: messages must alternate user/assistant roles")
			}
			index++
		}
	}
	return nil
}
