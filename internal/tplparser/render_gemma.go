package tplparser

import (
	"fmt"
	"strings"
)

// renderGemma writes <start_of_turn> blocks. Gemma has no system role; the
// system prompt is prefixed to the first user turn.
func renderGemma(opts RenderOptions) (string, error) {
	var b strings.Builder

	if !opts.AddBOS {
		bos := opts.BOSToken
		if bos == "" {
			bos = "<bos>"
		}
		b.WriteString(bos)
	}

	msgs := opts.Messages
	prefix := ""
	if len(msgs) > 0 && msgs[0].Role == "system" {
		s, err := contentText(msgs[0].Content)
		if err != nil {
			return "", fmt.Errorf("gemma: system content: %w", err)
		}
		prefix = s + "\n\n"
		msgs = msgs[1:]
	}

	for i, m := range msgs {
		text, err := contentText(m.Content)
		if err != nil {
			return "", fmt.Errorf("gemma: message %d: %w", i, err)
		}
		role := m.Role
		switch role {
		case "assistant":
			role = "model"
		case "user":
		default:
			return "", fmt.Errorf("gemma: unsupported role %q", m.Role)
		}
		b.WriteString("<start_of_turn>")
		b.WriteString(role)
		b.WriteString("\n")
		if i == 0 && prefix != "" {
			b.WriteString(prefix)
		}
		b.WriteString(strings.TrimSpace(text))
		b.WriteString("<end_of_turn>\n")
	}
	if opts.AddGenerationPrompt {
		b.WriteString("<start_of_turn>model\n")
	}
	return b.String(), nil
}
