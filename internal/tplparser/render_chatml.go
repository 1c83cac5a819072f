package tplparser

import (
	"fmt"
	"strings"
)

func renderChatML(opts RenderOptions) (string, error) {
	var b strings.Builder
	msgs := opts.Messages
	lastAssistant := lastIndexOfRole(msgs, "assistant")

	for i, m := range msgs {
		text, err := contentText(m.Content)
		if err != nil {
			return "", fmt.Errorf("chatml: message %d: %w", i, err)
		}
		if m.Role == "assistant" && !opts.KeepPastThinking && i != lastAssistant {
			text = stripThinking(text)
		}
		b.WriteString("<|im_start|>")
		b.WriteString(m.Role)
		b.WriteString("\n")
		b.WriteString(text)
		b.WriteString("<|im_end|>\n")
	}
	if opts.AddGenerationPrompt {
		b.WriteString("<|im_start|>assistant\n")
	}
	return b.String(), nil
}
