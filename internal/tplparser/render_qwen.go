package tplparser

import (
	"fmt"
	"strings"
)

const qwenDefaultSystem = "You are Qwen, created by Alibaba Cloud. You are a helpful assistant."

const qwenToolsPreamble = "# Tools\n\nYou may call one or more functions to assist with the user query.\n\nYou are provided with function signatures within <tools></tools> XML tags:\n<tools>"

const qwenToolsEpilogue = "\n</tools>\n\nFor each function call, return a json object with function name and arguments within <tool_call></tool_call> XML tags:\n<tool_call>\n{\"name\": <function-name>, \"arguments\": <args-json-object>}\n</tool_call><|im_end|>\n"

// renderQwen covers Qwen 2.5 and Qwen 3 layouts: ChatML turns plus the
// <tools>/<tool_call>/<tool_response> conventions.
func renderQwen(opts RenderOptions) (string, error) {
	var b strings.Builder

	msgs := opts.Messages
	system := ""
	hasSystem := len(msgs) > 0 && msgs[0].Role == "system"
	if hasSystem {
		s, err := contentText(msgs[0].Content)
		if err != nil {
			return "", fmt.Errorf("qwen: system content: %w", err)
		}
		system = s
		msgs = msgs[1:]
	}

	switch {
	case len(opts.Tools) > 0:
		b.WriteString("<|im_start|>system\n")
		if hasSystem {
			b.WriteString(system)
			b.WriteString("\n\n")
		}
		b.WriteString(qwenToolsPreamble)
		for _, tool := range opts.Tools {
			j, err := jsonString(tool)
			if err != nil {
				return "", fmt.Errorf("qwen: tool tojson: %w", err)
			}
			b.WriteString("\n")
			b.WriteString(j)
		}
		b.WriteString(qwenToolsEpilogue)
	case hasSystem:
		b.WriteString("<|im_start|>system\n")
		b.WriteString(system)
		b.WriteString("<|im_end|>\n")
	case opts.DefaultSystem != "":
		b.WriteString("<|im_start|>system\n")
		b.WriteString(opts.DefaultSystem)
		b.WriteString("<|im_end|>\n")
	}

	lastAssistant := lastIndexOfRole(msgs, "assistant")
	for i, msg := range msgs {
		text, err := contentText(msg.Content)
		if err != nil {
			return "", fmt.Errorf("qwen: message %d: %w", i, err)
		}
		switch msg.Role {
		case "assistant":
			if !opts.KeepPastThinking && i != lastAssistant {
				text = stripThinking(text)
			}
			b.WriteString("<|im_start|>assistant\n")
			b.WriteString(text)
			for j, call := range msg.ToolCalls {
				if j > 0 || text != "" {
					b.WriteString("\n")
				}
				args, err := toolArguments(call.Function.Arguments)
				if err != nil {
					return "", fmt.Errorf("qwen: tool arguments tojson: %w", err)
				}
				b.WriteString("<tool_call>\n{\"name\": \"")
				b.WriteString(call.Function.Name)
				b.WriteString("\", \"arguments\": ")
				b.WriteString(args)
				b.WriteString("}\n</tool_call>")
			}
			b.WriteString("<|im_end|>\n")
		case "tool":
			if i == 0 || msgs[i-1].Role != "tool" {
				b.WriteString("<|im_start|>user")
			}
			b.WriteString("\n<tool_response>\n")
			b.WriteString(text)
			b.WriteString("\n</tool_response>")
			if i == len(msgs)-1 || msgs[i+1].Role != "tool" {
				b.WriteString("<|im_end|>\n")
			}
		default:
			b.WriteString("<|im_start|>")
			b.WriteString(msg.Role)
			b.WriteString("\n")
			b.WriteString(text)
			b.WriteString("<|im_end|>\n")
		}
	}

	if opts.AddGenerationPrompt {
		b.WriteString("<|im_start|>assistant\n")
	}
	return b.String(), nil
}
