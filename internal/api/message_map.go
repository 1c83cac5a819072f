package api

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/samcharles93/mospeada/internal/chat"
)

// chatMessages converts request messages to template messages. Multi-part
// content keeps only its text parts.
func chatMessages(msgs []ChatMessage) ([]chat.Message, error) {
	out := make([]chat.Message, 0, len(msgs))
	for i, m := range msgs {
		switch m.Role {
		case "system", "developer", "user", "assistant", "tool":
		case "":
			return nil, newInvalidRequest(fmt.Sprintf("messages[%d].role is required", i))
		default:
			return nil, newInvalidRequest(fmt.Sprintf("messages[%d].role %q is not supported", i, m.Role))
		}
		role := m.Role
		if role == "developer" {
			role = "system"
		}
		msg := chat.Message{Role: role, Name: m.Name}

		switch content := m.Content.(type) {
		case string:
			msg.Content = content
		case nil:
			msg.Content = ""
		case []any:
			var parts []string
			for _, part := range content {
				pm, ok := part.(map[string]any)
				if !ok {
					continue
				}
				if typ, _ := pm["type"].(string); typ == "text" {
					if text, ok := pm["text"].(string); ok {
						parts = append(parts, text)
					}
				}
			}
			msg.Content = strings.Join(parts, "\n")
		default:
			return nil, newInvalidRequest(fmt.Sprintf("messages[%d].content must be a string or a list of parts", i))
		}

		if len(m.ToolCalls) > 0 {
			calls := make([]chat.ToolCall, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				calls = append(calls, chat.ToolCall{
					ID:   tc.ID,
					Type: tc.Type,
					Function: chat.ToolCallFunction{
						Name:      tc.Function.Name,
						Arguments: toolArguments(tc.Function.Arguments),
					},
				})
			}
			msg.ToolCalls = calls
		}
		out = append(out, msg)
	}
	return out, nil
}

// toolArguments decodes a JSON object argument string, or returns it as is.
func toolArguments(raw string) any {
	if raw == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err == nil {
		return m
	}
	return raw
}

func chatTools(tools []ChatTool) []any {
	if len(tools) == 0 {
		return nil
	}
	out := make([]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"type": t.Type,
			"function": map[string]any{
				"name":        t.Function.Name,
				"description": t.Function.Description,
				"parameters":  t.Function.Parameters,
			},
		})
	}
	return out
}

// promptText accepts a string or a single-element string list.
func promptText(v any) (string, error) {
	switch p := v.(type) {
	case string:
		return p, nil
	case []any:
		if len(p) != 1 {
			return "", newInvalidRequest("prompt lists must contain exactly one string")
		}
		if s, ok := p[0].(string); ok {
			return s, nil
		}
	case nil:
		return "", newInvalidRequest("prompt is required")
	}
	return "", newInvalidRequest("prompt must be a string")
}
