package tplparser

import (
	"strings"

	"github.com/goccy/go-json"
)

func jsonString(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// contentText flattens string or text-block content. Non-text blocks are
// skipped; anything else is JSON encoded.
func contentText(content any) (string, error) {
	if content == nil {
		return "", nil
	}
	if s, ok := asString(content); ok {
		return s, nil
	}
	if seq, ok := asSlice(content); ok {
		var b strings.Builder
		for _, item := range seq {
			m, ok := asMap(item)
			if !ok {
				continue
			}
			if txt, ok := asString(m["text"]); ok {
				b.WriteString(txt)
			}
		}
		return b.String(), nil
	}
	return jsonString(content)
}

// stripThinking drops everything up to the last </think> marker.
func stripThinking(text string) string {
	if cut := strings.LastIndex(text, "</think>"); cut >= 0 {
		return strings.TrimSpace(text[cut+len("</think>"):])
	}
	return text
}

func lastIndexOfRole(msgs []Message, role string) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role {
			return i
		}
	}
	return -1
}

func toolArguments(args any) (string, error) {
	switch v := args.(type) {
	case nil:
		return "{}", nil
	case string:
		if v == "" {
			return "{}", nil
		}
		return v, nil
	default:
		return jsonString(v)
	}
}
