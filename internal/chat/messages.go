package chat

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// LoadMessagesJSON reads a JSON file that is either a messages array or an
// object with a "messages" field.
func LoadMessagesJSON(path string) ([]Message, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	msgs, err := ParseMessagesJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return msgs, nil
}

// ParseMessagesJSON decodes the same formats as LoadMessagesJSON.
func ParseMessagesJSON(raw []byte) ([]Message, error) {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse messages json: %w", err)
	}
	var list []any
	switch v := payload.(type) {
	case []any:
		list = v
	case map[string]any:
		msgs, ok := v["messages"]
		if !ok {
			return nil, fmt.Errorf("messages json object missing \"messages\" field")
		}
		if list, ok = msgs.([]any); !ok {
			return nil, fmt.Errorf("messages field must be an array")
		}
	default:
		return nil, fmt.Errorf("messages json must be array or object")
	}

	out := make([]Message, 0, len(list))
	for i, item := range list {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("encode message %d: %w", i, err)
		}
		var msg Message
		if err := json.Unmarshal(b, &msg); err != nil {
			return nil, fmt.Errorf("decode message %d: %w", i, err)
		}
		if msg.Role == "" {
			return nil, fmt.Errorf("message %d has no role", i)
		}
		out = append(out, msg)
	}
	return out, nil
}
