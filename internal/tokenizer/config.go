package tokenizer

import (
	"bytes"
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// Config is the subset of tokenizer_config.json the runtime reads.
type Config struct {
	AddBOSToken      bool           `json:"add_bos_token"`
	AddEOSToken      bool           `json:"add_eos_token"`
	BOSToken         AddedToken     `json:"bos_token"`
	EOSToken         AddedToken     `json:"eos_token"`
	UNKToken         AddedToken     `json:"unk_token"`
	PadToken         AddedToken     `json:"pad_token"`
	ChatTemplate     TemplateSource `json:"chat_template"`
	TiktokenEncoding string         `json:"tiktoken_encoding"`
}

// AddedToken accepts both "<s>" and {"content": "<s>", ...}.
type AddedToken string

func (a *AddedToken) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*a = ""
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = AddedToken(s)
		return nil
	default:
		var obj struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return fmt.Errorf("added token: %w", err)
		}
		*a = AddedToken(obj.Content)
		return nil
	}
}

// NamedTemplate is one entry of a multi-template chat_template list.
type NamedTemplate struct {
	Name     string `json:"name"`
	Template string `json:"template"`
}

// TemplateSource holds chat_template, which is either a single template
// string or a list of named templates.
type TemplateSource struct {
	Default string
	Named   []NamedTemplate
}

func (t *TemplateSource) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*t = TemplateSource{}
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = TemplateSource{Default: s}
		return nil
	case b[0] == '[':
		var named []NamedTemplate
		if err := json.Unmarshal(b, &named); err != nil {
			return fmt.Errorf("chat_template: %w", err)
		}
		out := TemplateSource{Named: named}
		for _, n := range named {
			if n.Name == "default" {
				out.Default = n.Template
			}
		}
		if out.Default == "" && len(named) > 0 {
			out.Default = named[0].Template
		}
		*t = out
		return nil
	default:
		return fmt.Errorf("chat_template: expected string or list, got %s", b)
	}
}

// Lookup returns the named template, or the default when name is empty.
func (t TemplateSource) Lookup(name string) (string, bool) {
	if name == "" || name == "default" {
		return t.Default, t.Default != ""
	}
	for _, n := range t.Named {
		if n.Name == name {
			return n.Template, true
		}
	}
	return "", false
}

// ParseConfig decodes tokenizer_config.json contents.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse tokenizer config: %w", err)
	}
	return &cfg, nil
}

// LoadConfig reads tokenizer_config.json from path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer config %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
