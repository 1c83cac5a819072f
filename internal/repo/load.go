package repo

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/samcharles93/mospeada/internal/chat"
	"github.com/samcharles93/mospeada/internal/generation"
	"github.com/samcharles93/mospeada/internal/tokenizer"
)

// ModelConfig is the part of config.json the runtime inspects.
type ModelConfig struct {
	ModelType     string   `json:"model_type"`
	Architectures []string `json:"architectures"`
	VocabSize     int      `json:"vocab_size"`
	HiddenSize    int      `json:"hidden_size"`
}

// Arch is model_type, or the first listed architecture.
func (c *ModelConfig) Arch() string {
	if c.ModelType != "" {
		return c.ModelType
	}
	if len(c.Architectures) > 0 {
		return c.Architectures[0]
	}
	return ""
}

// LoadModelConfig reads config.json. A repository without one yields an
// empty config.
func LoadModelConfig(r Repo) (*ModelConfig, error) {
	p, err := ConfigFile(r)
	if errors.Is(err, ErrNotFound) {
		return &ModelConfig{}, nil
	}
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var cfg ModelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", p, err)
	}
	return &cfg, nil
}

// LoadTokenizerConfig reads tokenizer_config.json, or returns an empty config
// when the repository has none.
func LoadTokenizerConfig(r Repo) (*tokenizer.Config, error) {
	p, err := TokenizerConfigFile(r)
	if errors.Is(err, ErrNotFound) {
		return &tokenizer.Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	return tokenizer.LoadConfig(p)
}

// LoadTokenizer builds the tokenizer described by tokenizer.json. When the
// repository has no tokenizer.json but names a tiktoken encoding in its
// tokenizer config, that encoding is used instead.
func LoadTokenizer(r Repo) (tokenizer.Tokenizer, error) {
	cfg, err := LoadTokenizerConfig(r)
	if err != nil {
		return nil, err
	}
	p, err := TokenizerFile(r)
	if err != nil {
		if errors.Is(err, ErrNotFound) && cfg.TiktokenEncoding != "" {
			return tokenizer.NewTikToken(cfg.TiktokenEncoding)
		}
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	tok, err := tokenizer.NewHFTokenizer(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return tok, nil
}

// LoadGenerationConfig reads the repository's generation config. A
// repository without one yields an empty config.
func LoadGenerationConfig(r Repo) (*generation.GenerationConfig, error) {
	p, err := GenerationConfigFile(r)
	if errors.Is(err, ErrNotFound) {
		return &generation.GenerationConfig{}, nil
	}
	if err != nil {
		return nil, err
	}
	return generation.LoadGenerationConfig(p)
}

// LoadChatTemplate resolves the chat template stored in tokenizer_config.json.
// name selects one entry of a multi-template list; empty means the default.
func LoadChatTemplate(r Repo, name string) (*chat.Template, error) {
	cfg, err := LoadTokenizerConfig(r)
	if err != nil {
		return nil, err
	}
	source, ok := cfg.ChatTemplate.Lookup(name)
	if !ok {
		if name == "" {
			return nil, fmt.Errorf("%s has no chat template", r.ModelID())
		}
		return nil, fmt.Errorf("%s has no chat template named %q", r.ModelID(), name)
	}
	mc, err := LoadModelConfig(r)
	if err != nil {
		return nil, err
	}
	return chat.New(source, string(cfg.BOSToken), string(cfg.EOSToken), chat.Options{
		Arch:             mc.Arch(),
		TokenizerAddsBOS: cfg.AddBOSToken,
	})
}
