// Package config reads the optional mospeada configuration file. Values in
// the file are defaults; command-line flags override them.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config mirrors the CLI flags. Pointer fields distinguish "not set" from
// zero values.
type Config struct {
	Model    string `yaml:"model" toml:"model" json:"model"`
	Revision string `yaml:"revision" toml:"revision" json:"revision"`
	CacheDir string `yaml:"cache_dir" toml:"cache_dir" json:"cache_dir"`
	HFToken  string `yaml:"hf_token" toml:"hf_token" json:"hf_token"`
	Device   string `yaml:"device" toml:"device" json:"device"`

	Temperature   *float64 `yaml:"temperature" toml:"temperature" json:"temperature"`
	TopK          *int     `yaml:"top_k" toml:"top_k" json:"top_k"`
	TopP          *float64 `yaml:"top_p" toml:"top_p" json:"top_p"`
	RepeatPenalty *float64 `yaml:"repeat_penalty" toml:"repeat_penalty" json:"repeat_penalty"`
	RepeatLastN   *int     `yaml:"repeat_last_n" toml:"repeat_last_n" json:"repeat_last_n"`
	MaxNewTokens  *int     `yaml:"max_new_tokens" toml:"max_new_tokens" json:"max_new_tokens"`
	Seed          *uint64  `yaml:"seed" toml:"seed" json:"seed"`

	StreamMode string `yaml:"stream_mode" toml:"stream_mode" json:"stream_mode"`
	LogLevel   string `yaml:"log_level" toml:"log_level" json:"log_level"`
	LogFormat  string `yaml:"log_format" toml:"log_format" json:"log_format"`

	Server Server `yaml:"server" toml:"server" json:"server"`
}

// Server holds `serve` defaults.
type Server struct {
	Address   string   `yaml:"address" toml:"address" json:"address"`
	Instances *int     `yaml:"instances" toml:"instances" json:"instances"`
	RateLimit *float64 `yaml:"rate_limit" toml:"rate_limit" json:"rate_limit"`
	RateBurst *int     `yaml:"rate_burst" toml:"rate_burst" json:"rate_burst"`
}

// DefaultPath is $XDG_CONFIG_HOME/mospeada/config.yaml, or empty when the
// user config directory cannot be determined.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "mospeada", "config.yaml")
}

// Load reads the file at path. An empty path loads DefaultPath, and a
// missing default file yields a zero Config. A missing explicit path is an
// error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
		if path == "" {
			return &Config{}, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data, Format(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Format maps a file name to "yaml", "toml" or "json". Unknown extensions
// are treated as YAML.
func Format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	case ".json":
		return "json"
	default:
		return "yaml"
	}
}

// Parse decodes data in the given format.
func Parse(data []byte, format string) (*Config, error) {
	var cfg Config
	var err error
	switch format {
	case "yaml", "yml", "":
		err = yaml.Unmarshal(data, &cfg)
	case "toml":
		err = toml.Unmarshal(data, &cfg)
	case "json":
		err = json.Unmarshal(data, &cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s config: %w", format, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no command could use.
func (c *Config) Validate() error {
	var errs []error
	if c.Temperature != nil && *c.Temperature < 0 {
		errs = append(errs, fmt.Errorf("temperature must be >= 0, got %g", *c.Temperature))
	}
	if c.TopP != nil && (*c.TopP < 0 || *c.TopP > 1) {
		errs = append(errs, fmt.Errorf("top_p must be in [0, 1], got %g", *c.TopP))
	}
	if c.TopK != nil && *c.TopK < 0 {
		errs = append(errs, fmt.Errorf("top_k must be >= 0, got %d", *c.TopK))
	}
	if c.RepeatPenalty != nil && *c.RepeatPenalty <= 0 {
		errs = append(errs, fmt.Errorf("repeat_penalty must be > 0, got %g", *c.RepeatPenalty))
	}
	if c.MaxNewTokens != nil && *c.MaxNewTokens < 0 {
		errs = append(errs, fmt.Errorf("max_new_tokens must be >= 0, got %d", *c.MaxNewTokens))
	}
	if c.Server.Instances != nil && *c.Server.Instances < 1 {
		errs = append(errs, fmt.Errorf("server.instances must be >= 1, got %d", *c.Server.Instances))
	}
	switch c.StreamMode {
	case "", "instant", "quiet":
	default:
		errs = append(errs, fmt.Errorf("stream_mode must be instant or quiet, got %q", c.StreamMode))
	}
	return errors.Join(errs...)
}
