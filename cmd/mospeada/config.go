package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mospeada/internal/config"
)

func isSetAny(c *cli.Command, names ...string) bool {
	for _, n := range names {
		if c.IsSet(n) {
			return true
		}
	}
	return false
}

// applyModelConfig fills model flags from the config file when they were not
// given on the command line.
func applyModelConfig(c *cli.Command, cfg *config.Config) {
	if cfg.Model != "" && !c.IsSet("model") {
		modelRef = cfg.Model
	}
	if cfg.Revision != "" && !c.IsSet("revision") {
		revision = cfg.Revision
	}
	if cfg.CacheDir != "" && !c.IsSet("cache-dir") {
		cacheDir = cfg.CacheDir
	}
	if cfg.HFToken != "" && !c.IsSet("hf-token") {
		hfToken = cfg.HFToken
	}
	if cfg.Device != "" && !c.IsSet("device") {
		deviceName = cfg.Device
	}
}

// applySamplingConfig fills sampling flags from the config file. Flags still
// unset afterwards fall through to the repository's generation config.
func applySamplingConfig(c *cli.Command, cfg *config.Config) {
	if cfg.Temperature != nil && !isSetAny(c, "temp") {
		temperature = *cfg.Temperature
	}
	if cfg.TopK != nil && !isSetAny(c, "top-k") {
		topK = *cfg.TopK
	}
	if cfg.TopP != nil && !isSetAny(c, "top-p") {
		topP = *cfg.TopP
	}
	if cfg.RepeatPenalty != nil && !isSetAny(c, "repeat-penalty") {
		repeatPenalty = *cfg.RepeatPenalty
	}
	if cfg.RepeatLastN != nil && !c.IsSet("repeat-last-n") {
		repeatLastN = *cfg.RepeatLastN
	}
	if cfg.MaxNewTokens != nil && !c.IsSet("max-tokens") {
		maxTokens = *cfg.MaxNewTokens
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = int64(*cfg.Seed)
	}
}

// samplingOverrides reports which sampling values came from a flag or the
// config file, so that only those override the generation config.
type samplingOverrides struct {
	temperature, topK, topP, repeatPenalty bool
}

func resolveOverrides(c *cli.Command, cfg *config.Config) samplingOverrides {
	return samplingOverrides{
		temperature:   c.IsSet("temp") || cfg.Temperature != nil,
		topK:          c.IsSet("top-k") || cfg.TopK != nil,
		topP:          c.IsSet("top-p") || cfg.TopP != nil,
		repeatPenalty: c.IsSet("repeat-penalty") || cfg.RepeatPenalty != nil,
	}
}

// applyServeConfig fills serve flags from the config file.
func applyServeConfig(c *cli.Command, cfg *config.Config, addr *string, instances *int, rateLimit *float64, rateBurst *int) {
	s := cfg.Server
	if s.Address != "" && !c.IsSet("address") {
		*addr = s.Address
	}
	if s.Instances != nil && !c.IsSet("instances") {
		*instances = *s.Instances
	}
	if s.RateLimit != nil && !c.IsSet("rate-limit") {
		*rateLimit = *s.RateLimit
	}
	if s.RateBurst != nil && !c.IsSet("rate-burst") {
		*rateBurst = *s.RateBurst
	}
}
