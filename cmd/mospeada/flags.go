package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mospeada/internal/pipeline"
)

var (
	modelRef   string
	modelsDir  string
	revision   string
	cacheDir   string
	hfToken    string
	deviceName string
	templateID string
	configFile string

	temperature   float64
	topK          int
	topP          float64
	repeatPenalty float64
	repeatLastN   int
	maxTokens     int
	seed          int64

	logLevel  string
	logFormat string
	debug     bool
)

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "local model directory or hub model id (org/name)",
			Sources:     cli.EnvVars("MOSPEADA_MODEL"),
			Destination: &modelRef,
		},
		&cli.StringFlag{
			Name:        "models-dir",
			Aliases:     []string{"path"},
			Usage:       "directory of local model repositories to choose from when --model is not set",
			Sources:     cli.EnvVars(envModelsDir),
			Destination: &modelsDir,
		},
		&cli.StringFlag{
			Name:        "revision",
			Usage:       "hub revision (branch, tag or commit)",
			Value:       "main",
			Destination: &revision,
		},
		&cli.StringFlag{
			Name:        "cache-dir",
			Usage:       "hub download cache (default $MOSPEADA_CACHE, $HF_HOME/hub or the user cache dir)",
			Destination: &cacheDir,
		},
		&cli.StringFlag{
			Name:        "hf-token",
			Usage:       "hub access token",
			Sources:     cli.EnvVars("HF_TOKEN"),
			Destination: &hfToken,
		},
		&cli.StringFlag{
			Name:        "device",
			Usage:       "device to run on (cpu, cuda:N)",
			Value:       "cpu",
			Destination: &deviceName,
		},
		&cli.StringFlag{
			Name:        "template",
			Usage:       "named chat template to use when the tokenizer config ships several",
			Destination: &templateID,
		},
	}
}

func samplingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:        "temp",
			Aliases:     []string{"temperature", "t"},
			Usage:       "sampling temperature (default from generation_config.json)",
			Destination: &temperature,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Aliases:     []string{"top_k", "topk"},
			Usage:       "top-k sampling parameter",
			Destination: &topK,
		},
		&cli.Float64Flag{
			Name:        "top-p",
			Aliases:     []string{"top_p", "topp"},
			Usage:       "top-p sampling parameter",
			Destination: &topP,
		},
		&cli.Float64Flag{
			Name:        "repeat-penalty",
			Aliases:     []string{"repeat_penalty"},
			Usage:       "repetition penalty (1.0 = disabled)",
			Destination: &repeatPenalty,
		},
		&cli.IntFlag{
			Name:        "repeat-last-n",
			Aliases:     []string{"repeat_last_n"},
			Usage:       "last n tokens to penalize",
			Value:       pipeline.DefaultRepeatLastN,
			Destination: &repeatLastN,
		},
		&cli.IntFlag{
			Name:        "max-tokens",
			Aliases:     []string{"n", "max-new-tokens"},
			Usage:       "maximum number of tokens to generate (default from generation_config.json)",
			Destination: &maxTokens,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampling RNG seed (default -1 = random)",
			Value:       -1,
			Destination: &seed,
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "config file (.yaml, .toml or .json); default $XDG_CONFIG_HOME/mospeada/config.yaml",
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
