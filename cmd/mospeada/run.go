package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mospeada/internal/chat"
	"github.com/samcharles93/mospeada/internal/logger"
	"github.com/samcharles93/mospeada/internal/pipeline"
)

func runCmd() *cli.Command {
	var (
		prompt       string
		system       string
		messagesFile string
		raw          bool
		echoPrompt   bool
		streamMode   string
	)

	flags := append(modelFlags(), samplingFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "user prompt",
			Destination: &prompt,
		},
		&cli.StringFlag{
			Name:        "system",
			Aliases:     []string{"sys"},
			Usage:       "optional system prompt",
			Destination: &system,
		},
		&cli.StringFlag{
			Name:        "messages",
			Usage:       "JSON file with a list of chat messages",
			Destination: &messagesFile,
		},
		&cli.BoolFlag{
			Name:        "raw",
			Aliases:     []string{"no-template"},
			Usage:       "encode --prompt as is, without the chat template",
			Destination: &raw,
		},
		&cli.BoolFlag{
			Name:        "echo-prompt",
			Usage:       "print the rendered prompt before generation",
			Destination: &echoPrompt,
		},
		&cli.StringFlag{
			Name:        "stream-mode",
			Usage:       "output mode (instant, quiet)",
			Value:       string(StreamInstant),
			Destination: &streamMode,
		},
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Generate a completion for one prompt",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			applyModelConfig(c, fileConfig)
			applySamplingConfig(c, fileConfig)
			if fileConfig.StreamMode != "" && !c.IsSet("stream-mode") {
				streamMode = fileConfig.StreamMode
			}
			mode, err := parseStreamMode(streamMode)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			req := generationRequest(resolveOverrides(c, fileConfig))
			switch {
			case messagesFile != "":
				msgs, err := chat.LoadMessagesJSON(messagesFile)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				req.Messages = msgs
			case prompt == "":
				return cli.Exit("error: --prompt or --messages is required", 1)
			case raw:
				req.Prompt = prompt
			default:
				if system != "" {
					req.Messages = append(req.Messages, chat.Message{Role: "system", Content: system})
				}
				req.Messages = append(req.Messages, chat.Message{Role: "user", Content: prompt})
			}

			p, err := loadPipeline(ctx, 1, nil)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if echoPrompt {
				rendered, err := p.Prompt(req)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				fmt.Print(rendered)
			}

			out := NewStreamWriter(mode, os.Stdout)
			res, err := generate(ctx, p, req, out, os.Stdout, os.Stderr)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: generation: %v", err), 1)
			}
			logger.FromContext(ctx).Debug("generation finished", "stop", res.StopReason, "prompt_tokens", res.PromptTokens)
			return nil
		},
	}
}

// generate runs one request, streams it to out and prints the throughput
// line to stderr.
func generate(ctx context.Context, p *pipeline.Pipeline, req pipeline.Request, out *StreamWriter, stdout, stderr io.Writer) (pipeline.Result, error) {
	res, err := p.Run(ctx, req, out.Write)
	out.Flush()
	if err != nil {
		return res, err
	}
	_, _ = fmt.Fprintln(stdout)
	_, _ = fmt.Fprintln(stderr, throughputLine(res))
	return res, nil
}

func throughputLine(res pipeline.Result) string {
	return fmt.Sprintf("%d tokens generated (%.2f token/s)", res.GeneratedTokens, res.TokensPerSecond)
}

// resolveSeed maps a negative seed to a random one.
func resolveSeed(s int64) uint64 {
	if s < 0 {
		return rand.Uint64()
	}
	return uint64(s)
}
