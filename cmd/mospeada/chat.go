package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mospeada/internal/chat"
	"github.com/samcharles93/mospeada/internal/logger"
	"github.com/samcharles93/mospeada/internal/pipeline"
)

func chatCmd() *cli.Command {
	var system string

	flags := append(modelFlags(), samplingFlags()...)
	flags = append(flags, &cli.StringFlag{
		Name:        "system",
		Aliases:     []string{"sys"},
		Usage:       "optional system prompt",
		Destination: &system,
	})

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive chat that keeps the conversation history",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			applyModelConfig(c, fileConfig)
			applySamplingConfig(c, fileConfig)
			overrides := resolveOverrides(c, fileConfig)

			p, err := loadPipeline(ctx, 1, nil)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if p.Template == nil {
				return cli.Exit("error: model has no usable chat template; use `mospeada run --raw`", 1)
			}

			s := newChatSession(system)
			out := NewStreamWriter(StreamInstant, os.Stdout)
			_, _ = fmt.Fprintln(os.Stderr, "Interactive mode. Type /exit to quit, /reset to clear the history.")
			for {
				line, err := readInteractiveLine("> ")
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				input := strings.TrimSpace(line)
				switch input {
				case "":
					continue
				case "/exit", "/quit":
					return nil
				case "/reset":
					s.reset()
					_, _ = fmt.Fprintln(os.Stderr, "history cleared")
					continue
				}

				req := generationRequest(overrides)
				req.Messages = s.ask(input)
				out.Reset()
				res, err := generate(ctx, p, req, out, os.Stdout, os.Stderr)
				if err != nil {
					logger.FromContext(ctx).Error("generation failed", "error", err)
					s.drop()
					continue
				}
				if res.StopReason == pipeline.StopCancelled {
					return nil
				}
				s.answer(res.Text)
			}
		},
	}
}

// chatSession is the running conversation.
type chatSession struct {
	system  string
	history []chat.Message
}

func newChatSession(system string) *chatSession {
	s := &chatSession{system: system}
	s.reset()
	return s
}

func (s *chatSession) reset() {
	s.history = s.history[:0]
	if s.system != "" {
		s.history = append(s.history, chat.Message{Role: "system", Content: s.system})
	}
}

// ask appends a user turn and returns the messages to render.
func (s *chatSession) ask(text string) []chat.Message {
	s.history = append(s.history, chat.Message{Role: "user", Content: text})
	return append([]chat.Message(nil), s.history...)
}

func (s *chatSession) answer(text string) {
	s.history = append(s.history, chat.Message{Role: "assistant", Content: text})
}

// drop removes the last user turn after a failed generation.
func (s *chatSession) drop() {
	if n := len(s.history); n > 0 && s.history[n-1].Role == "user" {
		s.history = s.history[:n-1]
	}
}
