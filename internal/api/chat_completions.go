package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/mospeada/internal/logger"
	"github.com/samcharles93/mospeada/internal/pipeline"
	"github.com/samcharles93/mospeada/internal/reasoning"
)

func (s *Server) handleChatCompletions(c *echo.Context) error {
	req, err := decodeJSON[ChatCompletionRequest](c.Request().Body)
	if err != nil {
		return writeErr(c, err)
	}
	if len(req.Messages) == 0 {
		return writeBadRequest(c, "messages is required and must not be empty")
	}
	msgs, err := chatMessages(req.Messages)
	if err != nil {
		return writeErr(c, err)
	}

	maxTokens := req.MaxTokens
	if req.MaxCompletionTokens != nil {
		maxTokens = req.MaxCompletionTokens
	}
	preq, err := s.buildRequest(samplingParams{
		MaxTokens:     maxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		TopK:          req.TopK,
		RepeatPenalty: req.RepeatPenalty,
		Seed:          req.Seed,
		N:             req.N,
	})
	if err != nil {
		return writeErr(c, err)
	}
	preq.Messages = msgs
	preq.Tools = chatTools(req.Tools)

	meta := chunkMeta{
		id:      "chatcmpl-" + uuid.NewString(),
		created: s.clock().Unix(),
		model:   s.modelName(req.Model),
	}
	if req.Stream != nil && *req.Stream {
		includeUsage := req.StreamOptions != nil && req.StreamOptions.IncludeUsage
		return s.streamChat(c, preq, meta, includeUsage)
	}

	res, err := s.gen.Run(c.Request().Context(), preq, nil)
	if err != nil {
		logger.FromContext(c.Request().Context()).Error("chat completion failed", "error", err)
		return writeErr(c, err)
	}
	split := reasoning.SplitRaw(res.Text)
	return c.JSON(http.StatusOK, ChatCompletionResponse{
		ID:      meta.id,
		Object:  "chat.completion",
		Created: meta.created,
		Model:   meta.model,
		Choices: []ChatChoice{{
			Index:        0,
			Message:      &ChatMessage{Role: "assistant", Content: split.Content, ReasoningContent: split.Reasoning},
			FinishReason: finishReason(res.StopReason),
		}},
		Usage: usageOf(res),
	})
}

type chunkMeta struct {
	id      string
	created int64
	model   string
}

func (m chunkMeta) chat(choice ChatChoice) ChatCompletionChunk {
	return ChatCompletionChunk{
		ID:      m.id,
		Object:  "chat.completion.chunk",
		Created: m.created,
		Model:   m.model,
		Choices: []ChatChoice{choice},
	}
}

// streamChat emits a role chunk, content and reasoning deltas, a finish
// chunk, an optional usage chunk and the [DONE] sentinel. Errors raised
// before the first event are returned as a plain JSON error.
func (s *Server) streamChat(c *echo.Context, req pipeline.Request, meta chunkMeta, includeUsage bool) error {
	sse, err := newSSEWriter(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	log := logger.FromContext(c.Request().Context())

	started := false
	start := func() error {
		if started {
			return nil
		}
		started = true
		return sse.Send(meta.chat(ChatChoice{Delta: &ChatMessage{Role: "assistant"}}))
	}

	var split reasoning.Splitter
	delta := func(content, thought string) error {
		if content == "" && thought == "" {
			return nil
		}
		if err := start(); err != nil {
			return err
		}
		d := &ChatMessage{ReasoningContent: thought}
		if content != "" {
			d.Content = content
		}
		return sse.Send(meta.chat(ChatChoice{Delta: d}))
	}

	res, err := s.gen.Run(c.Request().Context(), req, func(fragment string) error {
		return delta(split.Push(fragment))
	})
	if err != nil {
		log.Error("chat completion stream failed", "error", err, "events", sse.sent)
		if sse.sent == 0 {
			return writeErr(c, err)
		}
		_ = sse.Error(err)
		_ = sse.Done()
		return nil
	}

	if err := delta(split.Flush()); err != nil {
		return nil
	}
	if err := start(); err != nil {
		return nil
	}
	_ = sse.Send(meta.chat(ChatChoice{Delta: &ChatMessage{}, FinishReason: finishReason(res.StopReason)}))
	if includeUsage {
		chunk := meta.chat(ChatChoice{})
		chunk.Choices = []ChatChoice{}
		usage := usageOf(res)
		chunk.Usage = &usage
		_ = sse.Send(chunk)
	}
	_ = sse.Done()
	return nil
}
