package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/mospeada/internal/logger"
)

// handleCompletions serves the legacy text completion route. The prompt is
// passed to the model verbatim without a chat template.
func (s *Server) handleCompletions(c *echo.Context) error {
	req, err := decodeJSON[CompletionRequest](c.Request().Body)
	if err != nil {
		return writeErr(c, err)
	}
	prompt, err := promptText(req.Prompt)
	if err != nil {
		return writeErr(c, err)
	}
	preq, err := s.buildRequest(samplingParams{
		MaxTokens:     req.MaxTokens,
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
	preq.Prompt = prompt

	id := "cmpl-" + uuid.NewString()
	created := s.clock().Unix()
	model := s.modelName(req.Model)
	payload := func(text string, finish *string) CompletionResponse {
		return CompletionResponse{
			ID:      id,
			Object:  "text_completion",
			Created: created,
			Model:   model,
			Choices: []CompletionChoice{{Index: 0, Text: text, FinishReason: finish}},
		}
	}
	log := logger.FromContext(c.Request().Context())

	if req.Stream == nil || !*req.Stream {
		res, err := s.gen.Run(c.Request().Context(), preq, nil)
		if err != nil {
			log.Error("completion failed", "error", err)
			return writeErr(c, err)
		}
		text := res.Text
		if req.Echo {
			text = prompt + text
		}
		out := payload(text, finishReason(res.StopReason))
		usage := usageOf(res)
		out.Usage = &usage
		return c.JSON(http.StatusOK, out)
	}

	sse, err := newSSEWriter(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	echoed := !req.Echo
	res, err := s.gen.Run(c.Request().Context(), preq, func(fragment string) error {
		if !echoed {
			echoed = true
			fragment = prompt + fragment
		}
		return sse.Send(payload(fragment, nil))
	})
	if err != nil {
		log.Error("completion stream failed", "error", err, "events", sse.sent)
		if sse.sent == 0 {
			return writeErr(c, err)
		}
		_ = sse.Error(err)
		_ = sse.Done()
		return nil
	}

	text := ""
	if !echoed {
		text = prompt
	}
	_ = sse.Send(payload(text, finishReason(res.StopReason)))
	if req.StreamOptions != nil && req.StreamOptions.IncludeUsage {
		chunk := payload("", nil)
		chunk.Choices = []CompletionChoice{}
		usage := usageOf(res)
		chunk.Usage = &usage
		_ = sse.Send(chunk)
	}
	_ = sse.Done()
	return nil
}
