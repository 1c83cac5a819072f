package api

import (
	"fmt"
	"io"
	"math"

	"github.com/goccy/go-json"

	"github.com/samcharles93/mospeada/internal/pipeline"
)

// decodeJSON reads one JSON document. Any failure is an invalid request.
func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return out, newInvalidRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return out, nil
}

// samplingParams are the request fields shared by both completion routes.
type samplingParams struct {
	MaxTokens     *int
	Temperature   *float64
	TopP          *float64
	TopK          *int
	RepeatPenalty *float64
	Seed          *int64
	N             *int
}

func (s *Server) buildRequest(p samplingParams) (pipeline.Request, error) {
	if p.N != nil && *p.N != 1 {
		return pipeline.Request{}, newInvalidRequest("only n=1 is supported")
	}
	req := pipeline.Request{RepeatLastN: pipeline.DefaultRepeatLastN}
	if p.MaxTokens != nil {
		if *p.MaxTokens < 1 {
			return req, newInvalidRequest("max_tokens must be at least 1")
		}
		req.MaxNewTokens = *p.MaxTokens
	}
	if p.Temperature != nil {
		if !finite(*p.Temperature) || *p.Temperature < 0 || *p.Temperature > 2 {
			return req, newInvalidRequest("temperature must be between 0 and 2")
		}
		req.Temperature = p.Temperature
	}
	if p.TopP != nil {
		if !finite(*p.TopP) || *p.TopP <= 0 || *p.TopP > 1 {
			return req, newInvalidRequest("top_p must be in (0, 1]")
		}
		req.TopP = p.TopP
	}
	if p.TopK != nil {
		if *p.TopK < 0 {
			return req, newInvalidRequest("top_k must be non-negative")
		}
		req.TopK = p.TopK
	}
	if p.RepeatPenalty != nil {
		if !finite(*p.RepeatPenalty) || *p.RepeatPenalty <= 0 || *p.RepeatPenalty > math.MaxFloat32 {
			return req, newInvalidRequest("repeat_penalty must be positive")
		}
		rp := float32(*p.RepeatPenalty)
		req.RepetitionPenalty = &rp
	}
	if p.Seed != nil {
		req.Seed = uint64(*p.Seed)
	} else {
		req.Seed = s.seed()
	}
	return req, nil
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func finishReason(r pipeline.StopReason) *string {
	reason := "stop"
	if r == pipeline.StopLength {
		reason = "length"
	}
	return &reason
}

func usageOf(res pipeline.Result) Usage {
	return Usage{
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.GeneratedTokens,
		TotalTokens:      res.PromptTokens + res.GeneratedTokens,
	}
}
