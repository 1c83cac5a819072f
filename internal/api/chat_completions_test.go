package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/mospeada/internal/metrics"
	"github.com/samcharles93/mospeada/internal/pipeline"
)

type fakeGenerator struct {
	fragments []string
	stop      pipeline.StopReason
	err       error
	// failAfter > 0 streams that many fragments before returning err.
	failAfter int

	mu   sync.Mutex
	reqs []pipeline.Request
}

func (g *fakeGenerator) Run(ctx context.Context, req pipeline.Request, onText pipeline.OnText) (pipeline.Result, error) {
	g.mu.Lock()
	g.reqs = append(g.reqs, req)
	g.mu.Unlock()

	if g.err != nil && g.failAfter == 0 {
		return pipeline.Result{}, g.err
	}
	var text strings.Builder
	for i, f := range g.fragments {
		if g.err != nil && i == g.failAfter {
			return pipeline.Result{}, g.err
		}
		text.WriteString(f)
		if onText != nil {
			if err := onText(f); err != nil {
				return pipeline.Result{}, err
			}
		}
	}
	if g.err != nil {
		return pipeline.Result{}, g.err
	}
	stop := g.stop
	if stop == "" {
		stop = pipeline.StopEOS
	}
	return pipeline.Result{
		Text:            text.String(),
		PromptTokens:    7,
		GeneratedTokens: len(g.fragments),
		StopReason:      stop,
	}, nil
}

func (g *fakeGenerator) last(t *testing.T) pipeline.Request {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.reqs) == 0 {
		t.Fatalf("generator was not called")
	}
	return g.reqs[len(g.reqs)-1]
}

func newTestServer(gen Generator, opts Options) (*Server, *echo.Echo) {
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Unix(1700000000, 0) }
	}
	if opts.Seed == nil {
		opts.Seed = func() uint64 { return 42 }
	}
	s := NewServer(gen, opts)
	return s, s.Echo()
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

// sseEvents returns the data payloads of an event stream.
func sseEvents(t *testing.T, body string) []string {
	t.Helper()
	var out []string
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			out = append(out, data)
		}
	}
	return out
}

func TestChatCompletionsSync(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fragments: []string{"Hel", "lo"}}
	_, e := newTestServer(gen, Options{ModelID: "toy"})

	rec := doJSON(t, e, http.MethodPost, "/v1/chat/completions",
		`{"messages":[{"role":"developer","content":"be brief"},{"role":"user","content":"hi"}],"temperature":0.5,"top_k":3,"max_tokens":9}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var resp ChatCompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(resp.ID, "chatcmpl-") || resp.Object != "chat.completion" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if resp.Model != "toy" || resp.Created != 1700000000 {
		t.Fatalf("unexpected model/created: %q %d", resp.Model, resp.Created)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "Hello" {
		t.Fatalf("unexpected choices: %+v", resp.Choices)
	}
	if got := *resp.Choices[0].FinishReason; got != "stop" {
		t.Fatalf("finish reason: %q", got)
	}
	if resp.Usage.PromptTokens != 7 || resp.Usage.CompletionTokens != 2 || resp.Usage.TotalTokens != 9 {
		t.Fatalf("usage: %+v", resp.Usage)
	}

	req := gen.last(t)
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
		t.Fatalf("developer role not mapped: %+v", req.Messages)
	}
	if req.MaxNewTokens != 9 || *req.Temperature != 0.5 || *req.TopK != 3 || req.Seed != 42 {
		t.Fatalf("sampling not forwarded: %+v", req)
	}
}

func TestChatCompletionsLengthFinish(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fragments: []string{"a"}, stop: pipeline.StopLength}
	_, e := newTestServer(gen, Options{})
	rec := doJSON(t, e, http.MethodPost, "/v1/chat/completions",
		`{"model":"custom","messages":[{"role":"user","content":"x"}],"max_completion_tokens":1,"max_tokens":50,"seed":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var resp ChatCompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *resp.Choices[0].FinishReason != "length" || resp.Model != "custom" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	req := gen.last(t)
	if req.MaxNewTokens != 1 || req.Seed != 5 {
		t.Fatalf("max_completion_tokens or seed ignored: %+v", req)
	}
}

func TestChatCompletionsStream(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fragments: []string{"Hel", "lo"}}
	_, e := newTestServer(gen, Options{})
	rec := doJSON(t, e, http.MethodPost, "/v1/chat/completions",
		`{"messages":[{"role":"user","content":"hi"}],"stream":true,"stream_options":{"include_usage":true}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}

	events := sseEvents(t, rec.Body.String())
	if len(events) != 6 {
		t.Fatalf("expected 6 events, got %d: %v", len(events), events)
	}
	if events[5] != "[DONE]" {
		t.Fatalf("missing [DONE]: %v", events)
	}

	var chunks []ChatCompletionChunk
	for _, ev := range events[:5] {
		var ch ChatCompletionChunk
		if err := json.Unmarshal([]byte(ev), &ch); err != nil {
			t.Fatalf("decode chunk %q: %v", ev, err)
		}
		if ch.Object != "chat.completion.chunk" {
			t.Fatalf("object: %q", ch.Object)
		}
		chunks = append(chunks, ch)
	}
	if chunks[0].Choices[0].Delta.Role != "assistant" {
		t.Fatalf("first chunk is not the role: %+v", chunks[0])
	}
	if chunks[1].Choices[0].Delta.Content != "Hel" || chunks[2].Choices[0].Delta.Content != "lo" {
		t.Fatalf("unexpected deltas: %+v %+v", chunks[1], chunks[2])
	}
	if fr := chunks[3].Choices[0].FinishReason; fr == nil || *fr != "stop" {
		t.Fatalf("finish chunk: %+v", chunks[3])
	}
	if chunks[4].Usage == nil || chunks[4].Usage.CompletionTokens != 2 || len(chunks[4].Choices) != 0 {
		t.Fatalf("usage chunk: %+v", chunks[4])
	}
	for _, ch := range chunks[1:] {
		if ch.ID != chunks[0].ID {
			t.Fatalf("chunk ids differ")
		}
	}
}

func TestChatCompletionsReasoning(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fragments: []string{"<thi", "nk>plan</th", "ink>Answer"}}
	_, e := newTestServer(gen, Options{})

	rec := doJSON(t, e, http.MethodPost, "/v1/chat/completions",
		`{"messages":[{"role":"user","content":"hi"}]}`)
	var resp ChatCompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	msg := resp.Choices[0].Message
	if msg.Content != "Answer" || msg.ReasoningContent != "plan" {
		t.Fatalf("reasoning not split: %+v", msg)
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/chat/completions",
		`{"messages":[{"role":"user","content":"hi"}],"stream":true}`)
	var content, thought strings.Builder
	for _, ev := range sseEvents(t, rec.Body.String()) {
		if ev == "[DONE]" {
			continue
		}
		var ch ChatCompletionChunk
		if err := json.Unmarshal([]byte(ev), &ch); err != nil {
			t.Fatalf("decode chunk %q: %v", ev, err)
		}
		d := ch.Choices[0].Delta
		if s, ok := d.Content.(string); ok {
			content.WriteString(s)
		}
		thought.WriteString(d.ReasoningContent)
	}
	if content.String() != "Answer" || thought.String() != "plan" {
		t.Fatalf("stream split: content=%q reasoning=%q", content.String(), thought.String())
	}
}

func TestChatCompletionsReasoningWideRunes(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fragments: []string{"İİİİİİİİ<think>", "x</think>", "y"}}
	_, e := newTestServer(gen, Options{})
	for _, body := range []string{
		`{"messages":[{"role":"user","content":"hi"}]}`,
		`{"messages":[{"role":"user","content":"hi"}],"stream":true}`,
	} {
		rec := doJSON(t, e, http.MethodPost, "/v1/chat/completions", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
		}
	}

	rec := doJSON(t, e, http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}]}`)
	var resp ChatCompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg := resp.Choices[0].Message; msg.Content != "İİİİİİİİy" || msg.ReasoningContent != "x" {
		t.Fatalf("unexpected split: %+v", msg)
	}
}

func TestChatCompletionsStreamErrors(t *testing.T) {
	t.Parallel()

	t.Run("before first event", func(t *testing.T) {
		t.Parallel()
		gen := &fakeGenerator{err: pipeline.ErrNoTemplate}
		_, e := newTestServer(gen, Options{})
		rec := doJSON(t, e, http.MethodPost, "/v1/chat/completions",
			`{"messages":[{"role":"user","content":"hi"}],"stream":true}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d body=%s", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
			t.Fatalf("content type: %q", ct)
		}
	})

	t.Run("mid stream", func(t *testing.T) {
		t.Parallel()
		gen := &fakeGenerator{fragments: []string{"a", "b"}, err: errors.New("forward failed"), failAfter: 1}
		_, e := newTestServer(gen, Options{})
		rec := doJSON(t, e, http.MethodPost, "/v1/chat/completions",
			`{"messages":[{"role":"user","content":"hi"}],"stream":true}`)
		events := sseEvents(t, rec.Body.String())
		if len(events) != 4 {
			t.Fatalf("expected role, delta, error and done, got %v", events)
		}
		if !strings.Contains(events[2], "forward failed") || !strings.Contains(events[2], "server_error") {
			t.Fatalf("error event: %s", events[2])
		}
		if events[3] != "[DONE]" {
			t.Fatalf("missing [DONE]")
		}
	})
}

func TestChatCompletionsValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{"messages":`, "invalid JSON body"},
		{"no messages", `{"messages":[]}`, "messages is required"},
		{"missing role", `{"messages":[{"content":"x"}]}`, "messages[0].role is required"},
		{"unknown role", `{"messages":[{"role":"robot","content":"x"}]}`, `role "robot" is not supported`},
		{"bad content", `{"messages":[{"role":"user","content":5}]}`, "must be a string or a list of parts"},
		{"n", `{"messages":[{"role":"user","content":"x"}],"n":2}`, "only n=1"},
		{"max tokens", `{"messages":[{"role":"user","content":"x"}],"max_tokens":0}`, "max_tokens must be at least 1"},
		{"temperature", `{"messages":[{"role":"user","content":"x"}],"temperature":3}`, "temperature must be between 0 and 2"},
		{"top p", `{"messages":[{"role":"user","content":"x"}],"top_p":0}`, "top_p must be in (0, 1]"},
		{"top k", `{"messages":[{"role":"user","content":"x"}],"top_k":-1}`, "top_k must be non-negative"},
		{"repeat penalty", `{"messages":[{"role":"user","content":"x"}],"repeat_penalty":0}`, "repeat_penalty must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gen := &fakeGenerator{}
			_, e := newTestServer(gen, Options{})
			rec := doJSON(t, e, http.MethodPost, "/v1/chat/completions", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d body=%s", rec.Code, rec.Body.String())
			}
			var body map[string]ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if body["error"].Type != "invalid_request_error" || !strings.Contains(body["error"].Message, tt.want) {
				t.Fatalf("unexpected error: %+v", body["error"])
			}
			if len(gen.reqs) != 0 {
				t.Fatalf("generator should not run")
			}
		})
	}
}

func TestChatCompletionsServerError(t *testing.T) {
	t.Parallel()

	_, e := newTestServer(&fakeGenerator{err: errors.New("boom")}, Options{})
	rec := doJSON(t, e, http.MethodPost, "/v1/chat/completions", `{"messages":[{"role":"user","content":"x"}]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "server_error") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestChatMessagesContentParts(t *testing.T) {
	t.Parallel()

	var msgs []ChatMessage
	raw := `[
		{"role":"user","content":[{"type":"text","text":"one"},{"type":"image_url","image_url":{"url":"x"}},{"type":"text","text":"two"}]},
		{"role":"assistant","content":null,"tool_calls":[{"id":"c1","type":"function","function":{"name":"f","arguments":"{\"a\":1}"}}]},
		{"role":"tool","content":"42","name":"f"}
	]`
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	out, err := chatMessages(msgs)
	if err != nil {
		t.Fatalf("chatMessages: %v", err)
	}
	if out[0].Content != "one\ntwo" {
		t.Fatalf("text parts: %q", out[0].Content)
	}
	if out[1].Content != "" || len(out[1].ToolCalls) != 1 {
		t.Fatalf("tool call message: %+v", out[1])
	}
	args, ok := out[1].ToolCalls[0].Function.Arguments.(map[string]any)
	if !ok || args["a"] != float64(1) {
		t.Fatalf("arguments not decoded: %#v", out[1].ToolCalls[0].Function.Arguments)
	}
	if out[2].Name != "f" {
		t.Fatalf("name dropped")
	}
	if got := toolArguments("not json"); got != "not json" {
		t.Fatalf("raw arguments: %#v", got)
	}
}

func TestChatToolsForwarded(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{fragments: []string{"ok"}}
	_, e := newTestServer(gen, Options{})
	rec := doJSON(t, e, http.MethodPost, "/v1/chat/completions",
		`{"messages":[{"role":"user","content":"x"}],"tools":[{"type":"function","function":{"name":"lookup","parameters":{"type":"object"}}}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	tools := gen.last(t).Tools
	if len(tools) != 1 {
		t.Fatalf("tools not forwarded: %v", tools)
	}
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	if fn["name"] != "lookup" {
		t.Fatalf("tool name: %v", fn["name"])
	}
}

func TestServerMetricsAndRequestID(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	_, e := newTestServer(&fakeGenerator{fragments: []string{"x"}}, Options{Metrics: m})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "abc-123")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Header().Get(headerRequestID) != "abc-123" {
		t.Fatalf("request id not propagated: %q", rec.Header().Get(headerRequestID))
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/unknown", "")
	if rec.Header().Get(headerRequestID) == "" {
		t.Fatalf("request id not assigned")
	}

	rec = doJSON(t, e, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `path="/healthz"`) || !strings.Contains(body, `path="other"`) {
		t.Fatalf("http metrics missing:\n%s", body)
	}
}
