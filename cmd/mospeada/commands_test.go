package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mospeada/internal/config"
	"github.com/samcharles93/mospeada/internal/logger"
	"github.com/samcharles93/mospeada/internal/pipeline"
	"github.com/samcharles93/mospeada/internal/repo"
	"github.com/samcharles93/mospeada/internal/toy"
)

func scaffoldRepo(t *testing.T, opts toy.ScaffoldOptions) string {
	t.Helper()
	dir := t.TempDir()
	if err := toy.Scaffold(dir, opts); err != nil {
		t.Fatalf("scaffold: %v", err)
	}
	return dir
}

func TestInspectRepo(t *testing.T) {
	t.Parallel()

	dir := scaffoldRepo(t, toy.ScaffoldOptions{Hidden: 4, Seed: 1, Shards: 2})
	r, err := repo.NewLocalRepo(dir)
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	var out bytes.Buffer
	if err := inspectRepo(&out, r, inspectOptions{tensors: true, template: true}); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"--- Repository ---",
		"model.safetensors.index.json: present",
		"model.safetensors:",
		"arch:",
		"toy",
		"sampling:",
		"argmax",
		"eos token ids:",
		"[257 258]",
		"family:",
		"chatml",
		"model-00001-of-00002.safetensors:",
		"embed_tokens.weight",
		"[259 4]",
		"format:",
		"<|im_start|>",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("inspect output missing %q:\n%s", want, got)
		}
	}
}

func TestGenerateReportsThroughput(t *testing.T) {
	t.Parallel()

	dir := scaffoldRepo(t, toy.ScaffoldOptions{Hidden: 8, Seed: 2, MaxNewTokens: 6})
	r, err := repo.NewLocalRepo(dir)
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	p, err := pipeline.Load(r, pipeline.LoadOptions{Logger: logger.Discard()})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	var stdout, stderr bytes.Buffer
	out := NewStreamWriter(StreamQuiet, &stdout)
	res, err := generate(context.Background(), p, pipeline.Request{
		Messages: newChatSession("be brief").ask("hi"),
		Seed:     1,
	}, out, &stdout, &stderr)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if strings.TrimSuffix(stdout.String(), "\n") != res.Text {
		t.Fatalf("stdout %q does not match result %q", stdout.String(), res.Text)
	}
	if !strings.HasPrefix(stderr.String(), throughputLine(res)) {
		t.Fatalf("unexpected stderr: %q", stderr.String())
	}
	if !strings.Contains(stderr.String(), "tokens generated (") || !strings.Contains(stderr.String(), "token/s)") {
		t.Fatalf("throughput line format: %q", stderr.String())
	}
}

func TestChatSessionHistory(t *testing.T) {
	t.Parallel()

	s := newChatSession("sys")
	msgs := s.ask("one")
	if len(msgs) != 2 || msgs[0].Role != "system" || msgs[1].Content != "one" {
		t.Fatalf("unexpected first turn: %+v", msgs)
	}
	s.answer("reply")
	s.ask("two")
	s.drop()
	if n := len(s.history); n != 3 || s.history[2].Role != "assistant" {
		t.Fatalf("drop removed the wrong turn: %+v", s.history)
	}
	s.reset()
	if len(s.history) != 1 {
		t.Fatalf("reset kept turns: %+v", s.history)
	}

	msgs = newChatSession("").ask("x")
	if len(msgs) != 1 {
		t.Fatalf("empty system prompt added a turn")
	}
}

// The config overlay tests share package-level flag variables, so they do
// not run in parallel.

func TestSamplingConfigOverlay(t *testing.T) {
	temp, k := 0.25, 9
	cfg := &config.Config{Temperature: &temp, TopK: &k}

	var got samplingOverrides
	cmd := &cli.Command{
		Name:  "t",
		Flags: samplingFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			applySamplingConfig(c, cfg)
			got = resolveOverrides(c, cfg)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), []string{"t", "--top-k", "3", "--seed", "7"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if temperature != 0.25 {
		t.Fatalf("config temperature not applied: %g", temperature)
	}
	if topK != 3 {
		t.Fatalf("flag should win over config: %d", topK)
	}
	if !got.temperature || !got.topK || got.topP || got.repeatPenalty {
		t.Fatalf("unexpected overrides: %+v", got)
	}

	req := generationRequest(got)
	if req.Seed != 7 || *req.Temperature != 0.25 || *req.TopK != 3 || req.TopP != nil {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestServeConfigOverlay(t *testing.T) {
	n, limit := 3, 2.5
	cfg := &config.Config{Server: config.Server{Address: ":9000", Instances: &n, RateLimit: &limit}}

	var (
		addr      = "127.0.0.1:8080"
		instances = 1
		rateLimit float64
		rateBurst = 4
	)
	cmd := &cli.Command{
		Name: "t",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Destination: &addr},
			&cli.IntFlag{Name: "instances", Destination: &instances},
			&cli.Float64Flag{Name: "rate-limit", Destination: &rateLimit},
			&cli.IntFlag{Name: "rate-burst", Destination: &rateBurst},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			applyServeConfig(c, cfg, &addr, &instances, &rateLimit, &rateBurst)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), []string{"t", "--instances", "2"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if addr != ":9000" || instances != 2 || rateLimit != 2.5 || rateBurst != 4 {
		t.Fatalf("unexpected overlay: %s %d %g %d", addr, instances, rateLimit, rateBurst)
	}
}

func TestResolveSeed(t *testing.T) {
	t.Parallel()

	if resolveSeed(12) != 12 {
		t.Fatalf("explicit seed changed")
	}
	_ = resolveSeed(-1)
}
