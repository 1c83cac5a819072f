package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("loaded model", "model", "toy")

	out := buf.String()
	if !strings.Contains(out, `"msg":"loaded model"`) {
		t.Fatalf("expected message in output, got: %s", out)
	}
	if !strings.Contains(out, `"model":"toy"`) {
		t.Fatalf("expected attribute in output, got: %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("hidden")
	log.Debug("hidden")
	if buf.Len() > 0 {
		t.Fatalf("expected no output below warn, got: %s", buf.String())
	}
	if log.Enabled(slog.LevelInfo) || !log.Enabled(slog.LevelError) {
		t.Fatalf("Enabled does not follow the handler level")
	}
	log.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected warn record, got: %s", buf.String())
	}
}

func TestWithAndGroup(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo).With("component", "pipeline").WithGroup("req")
	log.Info("done", "tokens", 12)

	out := buf.String()
	if !strings.Contains(out, `"component":"pipeline"`) || !strings.Contains(out, `"req":{"tokens":12}`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))
	FromContext(ctx).Info("via context")
	if !strings.Contains(buf.String(), "via context") {
		t.Fatalf("expected record via context logger, got: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext without a logger returned nil")
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard()
	if log.Enabled(slog.LevelError) {
		t.Fatal("discard logger should not enable any level")
	}
	log.Error("nothing")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{" Warn ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.input)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q): unexpected error state %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestSetup(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := Setup(&buf, "json", "debug")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	log.Debug("json debug")
	if !strings.Contains(buf.String(), `"level":"DEBUG"`) {
		t.Fatalf("expected JSON debug record, got: %s", buf.String())
	}

	buf.Reset()
	log, err = Setup(&buf, "text", "info")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	log.Info("plain", "k", "v")
	if !strings.Contains(buf.String(), "k=v") {
		t.Fatalf("expected text record, got: %s", buf.String())
	}

	if _, err := Setup(&buf, "xml", "info"); err == nil {
		t.Fatal("expected error for unknown format")
	}
	if _, err := Setup(&buf, "json", "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestPrettyAttrsAndGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	var h slog.Handler = NewPrettyHandler(&buf, nil)
	h = h.WithAttrs([]slog.Attr{slog.String("service", "api")})
	h = h.WithGroup("a").WithGroup("b")
	slog.New(h).Info("nested", "key", "val", "took", 1500*time.Microsecond)

	out := buf.String()
	for _, want := range []string{"nested", "service=api", "a.b.key=val", "a.b.took=1.5ms"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got: %s", want, out)
		}
	}
}

func TestPrettyEmptyGroupReturnsSameHandler(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, nil)
	if h.WithGroup("") != slog.Handler(h) {
		t.Fatal("WithGroup(\"\") should return the receiver")
	}
}

func TestPrettyQuoting(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slog.New(NewPrettyHandler(&buf, nil)).Info("q", "msg", "hello world", "plain", "simple")
	out := buf.String()
	if !strings.Contains(out, `msg="hello world"`) {
		t.Fatalf("expected quoted value, got: %s", out)
	}
	if !strings.Contains(out, "plain=simple") {
		t.Fatalf("expected unquoted value, got: %s", out)
	}
}

func TestPrettyLevelFiltering(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestSetDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetDefault(JSON(&buf, slog.LevelInfo))
	slog.Info("via slog", "k", 1)
	if !strings.Contains(buf.String(), `"msg":"via slog"`) {
		t.Fatalf("slog default not replaced: %s", buf.String())
	}
}
