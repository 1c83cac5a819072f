package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func makeRepoDir(t *testing.T, parent, name string) string {
	t.Helper()
	dir := filepath.Join(parent, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestResolveModelRef(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		got, err := resolveModelRef(" org/model ", "", nil, &bytes.Buffer{})
		if err != nil {
			t.Fatalf("resolveModelRef: %v", err)
		}
		if got != "org/model" {
			t.Fatalf("unexpected ref %q", got)
		}
	})

	t.Run("requires model or dir", func(t *testing.T) {
		if _, err := resolveModelRef("", "", nil, &bytes.Buffer{}); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("single repository", func(t *testing.T) {
		dir := t.TempDir()
		want := makeRepoDir(t, dir, "toy")
		if err := os.MkdirAll(filepath.Join(dir, "not-a-model"), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		var stderr bytes.Buffer
		got, err := resolveModelRef("", dir, nil, &stderr)
		if err != nil {
			t.Fatalf("resolveModelRef: %v", err)
		}
		if got != want {
			t.Fatalf("got %q want %q", got, want)
		}
		if !strings.Contains(stderr.String(), "using model") {
			t.Fatalf("missing notice: %q", stderr.String())
		}
	})

	t.Run("empty directory", func(t *testing.T) {
		if _, err := resolveModelRef("", t.TempDir(), nil, &bytes.Buffer{}); err == nil {
			t.Fatalf("expected error for empty models dir")
		}
	})
}

func TestResolveModelRefMultiple(t *testing.T) {
	prev := stdinIsTTY
	t.Cleanup(func() { stdinIsTTY = prev })

	dir := t.TempDir()
	a := makeRepoDir(t, dir, "a")
	b := makeRepoDir(t, dir, "b")

	stdinIsTTY = func() bool { return false }
	if _, err := resolveModelRef("", dir, strings.NewReader("1\n"), &bytes.Buffer{}); err == nil {
		t.Fatalf("expected non-interactive error")
	}

	stdinIsTTY = func() bool { return true }
	var stderr bytes.Buffer
	got, err := resolveModelRef("", dir, strings.NewReader("x\n2\n"), &stderr)
	if err != nil {
		t.Fatalf("resolveModelRef: %v", err)
	}
	if got != b {
		t.Fatalf("got %q want %q", got, b)
	}
	if !strings.Contains(stderr.String(), `invalid selection "x"`) {
		t.Fatalf("expected invalid selection notice: %q", stderr.String())
	}

	got, err = resolveModelRef("", dir, strings.NewReader("1"), &bytes.Buffer{})
	if err != nil || got != a {
		t.Fatalf("selection at EOF: %q %v", got, err)
	}
	if _, err := resolveModelRef("", dir, strings.NewReader(""), &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for empty stdin")
	}
}

func TestIsLocalRef(t *testing.T) {
	t.Parallel()

	if !isLocalRef(t.TempDir()) {
		t.Fatalf("temp dir should be local")
	}
	if isLocalRef("org/definitely-not-here") {
		t.Fatalf("hub id treated as local")
	}
}
