package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const envModelsDir = "MOSPEADA_MODELS_DIR"

// stdinIsTTY is a small seam for tests.
var stdinIsTTY = isTTY

// resolveModelRef returns the model to load: --model when set, otherwise a
// repository found under modelsDir.
func resolveModelRef(modelFlag, modelsDir string, stdin io.Reader, stderr io.Writer) (string, error) {
	modelFlag = strings.TrimSpace(modelFlag)
	if modelFlag != "" {
		return modelFlag, nil
	}

	dir := strings.TrimSpace(modelsDir)
	if dir == "" {
		return "", fmt.Errorf("--model or --models-dir is required unless %s is set", envModelsDir)
	}
	models, err := discoverModels(dir)
	if err != nil {
		return "", err
	}
	switch len(models) {
	case 0:
		return "", fmt.Errorf("no model repositories found in %s", dir)
	case 1:
		_, _ = fmt.Fprintf(stderr, "using model %s\n", models[0])
		return models[0], nil
	default:
		if !stdinIsTTY() {
			return "", fmt.Errorf("multiple models found in %s but stdin is not interactive; set --model", dir)
		}
		return selectModelInteractively(dir, models, stdin, stderr)
	}
}

// isLocalRef reports whether ref names an existing directory rather than a
// hub model id.
func isLocalRef(ref string) bool {
	st, err := os.Stat(ref)
	return err == nil && st.IsDir()
}

// discoverModels lists the subdirectories of dir that look like model
// repositories.
func discoverModels(dir string) ([]string, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("models path is not a directory: %s", dir)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var models []string
	for _, e := range ents {
		if !e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if looksLikeRepo(p) {
			models = append(models, p)
		}
	}
	sort.Strings(models)
	return models, nil
}

func looksLikeRepo(dir string) bool {
	for _, name := range []string{"tokenizer.json", "config.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

func selectModelInteractively(dir string, models []string, stdin io.Reader, stderr io.Writer) (string, error) {
	_, _ = fmt.Fprintf(stderr, "select a model from %s\n", dir)
	for i, m := range models {
		_, _ = fmt.Fprintf(stderr, "%d. %s\n", i+1, filepath.Base(m))
	}

	reader := bufio.NewReader(stdin)
	for {
		_, _ = fmt.Fprintf(stderr, "enter selection [1-%d]: ", len(models))
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if errors.Is(err, io.EOF) {
				return "", errors.New("no selection provided on stdin; set --model")
			}
			continue
		}
		idx, convErr := strconv.Atoi(line)
		if convErr != nil || idx < 1 || idx > len(models) {
			_, _ = fmt.Fprintf(stderr, "invalid selection %q\n", line)
			if errors.Is(err, io.EOF) {
				return "", errors.New("invalid selection provided on stdin; set --model")
			}
			continue
		}
		return models[idx-1], nil
	}
}

func isTTY() bool {
	st, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (st.Mode() & os.ModeCharDevice) != 0
}
