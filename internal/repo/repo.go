// Package repo resolves the files of a model repository, either from a
// local directory or from a Hugging Face style hub.
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-json"
)

// Well-known repository file names.
const (
	FileTokenizer        = "tokenizer.json"
	FileTokenizerConfig  = "tokenizer_config.json"
	FileConfig           = "config.json"
	FileGenerationConfig = "generation_config.json"
	FilePytorchModel     = "pytorch_model.bin"
	FileSafetensors      = "model.safetensors"
	FileSafetensorsIndex = "model.safetensors.index.json"

	// legacyGenerationConfig is the spelling some local exports use.
	legacyGenerationConfig = "generate_config.json"
)

// ErrNotFound is returned when a repository does not contain a file.
var ErrNotFound = errors.New("file not found in repository")

// Repo resolves repository files to local paths.
type Repo interface {
	ModelID() string
	Get(name string) (string, error)
	SafetensorsFiles() ([]string, error)
}

func TokenizerFile(r Repo) (string, error)       { return r.Get(FileTokenizer) }
func TokenizerConfigFile(r Repo) (string, error) { return r.Get(FileTokenizerConfig) }
func ConfigFile(r Repo) (string, error)          { return r.Get(FileConfig) }
func PytorchModelFile(r Repo) (string, error)    { return r.Get(FilePytorchModel) }

// GenerationConfigFile prefers generation_config.json and falls back to the
// legacy generate_config.json name.
func GenerationConfigFile(r Repo) (string, error) {
	p, err := r.Get(FileGenerationConfig)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return p, err
	}
	return r.Get(legacyGenerationConfig)
}

// ReadSafetensorsIndex reads a model.safetensors.index.json and returns the
// distinct shard file names it references, sorted.
func ReadSafetensorsIndex(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read safetensors index: %w", err)
	}
	return parseSafetensorsIndex(path, data)
}

func parseSafetensorsIndex(path string, data []byte) ([]string, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	raw, ok := doc["weight_map"]
	if !ok {
		return nil, fmt.Errorf("no weight map in %s", path)
	}
	var weightMap map[string]any
	if err := json.Unmarshal(raw, &weightMap); err != nil || weightMap == nil {
		return nil, fmt.Errorf("weight map in %s is not a map", path)
	}

	seen := make(map[string]struct{}, 4)
	for tensor, v := range weightMap {
		file, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("weight map in %s: tensor %s maps to a non-string", path, tensor)
		}
		seen[file] = struct{}{}
	}
	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	slices.Sort(files)
	return files, nil
}

// LocalRepo is a model repository on disk.
type LocalRepo struct {
	dir string
	id  string
}

// NewLocalRepo returns a repository rooted at dir. dir must exist.
func NewLocalRepo(dir string) (*LocalRepo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("open local repo: %w", err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("open local repo: %s is not a directory", abs)
	}
	return &LocalRepo{dir: abs, id: filepath.Base(abs)}, nil
}

func (r *LocalRepo) ModelID() string { return r.id }

// Dir is the repository root.
func (r *LocalRepo) Dir() string { return r.dir }

func (r *LocalRepo) Get(name string) (string, error) {
	p := filepath.Join(r.dir, filepath.FromSlash(name))
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return "", err
	}
	return p, nil
}

// SafetensorsFiles returns model.safetensors when present, otherwise every
// shard named by model.safetensors.index.json.
func (r *LocalRepo) SafetensorsFiles() ([]string, error) {
	if p, err := r.Get(FileSafetensors); err == nil {
		return []string{p}, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	index, err := r.Get(FileSafetensorsIndex)
	if err != nil {
		return nil, err
	}
	shards, err := ReadSafetensorsIndex(index)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(shards))
	for i, s := range shards {
		if err := checkFileName(s); err != nil {
			return nil, err
		}
		out[i] = filepath.Join(r.dir, filepath.FromSlash(s))
	}
	return out, nil
}

// checkFileName rejects repository file names that escape the repository.
func checkFileName(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.HasPrefix(name, "/") || filepath.IsAbs(name) {
		return fmt.Errorf("invalid repository file name %q", name)
	}
	return nil
}
