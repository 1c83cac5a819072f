package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/mospeada/internal/logger"
)

const (
	DefaultEndpoint = "https://huggingface.co"
	DefaultRevision = "main"

	downloadConcurrency = 4
)

// HubOptions configures a HubRepo.
type HubOptions struct {
	Revision   string
	CacheDir   string
	Token      string
	Endpoint   string
	HTTPClient *http.Client
	Logger     logger.Logger
}

// HubRepo downloads repository files on demand into a local cache laid out
// as <cache>/models--<org>--<name>/snapshots/<revision>/<file>.
type HubRepo struct {
	ctx      context.Context
	id       string
	revision string
	token    string
	endpoint string
	snapshot string
	client   *http.Client
	log      logger.Logger
}

// NewHubRepo prepares a repository for modelID. Nothing is downloaded until
// a file is requested. ctx bounds every later download.
func NewHubRepo(ctx context.Context, modelID string, opts HubOptions) (*HubRepo, error) {
	modelID = strings.Trim(strings.TrimSpace(modelID), "/")
	if modelID == "" || strings.Contains(modelID, "..") {
		return nil, fmt.Errorf("invalid model id %q", modelID)
	}
	if opts.Revision == "" {
		opts.Revision = DefaultRevision
	}
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.CacheDir == "" {
		dir, err := DefaultCacheDir()
		if err != nil {
			return nil, err
		}
		opts.CacheDir = dir
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Minute}
	}
	if opts.Logger == nil {
		opts.Logger = logger.FromContext(ctx)
	}
	folder := "models--" + strings.ReplaceAll(modelID, "/", "--")
	return &HubRepo{
		ctx:      ctx,
		id:       modelID,
		revision: opts.Revision,
		token:    opts.Token,
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		snapshot: filepath.Join(opts.CacheDir, folder, "snapshots", opts.Revision),
		client:   opts.HTTPClient,
		log:      opts.Logger.With("model", modelID, "revision", opts.Revision),
	}, nil
}

// DefaultCacheDir resolves MOSPEADA_CACHE, then $HF_HOME/hub, then the
// user cache directory.
func DefaultCacheDir() (string, error) {
	if dir := os.Getenv("MOSPEADA_CACHE"); dir != "" {
		return dir, nil
	}
	if home := os.Getenv("HF_HOME"); home != "" {
		return filepath.Join(home, "hub"), nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve cache dir: %w", err)
	}
	return filepath.Join(base, "huggingface", "hub"), nil
}

func (r *HubRepo) ModelID() string { return r.id }

// Revision is the branch, tag or commit being resolved.
func (r *HubRepo) Revision() string { return r.revision }

// Get returns the cached path of name, downloading it first if needed.
func (r *HubRepo) Get(name string) (string, error) {
	return r.fetch(r.ctx, name)
}

// SafetensorsFiles downloads the single-file checkpoint, or when absent the
// index and every shard it references.
func (r *HubRepo) SafetensorsFiles() ([]string, error) {
	p, err := r.fetch(r.ctx, FileSafetensors)
	if err == nil {
		return []string{p}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	index, err := r.fetch(r.ctx, FileSafetensorsIndex)
	if err != nil {
		return nil, err
	}
	shards, err := ReadSafetensorsIndex(index)
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(shards))
	g, ctx := errgroup.WithContext(r.ctx)
	g.SetLimit(downloadConcurrency)
	for i, shard := range shards {
		g.Go(func() error {
			p, err := r.fetch(ctx, shard)
			if err != nil {
				return err
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (r *HubRepo) fetch(ctx context.Context, name string) (string, error) {
	if err := checkFileName(name); err != nil {
		return "", err
	}
	dst := filepath.Join(r.snapshot, filepath.FromSlash(name))
	if st, err := os.Stat(dst); err == nil && st.Mode().IsRegular() {
		return dst, nil
	}

	u := fmt.Sprintf("%s/%s/resolve/%s/%s", r.endpoint, r.id, url.PathEscape(r.revision), name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%s/%s: %w", r.id, name, ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("download %s: access denied (%s); set --hf-token or HF_TOKEN", name, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("download %s: unexpected status %s", name, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return "", err
	}
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("download %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	r.log.Info("downloaded file", "file", name, "bytes", n, "duration", time.Since(start))
	return dst, nil
}
