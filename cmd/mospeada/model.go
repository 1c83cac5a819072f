package main

import (
	"context"
	"fmt"
	"os"

	"github.com/samcharles93/mospeada/internal/device"
	"github.com/samcharles93/mospeada/internal/logger"
	"github.com/samcharles93/mospeada/internal/metrics"
	"github.com/samcharles93/mospeada/internal/pipeline"
	"github.com/samcharles93/mospeada/internal/repo"
)

// openRepo resolves the model flags to a local or hub repository.
func openRepo(ctx context.Context) (repo.Repo, error) {
	ref, err := resolveModelRef(modelRef, modelsDir, os.Stdin, os.Stderr)
	if err != nil {
		return nil, err
	}
	if isLocalRef(ref) {
		return repo.NewLocalRepo(ref)
	}
	return repo.NewHubRepo(ctx, ref, repo.HubOptions{
		Revision: revision,
		CacheDir: cacheDir,
		Token:    hfToken,
		Logger:   logger.FromContext(ctx),
	})
}

func loadPipeline(ctx context.Context, instances int, m *metrics.Metrics) (*pipeline.Pipeline, error) {
	dev, err := device.Parse(deviceName)
	if err != nil {
		return nil, err
	}
	r, err := openRepo(ctx)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	return pipeline.Load(r, pipeline.LoadOptions{
		Device:       dev,
		Instances:    instances,
		TemplateName: templateID,
		Metrics:      m,
		Logger:       logger.FromContext(ctx),
	})
}

// generationRequest builds the per-request sampling overrides from the
// sampling flags.
func generationRequest(o samplingOverrides) pipeline.Request {
	req := pipeline.Request{
		MaxNewTokens: maxTokens,
		RepeatLastN:  repeatLastN,
		Seed:         resolveSeed(seed),
	}
	if o.temperature {
		t := temperature
		req.Temperature = &t
	}
	if o.topK {
		k := topK
		req.TopK = &k
	}
	if o.topP {
		p := topP
		req.TopP = &p
	}
	if o.repeatPenalty {
		rp := float32(repeatPenalty)
		req.RepetitionPenalty = &rp
	}
	return req
}
