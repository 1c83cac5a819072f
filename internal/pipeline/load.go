package pipeline

import (
	"errors"
	"fmt"

	"github.com/samcharles93/mospeada/internal/chat"
	"github.com/samcharles93/mospeada/internal/device"
	"github.com/samcharles93/mospeada/internal/generation"
	"github.com/samcharles93/mospeada/internal/logger"
	"github.com/samcharles93/mospeada/internal/metrics"
	"github.com/samcharles93/mospeada/internal/repo"
	"github.com/samcharles93/mospeada/internal/toy"
)

// LoadOptions configures Load.
type LoadOptions struct {
	Device device.Device
	// Instances is the pool size; zero means one.
	Instances int
	// TemplateName picks an entry of a multi-template chat_template.
	TemplateName string
	Metrics      *metrics.Metrics
	Logger       logger.Logger
}

type eosIDer interface {
	EOSID() int
}

// Load assembles a pipeline from a model repository: tokenizer, generation
// config, chat template (optional) and safetensors weights for the
// reference model.
func Load(r repo.Repo, opts LoadOptions) (*Pipeline, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("model", r.ModelID())

	tok, err := repo.LoadTokenizer(r)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	cfg, err := repo.LoadGenerationConfig(r)
	if err != nil {
		return nil, fmt.Errorf("load generation config: %w", err)
	}
	if len(cfg.EOSTokenIDs()) == 0 {
		if e, ok := tok.(eosIDer); ok && e.EOSID() >= 0 {
			log.Warn("generation config has no eos_token_id; using tokenizer eos", "eos", e.EOSID())
			cfg.SetEOSTokenIDs(e.EOSID())
		}
	}

	tpl, err := repo.LoadChatTemplate(r, opts.TemplateName)
	switch {
	case err == nil:
	case opts.TemplateName != "":
		return nil, err
	case errors.Is(err, chat.ErrUnsupportedTemplate):
		log.Warn("chat template not supported; chat requests will fail")
		tpl = nil
	default:
		log.Debug("no chat template", "err", err)
		tpl = nil
	}

	files, err := r.SafetensorsFiles()
	if err != nil {
		return nil, fmt.Errorf("resolve weights: %w", err)
	}
	weights, err := toy.Load(files)
	if err != nil {
		return nil, err
	}
	if weights.Vocab < tok.VocabSize() {
		return nil, fmt.Errorf("model vocabulary %d is smaller than tokenizer vocabulary %d", weights.Vocab, tok.VocabSize())
	}

	newModel := func() (generation.Model, error) { return toy.New(weights), nil }
	pool, err := NewPool(max(opts.Instances, 1), newModel)
	if err != nil {
		return nil, err
	}
	pool.WithMetrics(opts.Metrics)

	log.Info("model loaded",
		"shards", len(files),
		"vocab", weights.Vocab,
		"hidden", weights.Hidden,
		"instances", pool.Size(),
		"device", opts.Device.String(),
	)
	return &Pipeline{
		ModelID:   r.ModelID(),
		Tokenizer: tok,
		Template:  tpl,
		Config:    cfg,
		NewModel:  newModel,
		Pool:      pool,
		Device:    opts.Device,
		Metrics:   opts.Metrics,
		Logger:    log,
	}, nil
}
