package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mospeada/internal/api"
	"github.com/samcharles93/mospeada/internal/logger"
	"github.com/samcharles93/mospeada/internal/metrics"
	"github.com/samcharles93/mospeada/internal/pipeline"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		instances   int
		rateLimit   float64
		rateBurst   int
		readTimeout time.Duration
	)

	flags := append(modelFlags(), samplingFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "address",
			Aliases:     []string{"addr"},
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &addr,
		},
		&cli.IntFlag{
			Name:        "instances",
			Usage:       "number of model instances serving requests concurrently",
			Value:       1,
			Destination: &instances,
		},
		&cli.Float64Flag{
			Name:        "rate-limit",
			Usage:       "completion requests per second across all clients (0 = unlimited)",
			Destination: &rateLimit,
		},
		&cli.IntFlag{
			Name:        "rate-burst",
			Usage:       "burst size for --rate-limit",
			Value:       4,
			Destination: &rateBurst,
		},
		&cli.DurationFlag{
			Name:        "read-header-timeout",
			Usage:       "HTTP read header timeout",
			Value:       10 * time.Second,
			Destination: &readTimeout,
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve an OpenAI-compatible HTTP API",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			applyModelConfig(c, fileConfig)
			applySamplingConfig(c, fileConfig)
			applyServeConfig(c, fileConfig, &addr, &instances, &rateLimit, &rateBurst)
			if instances < 1 {
				return cli.Exit("error: --instances must be at least 1", 1)
			}

			m := metrics.New()
			p, err := loadPipeline(ctx, instances, m)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			applyServeDefaults(c, p)

			server := api.NewServer(p, api.Options{
				ModelID:   p.ModelID,
				Metrics:   m,
				Logger:    logger.FromContext(ctx),
				RateLimit: rateLimit,
				RateBurst: rateBurst,
			})
			return server.Start(ctx, addr, readTimeout)
		},
	}
}

// applyServeDefaults folds sampling flags into the pipeline's generation
// config, so they act as server-wide defaults that requests may override.
func applyServeDefaults(c *cli.Command, p *pipeline.Pipeline) {
	o := resolveOverrides(c, fileConfig)
	if o.temperature {
		p.Config.SetTemperature(temperature)
	}
	if o.topK {
		p.Config.SetTopK(topK)
	}
	if o.topP {
		p.Config.SetTopP(topP)
	}
	if o.repeatPenalty {
		p.Config.SetRepetitionPenalty(float32(repeatPenalty))
	}
	if maxTokens > 0 {
		p.Config.SetMaxNewTokens(maxTokens)
	}
}
