package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mospeada/internal/toy"
)

func scaffoldCmd() *cli.Command {
	var opts toy.ScaffoldOptions
	return &cli.Command{
		Name:      "scaffold",
		Usage:     "Write a small random reference model repository for testing",
		ArgsUsage: "<dir>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "hidden", Usage: "hidden size", Value: 16, Destination: &opts.Hidden},
			&cli.Int64Flag{Name: "seed", Usage: "weight seed", Value: 1, Destination: &opts.Seed},
			&cli.IntFlag{Name: "shards", Usage: "number of safetensors shards", Value: 1, Destination: &opts.Shards},
			&cli.Float64Flag{Name: "temp", Usage: "temperature written to generation_config.json (0 = greedy)", Destination: &opts.Temperature},
			&cli.IntFlag{Name: "max-tokens", Usage: "max_new_tokens written to generation_config.json", Value: 64, Destination: &opts.MaxNewTokens},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			dir := c.Args().First()
			if dir == "" {
				return cli.Exit("error: output directory is required", 1)
			}
			if err := toy.Scaffold(dir, opts); err != nil {
				return cli.Exit(fmt.Sprintf("error: scaffold: %v", err), 1)
			}
			fmt.Printf("wrote model repository to %s\n", dir)
			return nil
		},
	}
}
