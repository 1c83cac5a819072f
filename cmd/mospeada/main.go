package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/mospeada/internal/config"
	"github.com/samcharles93/mospeada/internal/logger"
	"github.com/samcharles93/mospeada/internal/version"
)

// fileConfig is the loaded config file, set by the root Before hook.
var fileConfig = &config.Config{}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "mospeada",
		Usage:   "Text generation runtime for Hugging Face style model repositories",
		Version: version.String(),
		Flags:   globalFlags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := config.Load(configFile)
			if err != nil {
				return ctx, err
			}
			fileConfig = cfg

			level := logLevel
			if cfg.LogLevel != "" && !cmd.IsSet("log-level") {
				level = cfg.LogLevel
			}
			if debug {
				level = "debug"
			}
			format := logFormat
			if cfg.LogFormat != "" && !cmd.IsSet("log-format") {
				format = cfg.LogFormat
			}
			log, err := logger.Setup(os.Stderr, format, level)
			if err != nil {
				return ctx, err
			}
			logger.SetDefault(log)
			return logger.WithContext(ctx, log), nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			runCmd(),
			chatCmd(),
			serveCmd(),
			inspectCmd(),
			scaffoldCmd(),
			versionCmd(),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
