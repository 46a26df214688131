// Command memebot runs the meme curation bot and its admin tooling.
//
//	memebot run                  # gateway, backfill and admin API
//	memebot threshold get        # print the live threshold
//	memebot threshold set 12     # replace it
//
// Configuration comes from the environment, optionally seeded from a .env
// file in the working directory.
//
// @title                       memebot admin API
// @version                     1.0
// @BasePath                    /api/v1
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	cli "github.com/urfave/cli/v2"

	"github.com/tbourn/go-memes-bot/internal/config"
	"github.com/tbourn/go-memes-bot/internal/services"
	"github.com/tbourn/go-memes-bot/internal/sysutil"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "memebot",
		Usage:   "repost the community's favourite memes",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file loaded before reading the environment",
				Value: ".env",
			},
		},
		Before: func(cctx *cli.Context) error {
			// A missing .env is normal in containers.
			if err := godotenv.Load(cctx.String("env-file")); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("loading %s: %w", cctx.String("env-file"), err)
			}
			return nil
		},
		Commands: []*cli.Command{
			runCmd,
			thresholdCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("memebot exited")
		os.Exit(1)
	}
}

// loadConfig reads the configuration and installs the global logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty)
	return cfg, nil
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "connect to the gateway and curate the meme channel",
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.ValidateBot(); err != nil {
			return err
		}
		return runBot(cctx.Context, cfg)
	},
}

var thresholdCmd = &cli.Command{
	Name:  "threshold",
	Usage: "inspect or change the repost threshold",
	Subcommands: []*cli.Command{
		{
			Name:  "get",
			Usage: "print the live threshold",
			Action: func(cctx *cli.Context) error {
				return withThresholds(cctx.Context, func(ctx context.Context, svc *services.ThresholdService) error {
					n, err := svc.Get(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintln(cctx.App.Writer, n)
					return nil
				})
			},
		},
		{
			Name:      "set",
			Usage:     "replace the threshold",
			ArgsUsage: "<positive integer>",
			Action: func(cctx *cli.Context) error {
				if cctx.NArg() != 1 {
					return cli.Exit("usage: memebot threshold set <positive integer>", 2)
				}
				return withThresholds(cctx.Context, func(ctx context.Context, svc *services.ThresholdService) error {
					n, err := svc.Set(ctx, strings.TrimSpace(cctx.Args().First()))
					if errors.Is(err, services.ErrInvalidThreshold) {
						return cli.Exit(err.Error(), 2)
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(cctx.App.Writer, "threshold set to %d\n", n)
					return nil
				})
			},
		},
	},
}

// withThresholds opens the configured store for a one-shot admin command.
func withThresholds(ctx context.Context, fn func(context.Context, *services.ThresholdService) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	res, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()
	return fn(ctx, services.NewThresholdService(res.Store))
}
