package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/contestlab/contest-pipeline/internal/app"
	"github.com/contestlab/contest-pipeline/internal/config"
	"github.com/contestlab/contest-pipeline/internal/logging"
)

// cli carries state the persistent pre-run prepares for subcommands.
type cli struct {
	configPath string
	cfg        config.Config
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:   "contestpipe",
		Short: "Collects contest listings and loads tagged contests into Postgres.",
		Long: `contestpipe crawls Korean contest listing sites, merges and deduplicates the
results by poster fingerprint, tags each contest with a vision model, and stores
new contests in Postgres.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (YAML, JSON, or TOML)")

	cmd.AddCommand(
		newRunCmd(c),
		newCrawlCmd(c),
		newEnrichCmd(c),
		newScheduleCmd(c),
		newMigrateCmd(c),
		newSourceCmd(c),
	)
	return cmd
}

func (c *cli) setup(*cobra.Command, []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	c.cfg = cfg
	c.logger = logger
	return nil
}

// build constructs the App. Callers must Close it.
func (c *cli) build(ctx context.Context) (*app.App, error) {
	a, err := app.Build(ctx, c.cfg, app.Options{ConfigPath: c.configPath}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	return a, nil
}

func (c *cli) close(ctx context.Context, a *app.App) {
	if err := a.Close(context.WithoutCancel(ctx)); err != nil {
		c.logger.Warn("shutdown incomplete", zap.Error(err))
	}
}
