package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/contestlab/contest-pipeline/internal/artifact"
	"github.com/contestlab/contest-pipeline/internal/config"
	"github.com/contestlab/contest-pipeline/internal/contest"
	collyfetcher "github.com/contestlab/contest-pipeline/internal/fetcher/colly"
	headlessfetcher "github.com/contestlab/contest-pipeline/internal/fetcher/headless"
	"github.com/contestlab/contest-pipeline/internal/logging"
	"github.com/contestlab/contest-pipeline/internal/orchestrator"
	"github.com/contestlab/contest-pipeline/internal/policy/ratelimit"
	"github.com/contestlab/contest-pipeline/internal/source"
	"github.com/contestlab/contest-pipeline/internal/source/registry"
)

// SourceHost owns the page fetchers adapters crawl with.
type SourceHost struct {
	cfg      config.Config
	fetchers registry.Fetchers
	browser  *headlessfetcher.Fetcher
	logger   *zap.Logger
}

// NewSourceHost builds the static and browser fetchers behind a shared per-host
// rate limiter. With headless disabled, browser fetches fail with
// headless.ErrDisabled and the affected sources contribute nothing.
func NewSourceHost(cfg config.Config, logger *zap.Logger) (*SourceHost, error) {
	logger = logging.OrNop(logger)
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.HTTP.PerHostRPS,
		DefaultBurst: cfg.HTTP.PerHostBurst,
	})
	pages := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   config.Seconds(cfg.HTTP.TimeoutSeconds),
	})
	h := &SourceHost{cfg: cfg, logger: logger}
	h.fetchers.Pages = ratelimit.Wrap(pages, limiter)

	var browser contest.Fetcher = headlessfetcher.NewNoop()
	if cfg.Headless.Enabled {
		f, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: config.Seconds(cfg.Headless.NavTimeoutSec),
		})
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		h.browser = f
		browser = f
	} else {
		logger.Warn("headless fetching disabled, dynamic sources will return nothing")
	}
	h.fetchers.Browser = ratelimit.Wrap(browser, limiter)
	return h, nil
}

// Adapter builds the named adapter from its source config.
func (h *SourceHost) Adapter(name string) (source.Adapter, error) {
	adapter, err := registry.Build(name, h.cfg.Sources[name], h.fetchers, h.logger.Named("source."+name))
	if err != nil {
		return nil, fmt.Errorf("build source: %w", err)
	}
	return adapter, nil
}

// Close shuts the browser down.
func (h *SourceHost) Close() {
	if h.browser != nil {
		h.browser.Close()
	}
}

// RunSource crawls one source and writes its transient artifacts into workDir. It is
// the body of the hidden source command the process runner invokes.
func RunSource(ctx context.Context, cfg config.Config, name, workDir string, logger *zap.Logger) error {
	logger = logging.OrNop(logger).With(zap.String("source", name))
	if workDir == "" {
		workDir = cfg.WorkDir()
	}
	work, err := artifact.New(workDir, artifact.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("work store: %w", err)
	}
	host, err := NewSourceHost(cfg, logger)
	if err != nil {
		return err
	}
	defer host.Close()

	adapter, err := host.Adapter(name)
	if err != nil {
		return err
	}
	if err := orchestrator.RunSource(ctx, adapter, work); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			logger.Warn("source interrupted", zap.Error(err))
		}
		return fmt.Errorf("run source %s: %w", name, err)
	}
	logger.Info("source finished")
	return nil
}
