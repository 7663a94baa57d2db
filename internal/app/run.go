package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/contestlab/contest-pipeline/internal/config"
	"github.com/contestlab/contest-pipeline/internal/contest"
	"github.com/contestlab/contest-pipeline/internal/enrich"
	"github.com/contestlab/contest-pipeline/internal/hash/sha256"
	"github.com/contestlab/contest-pipeline/internal/lock"
	"github.com/contestlab/contest-pipeline/internal/metrics"
	"github.com/contestlab/contest-pipeline/internal/orchestrator"
	"github.com/contestlab/contest-pipeline/internal/source/registry"
)

// Run statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
)

// ErrMissingCatalog is returned by Enrich when the input catalog does not exist.
var ErrMissingCatalog = errors.New("input catalog not found")

// Summary describes one finished run.
type Summary struct {
	RunID      string                       `json:"run_id"`
	Status     string                       `json:"status"`
	StartedAt  time.Time                    `json:"started_at"`
	FinishedAt time.Time                    `json:"finished_at"`
	Sources    []orchestrator.SourceOutcome `json:"sources"`
	Accepted   int                          `json:"accepted"`
	Excluded   int                          `json:"excluded"`
	Catalog    int                          `json:"catalog"`
	Duplicates int                          `json:"duplicates"`
	Pruned     int                          `json:"pruned"`
	Enriched   int                          `json:"enriched"`
	Resumed    int                          `json:"resumed"`
	States     map[enrich.State]int         `json:"states,omitempty"`
	Inserted   int                          `json:"inserted"`
	Skipped    int                          `json:"skipped"`
	Snapshot   map[string]string            `json:"snapshot,omitempty"`
	Error      string                       `json:"error,omitempty"`
}

// EnrichOptions overrides the artifact names used by one enrichment pass. Relative
// names resolve inside the data directory.
type EnrichOptions struct {
	InputFile  string
	OutputFile string
}

// Sources returns the enabled sources in crawl order.
func (a *App) Sources() []string {
	enabled, skipped := registry.Enabled(a.cfg.Sources)
	if len(skipped) > 0 {
		a.logger.Warn("ignoring unknown or disabled sources", zap.Strings("sources", skipped))
	}
	return orchestrator.Order(a.cfg.Orchestrator.Order, enabled)
}

// Crawl runs every enabled source and merges the results into the catalog.
func (a *App) Crawl(ctx context.Context) (orchestrator.Result, error) {
	sources := a.Sources()
	a.logger.Info("crawl started", zap.Strings("sources", sources))
	res, err := a.orch.RunAll(ctx, sources)
	if err != nil {
		return res, fmt.Errorf("crawl: %w", err)
	}
	return res, nil
}

// Enrich tags the catalog, resuming from the output artifact when it already exists.
func (a *App) Enrich(ctx context.Context, opts EnrichOptions) (enrich.Result, error) {
	input := opts.InputFile
	if input == "" {
		input = a.cfg.Data.CatalogFile
	}
	output := opts.OutputFile
	if output == "" {
		output = a.cfg.Data.EnrichedFile
	}

	catalog, err := a.data.ReadRecords(input)
	if errors.Is(err, os.ErrNotExist) {
		return enrich.Result{}, fmt.Errorf("%w: %s", ErrMissingCatalog, a.data.Path(input))
	}
	if err != nil {
		return enrich.Result{}, fmt.Errorf("read catalog: %w", err)
	}
	checkpoint, err := a.data.ReadRecordsOrEmpty(output)
	if err != nil {
		a.logger.Warn("checkpoint unreadable, enriching from scratch",
			zap.String("checkpoint", a.data.Path(output)), zap.Error(err))
		checkpoint = []contest.Record{}
	}

	if err := a.model.Ping(ctx); err != nil {
		a.logger.Warn("model unreachable, entries will use the title fallback", zap.Error(err))
	}

	posters := enrich.NewImageLoader(a.posters, sha256.New(), config.Seconds(a.cfg.HTTP.DownloadTimeoutSeconds))
	pipeline := enrich.NewPipeline(enrich.Config{
		CheckpointEvery: a.cfg.Enrich.CheckpointEvery,
		Pace:            config.Millis(a.cfg.Enrich.PaceMillis),
	}, a.analyzer, posters, a.bridge, a.data, output, a.logger.Named("enrich"))

	a.logger.Info("enrichment started",
		zap.Int("catalog", len(catalog)),
		zap.Int("checkpoint", len(checkpoint)),
		zap.String("output", a.data.Path(output)),
	)
	res, err := pipeline.Run(ctx, catalog, checkpoint)
	if err != nil {
		return res, fmt.Errorf("enrich: %w", err)
	}
	return res, nil
}

// Run executes crawl, merge, enrichment, and persistence under the run lock. A run
// that finds the lock held is reported as skipped.
func (a *App) Run(ctx context.Context) (Summary, error) {
	sum := Summary{StartedAt: a.clock.Now(), Status: StatusOK}
	if id, err := a.ids.NewID(); err == nil {
		sum.RunID = id
	}
	logger := a.logger.With(zap.String("run_id", sum.RunID))

	release, err := a.locker.Acquire(ctx, LockName)
	if errors.Is(err, lock.ErrLocked) {
		logger.Warn("another run holds the lock, skipping")
		sum.Status = StatusSkipped
		return a.finish(sum), nil
	}
	if err != nil {
		return a.fail(sum, fmt.Errorf("acquire run lock: %w", err)), err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			logger.Warn("release run lock failed", zap.Error(err))
		}
	}()

	crawl, err := a.Crawl(ctx)
	sum.Sources = crawl.Sources
	sum.Accepted = len(crawl.Accepted)
	sum.Excluded = len(crawl.Excluded)
	if crawl.Merge != nil {
		sum.Catalog = len(crawl.Merge.Merged)
		sum.Duplicates = len(crawl.Merge.Duplicates)
		sum.Pruned = crawl.Merge.Pruned
	}
	if err != nil {
		return a.fail(sum, err), err
	}
	for _, src := range crawl.Sources {
		if src.Outcome != orchestrator.OutcomeOK {
			sum.Status = StatusDegraded
		}
	}

	enriched, err := a.Enrich(ctx, EnrichOptions{})
	switch {
	case errors.Is(err, ErrMissingCatalog):
		logger.Warn("no catalog yet, nothing to enrich")
	case err != nil:
		return a.fail(sum, err), err
	default:
		sum.Enriched = enriched.Processed
		sum.Resumed = enriched.Resumed
		sum.States = enriched.States
		sum.Inserted = enriched.Inserted
		sum.Skipped = enriched.Skipped
		if enriched.Interrupted {
			sum.Status = StatusDegraded
		}
	}

	sum.Snapshot = a.snapshot(ctx, sum.RunID, logger)
	return a.finish(sum), nil
}

// snapshot copies the run's final artifacts to the blob store under the run id.
func (a *App) snapshot(ctx context.Context, runID string, logger *zap.Logger) map[string]string {
	if !a.mirror.Enabled() || runID == "" {
		return nil
	}
	uris, err := a.mirror.Upload(context.WithoutCancel(ctx), runID,
		a.data.Path(a.cfg.Data.CatalogFile),
		a.data.Path(a.cfg.Data.DuplicatesFile),
		a.data.Path(a.cfg.Data.ExcludedFile),
		a.data.Path(a.cfg.Data.EnrichedFile),
	)
	if err != nil {
		logger.Warn("run snapshot incomplete", zap.Error(err))
	}
	return uris
}

func (a *App) fail(sum Summary, err error) Summary {
	sum.Status = StatusFailed
	sum.Error = err.Error()
	return a.finish(sum)
}

func (a *App) finish(sum Summary) Summary {
	sum.FinishedAt = a.clock.Now()
	metrics.ObserveRun(sum.Status, sum.FinishedAt)
	a.logger.Info("run finished",
		zap.String("run_id", sum.RunID),
		zap.String("status", sum.Status),
		zap.Int("accepted", sum.Accepted),
		zap.Int("catalog", sum.Catalog),
		zap.Int("enriched", sum.Enriched),
		zap.Int("inserted", sum.Inserted),
		zap.Duration("duration", sum.FinishedAt.Sub(sum.StartedAt)),
	)
	a.mu.Lock()
	a.latest = &sum
	a.mu.Unlock()
	return sum
}
