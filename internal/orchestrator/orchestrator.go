// Package orchestrator runs source adapters one at a time under a timeout, gathers
// their transient artifacts, and persists the results through the merge engine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/contestlab/contest-pipeline/internal/artifact"
	"github.com/contestlab/contest-pipeline/internal/contest"
	"github.com/contestlab/contest-pipeline/internal/logging"
	"github.com/contestlab/contest-pipeline/internal/merge"
	"github.com/contestlab/contest-pipeline/internal/metrics"
)

// Source outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeTimeout = "timeout"
)

// Files names the persisted artifacts the orchestrator maintains.
type Files struct {
	Catalog    string
	Duplicates string
	Excluded   string
}

// Config controls source scheduling.
type Config struct {
	Timeout time.Duration
	Delay   time.Duration
	Files   Files
}

// SourceOutcome summarizes one source execution.
type SourceOutcome struct {
	Source   string        `json:"source"`
	Outcome  string        `json:"outcome"`
	Accepted int           `json:"accepted"`
	Excluded int           `json:"excluded"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Result is the aggregate output of RunAll.
type Result struct {
	Accepted []contest.Record
	Excluded []contest.ExcludedRecord
	Sources  []SourceOutcome
	// Merge is nil when nothing new was crawled and the catalog was left untouched.
	Merge *merge.Result
}

// Orchestrator coordinates one crawl.
type Orchestrator struct {
	cfg    Config
	runner Runner
	work   *artifact.Store
	data   *artifact.Store
	merger *merge.Engine
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
}

// New builds an Orchestrator. work holds transient per-source artifacts and data the
// persisted catalog, duplicates ledger and exclusion ledger.
func New(cfg Config, runner Runner, work, data *artifact.Store, merger *merge.Engine, logger *zap.Logger) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	if cfg.Files.Catalog == "" {
		cfg.Files.Catalog = "all_contests.json"
	}
	if cfg.Files.Duplicates == "" {
		cfg.Files.Duplicates = "duplicate_posters.json"
	}
	if cfg.Files.Excluded == "" {
		cfg.Files.Excluded = "excluded_contests.json"
	}
	return &Orchestrator{
		cfg:    cfg,
		runner: runner,
		work:   work,
		data:   data,
		merger: merger,
		logger: logging.OrNop(logger),
		sleep:  sleepCtx,
	}
}

// Order returns available sorted so that names in preferred come first, in that
// order, followed by the remaining available names in their original order.
func Order(preferred, available []string) []string {
	present := make(map[string]bool, len(available))
	for _, name := range available {
		present[name] = true
	}
	out := make([]string, 0, len(available))
	placed := make(map[string]bool, len(available))
	for _, name := range preferred {
		if present[name] && !placed[name] {
			out = append(out, name)
			placed[name] = true
		}
	}
	for _, name := range available {
		if !placed[name] {
			out = append(out, name)
			placed[name] = true
		}
	}
	return out
}

// RunAll runs sources sequentially in the given order, then persists what they
// produced. A failing or slow source contributes nothing; only persistence errors and
// cancellation of ctx are returned.
func (o *Orchestrator) RunAll(ctx context.Context, sources []string) (Result, error) {
	res := Result{
		Accepted: []contest.Record{},
		Excluded: []contest.ExcludedRecord{},
		Sources:  make([]SourceOutcome, 0, len(sources)),
	}
	for i, name := range sources {
		if i > 0 {
			if err := o.sleep(ctx, o.cfg.Delay); err != nil {
				return res, err
			}
		}
		outcome, accepted, excluded := o.runOne(ctx, name)
		res.Sources = append(res.Sources, outcome)
		res.Accepted = append(res.Accepted, accepted...)
		res.Excluded = append(res.Excluded, excluded...)
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}

	merged, err := o.persist(ctx, res.Accepted, res.Excluded)
	if err != nil {
		return res, err
	}
	res.Merge = merged
	return res, nil
}

func (o *Orchestrator) runOne(ctx context.Context, name string) (SourceOutcome, []contest.Record, []contest.ExcludedRecord) {
	logger := o.logger.With(zap.String("source", name))
	o.discard(name)

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	err := o.runner.Run(runCtx, name)
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)
	cancel()

	outcome := SourceOutcome{Source: name, Outcome: OutcomeOK, Duration: time.Since(start)}
	if err != nil {
		outcome.Outcome = OutcomeFailed
		if timedOut {
			outcome.Outcome = OutcomeTimeout
		}
		outcome.Error = err.Error()
		o.discard(name)
		logger.Error("source failed", zap.String("outcome", outcome.Outcome), zap.Duration("duration", outcome.Duration), zap.Error(err))
		metrics.ObserveSource(name, outcome.Outcome, 0, 0, outcome.Duration)
		return outcome, nil, nil
	}

	accepted := collect[contest.Record](o.work, AcceptedArtifact(name), logger)
	excluded := collect[contest.ExcludedRecord](o.work, ExcludedArtifact(name), logger)
	outcome.Accepted = len(accepted)
	outcome.Excluded = len(excluded)
	logger.Info("source finished",
		zap.Int("accepted", outcome.Accepted),
		zap.Int("excluded", outcome.Excluded),
		zap.Duration("duration", outcome.Duration),
	)
	metrics.ObserveSource(name, outcome.Outcome, outcome.Accepted, outcome.Excluded, outcome.Duration)
	return outcome, accepted, excluded
}

// collect reads and deletes one transient artifact. Missing or malformed artifacts
// count as empty.
func collect[T any](work *artifact.Store, name string, logger *zap.Logger) []T {
	path := work.Path(name)
	items, err := artifact.ReadList[T](path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		logger.Warn("discarding unreadable source artifact", zap.String("artifact", name), zap.Error(err))
	}
	if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		logger.Warn("remove source artifact", zap.String("artifact", name), zap.Error(rmErr))
	}
	if err != nil {
		return nil
	}
	return items
}

// discard removes leftovers of a previous or failed execution.
func (o *Orchestrator) discard(name string) {
	for _, artifactName := range []string{AcceptedArtifact(name), ExcludedArtifact(name)} {
		if err := os.Remove(o.work.Path(artifactName)); err != nil && !errors.Is(err, os.ErrNotExist) {
			o.logger.Warn("remove stale source artifact", zap.String("artifact", artifactName), zap.Error(err))
		}
	}
}

// persist merges accepted records into the catalog and appends exclusions. Each write
// happens only when there is something to write.
func (o *Orchestrator) persist(ctx context.Context, accepted []contest.Record, excluded []contest.ExcludedRecord) (*merge.Result, error) {
	var merged *merge.Result
	if len(accepted) > 0 {
		existing, err := o.data.ReadRecordsOrEmpty(o.cfg.Files.Catalog)
		if err != nil {
			o.logger.Warn("existing catalog unreadable, starting fresh", zap.Error(err))
			existing = []contest.Record{}
		}
		result := o.merger.Merge(ctx, existing, accepted)
		if err := o.data.WriteJSON(ctx, o.cfg.Files.Catalog, result.Merged); err != nil {
			return nil, fmt.Errorf("write catalog: %w", err)
		}
		if err := o.data.WriteJSON(ctx, o.cfg.Files.Duplicates, result.Duplicates); err != nil {
			return nil, fmt.Errorf("write duplicates ledger: %w", err)
		}
		merged = &result
	}
	if err := o.data.AppendExcluded(ctx, o.cfg.Files.Excluded, excluded); err != nil {
		return merged, fmt.Errorf("append exclusions: %w", err)
	}
	return merged, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
