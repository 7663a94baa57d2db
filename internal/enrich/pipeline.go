// Package enrich tags catalog entries with poster-derived keywords and a category.
//
// Each pending entry goes through one of four paths: no poster, poster download
// failed, model answered, or model failed and the title fallback was used. Progress
// is checkpointed to disk every few entries so that an interrupted run resumes where
// it stopped.
package enrich

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/contestlab/contest-pipeline/internal/artifact"
	"github.com/contestlab/contest-pipeline/internal/contest"
	"github.com/contestlab/contest-pipeline/internal/logging"
	"github.com/contestlab/contest-pipeline/internal/metrics"
)

// State is the terminal path an entry took through the pipeline.
type State string

// Entry states.
const (
	StatePending        State = "pending"
	StateNoPoster       State = "no_poster"
	StateDownloadFailed State = "download_failed"
	StateModelOK        State = "model_ok"
	StateModelInvalid   State = "model_invalid"
	StateDone           State = "done"
)

// Config controls pacing and checkpointing.
type Config struct {
	CheckpointEvery int
	Pace            time.Duration
	// FlushTimeout bounds the final checkpoint and bridge call after cancellation.
	FlushTimeout time.Duration
}

// Result summarizes one run.
type Result struct {
	Records     []contest.Record
	Processed   int
	Resumed     int
	States      map[State]int
	Inserted    int
	Skipped     int
	Checkpoints int
	Interrupted bool
}

// PosterLoader returns a normalized poster image.
type PosterLoader interface {
	Load(ctx context.Context, posterURL string) ([]byte, error)
}

// Pipeline enriches a catalog.
type Pipeline struct {
	cfg      Config
	analyzer *Analyzer
	posters  PosterLoader
	bridge   contest.Bridge
	store    *artifact.Store
	output   string
	logger   *zap.Logger
	sleep    func(context.Context, time.Duration) error
}

// NewPipeline builds a Pipeline that checkpoints to output inside store. A nil bridge
// disables persistence.
func NewPipeline(
	cfg Config,
	analyzer *Analyzer,
	posters PosterLoader,
	bridge contest.Bridge,
	store *artifact.Store,
	output string,
	logger *zap.Logger,
) *Pipeline {
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 3
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 30 * time.Second
	}
	return &Pipeline{
		cfg:      cfg,
		analyzer: analyzer,
		posters:  posters,
		bridge:   bridge,
		store:    store,
		output:   output,
		logger:   logging.OrNop(logger),
		sleep:    sleepCtx,
	}
}

// Run enriches every catalog entry not already present in checkpoint and returns the
// full result list: the checkpoint entries unchanged, followed by newly enriched ones
// in catalog order. The list is written to the output artifact every CheckpointEvery
// new entries and once more at the end, also when ctx is cancelled. Only errors from
// writing the artifact are returned.
func (p *Pipeline) Run(ctx context.Context, catalog, checkpoint []contest.Record) (Result, error) {
	res := Result{
		Records: make([]contest.Record, 0, len(checkpoint)+len(catalog)),
		States:  map[State]int{},
	}
	res.Records = append(res.Records, checkpoint...)
	done := newResumeIndex(checkpoint)
	var batch []contest.Record

	for _, rec := range catalog {
		if ctx.Err() != nil {
			break
		}
		if done.has(rec) {
			res.Resumed++
			continue
		}
		if res.Processed > 0 {
			if err := p.sleep(ctx, p.cfg.Pace); err != nil {
				break
			}
		}

		enriched, state := p.enrichOne(ctx, rec)
		if ctx.Err() != nil {
			break
		}
		res.Records = append(res.Records, enriched)
		res.States[state]++
		res.Processed++
		batch = append(batch, enriched)
		done.add(enriched)
		metrics.ObserveEnrichment(string(state))

		if res.Processed%p.cfg.CheckpointEvery == 0 {
			if err := p.checkpoint(ctx, &res, batch); err != nil {
				return res, err
			}
			batch = nil
		}
	}

	res.Interrupted = ctx.Err() != nil
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FlushTimeout)
	defer cancel()
	if err := p.checkpoint(flushCtx, &res, batch); err != nil {
		return res, err
	}
	p.logger.Info("enrichment finished",
		zap.Int("processed", res.Processed),
		zap.Int("resumed", res.Resumed),
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
		zap.Bool("interrupted", res.Interrupted),
	)
	return res, nil
}

// checkpoint writes the full result list and hands the batch to the bridge.
func (p *Pipeline) checkpoint(ctx context.Context, res *Result, batch []contest.Record) error {
	if err := p.store.WriteJSON(ctx, p.output, res.Records); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	res.Checkpoints++
	metrics.ObserveCheckpoint()
	if len(batch) == 0 || p.bridge == nil {
		return nil
	}
	inserted, skipped := p.bridge.UpsertBatch(ctx, batch)
	res.Inserted += inserted
	res.Skipped += skipped
	p.logger.Debug("batch persisted", zap.Int("inserted", inserted), zap.Int("skipped", skipped))
	return nil
}

// enrichOne tags a single record. The category always comes from the title.
func (p *Pipeline) enrichOne(ctx context.Context, rec contest.Record) (contest.Record, State) {
	category := ClassifyTitle(rec.Title)
	rec.Filtering = string(category)

	if !rec.HasPoster() {
		rec.Tags = contest.TagsNoPoster
		return rec, StateNoPoster
	}
	image, err := p.posters.Load(ctx, rec.PosterURL)
	if err != nil {
		p.logger.Warn("poster download failed",
			zap.String("title", rec.Title),
			zap.String("poster_url", rec.PosterURL),
			zap.Error(err),
		)
		rec.Tags = contest.TagsDownloadFailed
		return rec, StateDownloadFailed
	}

	tags, ok := p.analyzer.Analyze(ctx, rec.Title, image)
	rec.Tags = tags.KeywordString()
	if tags.Category != category {
		p.logger.Debug("title category overrides model",
			zap.String("title", rec.Title),
			zap.String("model", string(tags.Category)),
			zap.String("title_category", string(category)),
		)
	}
	if !ok {
		return rec, StateModelInvalid
	}
	return rec, StateModelOK
}

// resumeIndex matches catalog entries against checkpoint entries by stable id, and
// by title for checkpoint entries written before ids existed.
type resumeIndex struct {
	ids         map[string]struct{}
	titles      map[string]struct{}
	idlessTitle map[string]struct{}
}

func newResumeIndex(checkpoint []contest.Record) *resumeIndex {
	idx := &resumeIndex{
		ids:         map[string]struct{}{},
		titles:      map[string]struct{}{},
		idlessTitle: map[string]struct{}{},
	}
	for _, rec := range checkpoint {
		idx.add(rec)
	}
	return idx
}

func (r *resumeIndex) add(rec contest.Record) {
	r.titles[rec.Title] = struct{}{}
	if rec.ID != "" {
		r.ids[rec.ID] = struct{}{}
		return
	}
	r.idlessTitle[rec.Title] = struct{}{}
}

func (r *resumeIndex) has(rec contest.Record) bool {
	if _, ok := r.idlessTitle[rec.Title]; ok {
		return true
	}
	if rec.ID == "" {
		_, ok := r.titles[rec.Title]
		return ok
	}
	_, ok := r.ids[rec.ID]
	return ok
}
