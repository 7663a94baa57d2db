// Package merge reconciles freshly crawled contests against the persisted catalog.
//
// Expired entries are pruned, every poster is fingerprinted by content, and records
// whose poster was already seen are dropped into a duplicates ledger. Existing
// catalog entries always win over incoming ones, and within a pass the first record
// seen wins.
package merge

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/contestlab/contest-pipeline/internal/contest"
	"github.com/contestlab/contest-pipeline/internal/logging"
	"github.com/contestlab/contest-pipeline/internal/metrics"
)

// Result is the output of one merge pass.
type Result struct {
	Merged     []contest.Record
	Duplicates []contest.DuplicateEntry
	Pruned     int
	Accepted   int
	Unhashable int
}

// Engine runs merge passes.
type Engine struct {
	hasher PosterHasher
	clock  contest.Clock
	ids    contest.IDGenerator
	logger *zap.Logger
}

// NewEngine builds an Engine. ids may be nil, in which case records keep whatever id
// they arrived with.
func NewEngine(hasher PosterHasher, clock contest.Clock, ids contest.IDGenerator, logger *zap.Logger) *Engine {
	return &Engine{
		hasher: hasher,
		clock:  clock,
		ids:    ids,
		logger: logging.OrNop(logger),
	}
}

// Merge prunes existing, fingerprints both lists, and returns the merged catalog with
// its duplicate ledger. Fetch or hash failures exempt a record from dedup; they never
// abort the pass.
func (e *Engine) Merge(ctx context.Context, existing, incoming []contest.Record) Result {
	pass := newPass(e)

	live := Prune(existing, e.clock.Now())
	res := Result{
		Merged:     make([]contest.Record, 0, len(live)+len(incoming)),
		Duplicates: []contest.DuplicateEntry{},
		Pruned:     len(existing) - len(live),
	}

	existingHashes := make(map[string]struct{}, len(live))
	for _, rec := range live {
		rec = e.withID(rec)
		hash, ok := pass.fingerprint(ctx, rec)
		if ok {
			if _, seen := existingHashes[hash]; seen {
				res.Duplicates = append(res.Duplicates, ledgerRow(contest.ReasonExistingDuplicate, hash, rec))
			} else {
				existingHashes[hash] = struct{}{}
			}
		}
		res.Merged = append(res.Merged, rec)
	}

	newHashes := make(map[string]struct{}, len(incoming))
	for _, rec := range incoming {
		rec = e.withID(rec)
		hash, ok := pass.fingerprint(ctx, rec)
		if ok {
			if _, seen := existingHashes[hash]; seen {
				res.Duplicates = append(res.Duplicates, ledgerRow(contest.ReasonConflictWithExisting, hash, rec))
				continue
			}
			if _, seen := newHashes[hash]; seen {
				res.Duplicates = append(res.Duplicates, ledgerRow(contest.ReasonDuplicateInNew, hash, rec))
				continue
			}
			newHashes[hash] = struct{}{}
		}
		res.Merged = append(res.Merged, rec)
		res.Accepted++
	}
	res.Unhashable = pass.unhashable

	e.observe(res)
	return res
}

func (e *Engine) withID(rec contest.Record) contest.Record {
	if rec.ID == "" && e.ids != nil {
		rec.ID = e.ids.StableID(rec.SiteURL)
	}
	return rec
}

func (e *Engine) observe(res Result) {
	counts := map[contest.DuplicateReason]int{}
	for _, d := range res.Duplicates {
		counts[d.Reason]++
	}
	metrics.ObserveMerge("pruned", res.Pruned)
	metrics.ObserveMerge("accepted", res.Accepted)
	metrics.ObserveMerge("unhashable", res.Unhashable)
	for reason, n := range counts {
		metrics.ObserveMerge(string(reason), n)
	}
	e.logger.Info("merge complete",
		zap.Int("merged", len(res.Merged)),
		zap.Int("accepted", res.Accepted),
		zap.Int("pruned", res.Pruned),
		zap.Int("duplicates", len(res.Duplicates)),
		zap.Int("unhashable", res.Unhashable),
	)
}

// Prune drops records whose end date parses to a day before now. Records with a
// missing or unparseable end date are kept.
func Prune(records []contest.Record, now time.Time) []contest.Record {
	out := make([]contest.Record, 0, len(records))
	for _, rec := range records {
		if contest.Expired(rec.EndDate, now) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// pass memoizes fingerprints by poster URL for the duration of one merge.
type pass struct {
	engine     *Engine
	byURL      map[string]fingerprintResult
	unhashable int
}

type fingerprintResult struct {
	hash string
	ok   bool
}

func newPass(e *Engine) *pass {
	return &pass{engine: e, byURL: map[string]fingerprintResult{}}
}

func (p *pass) fingerprint(ctx context.Context, rec contest.Record) (string, bool) {
	if cached, ok := p.byURL[rec.PosterURL]; ok {
		if !cached.ok {
			p.unhashable++
		}
		return cached.hash, cached.ok
	}
	hash, err := p.engine.hasher.Fingerprint(ctx, rec.PosterURL)
	result := fingerprintResult{hash: hash, ok: err == nil && hash != ""}
	if !result.ok {
		p.unhashable++
		if err != nil && !errors.Is(err, ErrNoPoster) {
			p.engine.logger.Warn("poster fingerprint failed",
				zap.String("title", rec.Title),
				zap.String("poster_url", rec.PosterURL),
				zap.Error(err),
			)
		}
	}
	p.byURL[rec.PosterURL] = result
	return result.hash, result.ok
}

func ledgerRow(reason contest.DuplicateReason, hash string, rec contest.Record) contest.DuplicateEntry {
	return contest.DuplicateEntry{
		Reason:    reason,
		Hash:      hash,
		Title:     rec.Title,
		SiteURL:   rec.SiteURL,
		PosterURL: rec.PosterURL,
	}
}
