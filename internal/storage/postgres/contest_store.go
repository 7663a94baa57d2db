// Package postgres persists enriched contests into Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/contestlab/contest-pipeline/internal/contest"
	"github.com/contestlab/contest-pipeline/internal/metrics"
)

const (
	existsSQL = `SELECT EXISTS(SELECT 1 FROM contests WHERE poster_url = $1 OR site_url = $2)`

	insertContestSQL = `INSERT INTO contests (external_id, name, site_url, poster_url, start_date, due_date)
VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6)
RETURNING contest_id`

	upsertTagSQL = `INSERT INTO tags (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING tag_id`

	linkTagSQL = `INSERT INTO contest_tags (contest_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	upsertFilterSQL = `INSERT INTO filters (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING filter_id`

	linkFilterSQL = `INSERT INTO contest_filters (contest_id, filter_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
)

// DefaultTopic receives new-contest notifications when no topic is configured.
const DefaultTopic = "new-contests"

var errInvalidRecord = errors.New("record is missing required fields")

// Config controls the Postgres connection pool used by the contest store.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// Topic receives one notification per inserted contest. Empty means DefaultTopic.
	Topic string
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// NewContest is the notification published after a contest row commits.
type NewContest struct {
	ContestID int64    `json:"contest_id"`
	ID        string   `json:"id,omitempty"`
	Title     string   `json:"title"`
	SiteURL   string   `json:"site_url"`
	PosterURL string   `json:"poster_url"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Tags      []string `json:"tags,omitempty"`
	Filtering string   `json:"filtering,omitempty"`
}

// ContestStore writes enriched records into the contests schema.
type ContestStore struct {
	pool      pool
	publisher contest.Publisher
	topic     string
	logger    *zap.Logger
}

// NewContestStore connects to Postgres using cfg.
func NewContestStore(ctx context.Context, cfg Config, publisher contest.Publisher, logger *zap.Logger) (*ContestStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewContestStoreWithPool(p, publisher, cfg.Topic, logger)
}

// NewContestStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewContestStoreWithPool(p pool, publisher contest.Publisher, topic string, logger *zap.Logger) (*ContestStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return &ContestStore{
		pool:      p,
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}, nil
}

// UpsertBatch inserts every record not already stored. Records are committed one at a
// time so a bad row never rolls back its neighbours.
func (s *ContestStore) UpsertBatch(ctx context.Context, records []contest.Record) (int, int) {
	inserted, skipped := 0, 0
	for _, rec := range records {
		if ctx.Err() != nil {
			skipped += len(records) - inserted - skipped
			break
		}
		ok, err := s.upsert(ctx, rec)
		switch {
		case err != nil:
			skipped++
			s.logger.Warn("contest not stored",
				zap.String("title", rec.Title),
				zap.String("site_url", rec.SiteURL),
				zap.Error(err))
		case !ok:
			skipped++
		default:
			inserted++
		}
	}
	metrics.ObserveBridge(inserted, skipped)
	return inserted, skipped
}

func (s *ContestStore) upsert(ctx context.Context, rec contest.Record) (bool, error) {
	start, end, err := validate(rec)
	if err != nil {
		return false, err
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, existsSQL, rec.PosterURL, rec.SiteURL).Scan(&exists); err != nil {
		return false, fmt.Errorf("check existing contest: %w", err)
	}
	if exists {
		return false, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var contestID int64
	if err := tx.QueryRow(ctx, insertContestSQL,
		rec.ID, rec.Title, rec.SiteURL, rec.PosterURL, start, end,
	).Scan(&contestID); err != nil {
		return false, fmt.Errorf("insert contest: %w", err)
	}

	tags := storableTags(rec)
	for _, tag := range tags {
		var tagID int64
		if err := tx.QueryRow(ctx, upsertTagSQL, tag).Scan(&tagID); err != nil {
			return false, fmt.Errorf("upsert tag %q: %w", tag, err)
		}
		if _, err := tx.Exec(ctx, linkTagSQL, contestID, tagID); err != nil {
			return false, fmt.Errorf("link tag %q: %w", tag, err)
		}
	}

	if filter := strings.TrimSpace(rec.Filtering); filter != "" {
		var filterID int64
		if err := tx.QueryRow(ctx, upsertFilterSQL, filter).Scan(&filterID); err != nil {
			return false, fmt.Errorf("upsert filter %q: %w", filter, err)
		}
		if _, err := tx.Exec(ctx, linkFilterSQL, contestID, filterID); err != nil {
			return false, fmt.Errorf("link filter %q: %w", filter, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit contest: %w", err)
	}

	s.notify(ctx, contestID, rec, tags)
	return true, nil
}

func (s *ContestStore) notify(ctx context.Context, contestID int64, rec contest.Record, tags []string) {
	if s.publisher == nil {
		return
	}
	payload := NewContest{
		ContestID: contestID,
		ID:        rec.ID,
		Title:     rec.Title,
		SiteURL:   rec.SiteURL,
		PosterURL: rec.PosterURL,
		StartDate: rec.StartDate,
		EndDate:   rec.EndDate,
		Tags:      tags,
		Filtering: rec.Filtering,
	}
	if _, err := s.publisher.Publish(ctx, s.topic, payload); err != nil {
		s.logger.Warn("publish new contest failed",
			zap.Int64("contest_id", contestID),
			zap.String("topic", s.topic),
			zap.Error(err))
	}
}

// Topic returns the topic new-contest notifications go to.
func (s *ContestStore) Topic() string {
	return s.topic
}

// Close releases the pool.
func (s *ContestStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func validate(rec contest.Record) (time.Time, time.Time, error) {
	for _, v := range []string{rec.Title, rec.SiteURL, rec.PosterURL} {
		if v = strings.TrimSpace(v); v == "" || v == contest.NotAvailable {
			return time.Time{}, time.Time{}, errInvalidRecord
		}
	}
	start, ok := contest.ParseDate(rec.StartDate)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("unparseable start date %q", rec.StartDate)
	}
	end, ok := contest.ParseDate(rec.EndDate)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("unparseable end date %q", rec.EndDate)
	}
	return start, end, nil
}

// storableTags drops the no-poster markers, which describe processing state rather
// than content.
func storableTags(rec contest.Record) []string {
	if rec.HasSentinelTags() {
		return nil
	}
	return rec.TagList()
}
