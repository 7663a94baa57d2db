// Package storage mirrors run artifacts to blob storage and provides the fallback
// bridge used when no database is configured.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/contestlab/contest-pipeline/internal/contest"
)

const jsonContentType = "application/json; charset=utf-8"

// Mirror uploads finished artifacts under prefix/runID/.
type Mirror struct {
	store  contest.BlobStore
	prefix string
	logger *zap.Logger
}

// NewMirror returns a Mirror. A nil store yields a Mirror that uploads nothing.
func NewMirror(store contest.BlobStore, prefix string, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// Enabled reports whether uploads go anywhere.
func (m *Mirror) Enabled() bool {
	return m != nil && m.store != nil
}

// Upload copies each existing local file and returns the URIs keyed by base name.
// Missing files are skipped; upload failures are joined into the returned error.
func (m *Mirror) Upload(ctx context.Context, runID string, files ...string) (map[string]string, error) {
	uris := make(map[string]string, len(files))
	if !m.Enabled() {
		return uris, nil
	}
	var errs []error
	for _, file := range files {
		// #nosec G304 -- artifact paths come from configuration.
		data, err := os.ReadFile(file)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", file, err))
			continue
		}
		name := filepath.Base(file)
		key := path.Join(m.prefix, runID, name)
		uri, err := m.store.PutObject(ctx, key, jsonContentType, bytes.NewReader(data))
		if err != nil {
			errs = append(errs, fmt.Errorf("upload %s: %w", name, err))
			continue
		}
		uris[name] = uri
		m.logger.Debug("artifact mirrored", zap.String("file", name), zap.String("uri", uri))
	}
	return uris, errors.Join(errs...)
}

// Unavailable is the bridge used when no database is reachable. Every record is
// reported as skipped.
type Unavailable struct {
	Logger *zap.Logger
}

// UpsertBatch skips the whole batch.
func (u Unavailable) UpsertBatch(_ context.Context, records []contest.Record) (int, int) {
	if len(records) > 0 && u.Logger != nil {
		u.Logger.Warn("database unavailable, batch not stored", zap.Int("records", len(records)))
	}
	return 0, len(records)
}
