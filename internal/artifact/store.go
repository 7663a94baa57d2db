// Package artifact reads and atomically rewrites the pipeline's JSON artifacts, and
// mirrors each write to an optional blob store.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/contestlab/contest-pipeline/internal/contest"
	"github.com/contestlab/contest-pipeline/internal/logging"
)

// ErrMalformed marks an artifact that exists but does not hold a JSON list.
var ErrMalformed = errors.New("artifact is not a JSON list")

// Store owns the artifact directory.
type Store struct {
	dir    string
	mirror contest.BlobStore
	prefix string
	logger *zap.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithMirror copies every successful write to blobs under prefix.
func WithMirror(blobs contest.BlobStore, prefix string) Option {
	return func(s *Store) {
		s.mirror = blobs
		s.prefix = prefix
	}
}

// WithLogger sets the logger used for mirror failures.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New returns a Store rooted at dir, creating it when missing.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact dir %s: %w", dir, err)
	}
	s := &Store{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger)
	return s, nil
}

// Dir returns the artifact directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path resolves name inside the artifact directory. Absolute names are kept as is.
func (s *Store) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.dir, name)
}

// Exists reports whether the named artifact is present.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// ReadRecords loads a contest list. A missing file is returned as os.ErrNotExist.
func (s *Store) ReadRecords(name string) ([]contest.Record, error) {
	return ReadList[contest.Record](s.Path(name))
}

// ReadRecordsOrEmpty loads a contest list, treating a missing file as empty.
func (s *Store) ReadRecordsOrEmpty(name string) ([]contest.Record, error) {
	records, err := s.ReadRecords(name)
	if errors.Is(err, os.ErrNotExist) {
		return []contest.Record{}, nil
	}
	return records, err
}

// WriteJSON atomically replaces the named artifact with v rendered as indented JSON.
func (s *Store) WriteJSON(ctx context.Context, name string, v any) error {
	payload, err := marshal(v)
	if err != nil {
		return err
	}
	target := s.Path(name)
	if err := WriteFileAtomic(target, payload); err != nil {
		return err
	}
	s.mirrorWrite(ctx, filepath.Base(target), payload)
	return nil
}

// AppendExcluded appends records to the named exclusion ledger. No-op for an empty batch.
func (s *Store) AppendExcluded(ctx context.Context, name string, records []contest.ExcludedRecord) error {
	if len(records) == 0 {
		return nil
	}
	existing, err := ReadList[contest.ExcludedRecord](s.Path(name))
	switch {
	case errors.Is(err, os.ErrNotExist):
		existing = nil
	case err != nil:
		return fmt.Errorf("load exclusion ledger: %w", err)
	}
	out := make([]contest.ExcludedRecord, 0, len(existing)+len(records))
	out = append(out, existing...)
	out = append(out, records...)
	return s.WriteJSON(ctx, name, out)
}

func (s *Store) mirrorWrite(ctx context.Context, base string, payload []byte) {
	if s.mirror == nil {
		return
	}
	key := base
	if s.prefix != "" {
		key = path.Join(s.prefix, base)
	}
	uri, err := s.mirror.PutObject(ctx, key, "application/json", bytes.NewReader(payload))
	if err != nil {
		s.logger.Warn("artifact mirror failed", zap.String("artifact", base), zap.Error(err))
		return
	}
	s.logger.Debug("artifact mirrored", zap.String("artifact", base), zap.String("uri", uri))
}

// ReadList decodes a JSON list of T from path.
func ReadList[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- artifact paths come from configuration.
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%s: %w", path, ErrMalformed)
	}
	var out []T
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrMalformed, err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// WriteFileAtomic writes data to a temp file beside target and renames it into place.
func WriteFileAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dir for %s: %w", target, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", target, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", target, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("chmod %s: %w", target, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", target, err)
	}
	return nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("marshal artifact: %w", err)
	}
	return buf.Bytes(), nil
}
