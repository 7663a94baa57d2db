package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/contestlab/contest-pipeline/internal/contest"
)

// ErrNoPoster is returned for records without a fetchable poster URL.
var ErrNoPoster = errors.New("no poster url")

// PosterHasher computes the content fingerprint of a poster image.
type PosterHasher interface {
	Fingerprint(ctx context.Context, posterURL string) (string, error)
}

// Fingerprinter downloads poster bytes and hashes them.
type Fingerprinter struct {
	fetcher contest.Fetcher
	hasher  contest.Hasher
	timeout time.Duration
}

// NewFingerprinter builds a Fingerprinter. Each download is bounded by timeout.
func NewFingerprinter(fetcher contest.Fetcher, hasher contest.Hasher, timeout time.Duration) *Fingerprinter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fingerprinter{fetcher: fetcher, hasher: hasher, timeout: timeout}
}

// Fingerprint returns the hex digest of the poster at posterURL.
func (f *Fingerprinter) Fingerprint(ctx context.Context, posterURL string) (string, error) {
	if !(contest.Record{PosterURL: posterURL}).HasPoster() {
		return "", ErrNoPoster
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	resp, err := f.fetcher.Fetch(ctx, contest.FetchRequest{URL: posterURL})
	if err != nil {
		return "", fmt.Errorf("fetch poster: %w", err)
	}
	sum, err := f.hasher.Hash(resp.Body)
	if err != nil {
		return "", fmt.Errorf("hash poster: %w", err)
	}
	return sum, nil
}
