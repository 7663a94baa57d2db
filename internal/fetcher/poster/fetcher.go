// Package poster downloads poster images referenced by scraped listings.
//
// Poster URLs come from third-party HTML, so by default requests go through an
// SSRF-guarded client that refuses private, loopback, and link-local targets.
package poster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/doyensec/safeurl"

	"github.com/contestlab/contest-pipeline/internal/contest"
	"github.com/contestlab/contest-pipeline/internal/metrics"
)

// ErrTooLarge is returned when a poster exceeds the configured byte limit.
var ErrTooLarge = errors.New("poster exceeds size limit")

// StatusError reports a non-2xx poster response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("poster %s: unexpected status %d", e.URL, e.StatusCode)
}

// Config controls poster downloads.
type Config struct {
	UserAgent            string
	Timeout              time.Duration
	MaxBytes             int64
	BlockPrivateNetworks bool
}

// Fetcher implements contest.Fetcher for image bytes.
type Fetcher struct {
	cfg    Config
	client *http.Client
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 20 << 20
	}
	var client *http.Client
	if cfg.BlockPrivateNetworks {
		guard := safeurl.GetConfigBuilder().
			SetTimeout(cfg.Timeout).
			SetAllowedSchemes("http", "https").
			SetAllowedPorts(80, 443).
			Build()
		client = safeurl.Client(guard).Client
	} else {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{cfg: cfg, client: client}
}

// Fetch downloads the poster at request.URL.
func (f *Fetcher) Fetch(ctx context.Context, request contest.FetchRequest) (contest.FetchResponse, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, request.URL, nil)
	if err != nil {
		return contest.FetchResponse{}, fmt.Errorf("build poster request: %w", err)
	}
	for key, values := range request.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if f.cfg.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		metrics.ObserveFetch(request.URL, "error", 0)
		return contest.FetchResponse{}, fmt.Errorf("get poster: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // body fully read or abandoned

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ObserveFetch(request.URL, strconv.Itoa(resp.StatusCode), 0)
		return contest.FetchResponse{}, &StatusError{URL: request.URL, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return contest.FetchResponse{}, fmt.Errorf("read poster: %w", err)
	}
	if int64(len(body)) > f.cfg.MaxBytes {
		return contest.FetchResponse{}, fmt.Errorf("%s: %w", request.URL, ErrTooLarge)
	}
	metrics.ObserveFetch(request.URL, strconv.Itoa(resp.StatusCode), len(body))
	return contest.FetchResponse{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Body:       body,
		Duration:   time.Since(start),
	}, nil
}
