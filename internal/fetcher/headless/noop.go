package headless

import (
	"context"
	"errors"

	"github.com/contestlab/contest-pipeline/internal/contest"
)

// ErrDisabled is returned when a source needs a browser but headless fetching is off.
var ErrDisabled = errors.New("headless fetcher not configured")

// Noop implements contest.Fetcher for runs with headless rendering disabled.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails with ErrDisabled.
func (Noop) Fetch(_ context.Context, request contest.FetchRequest) (contest.FetchResponse, error) {
	return contest.FetchResponse{URL: request.URL}, ErrDisabled
}
