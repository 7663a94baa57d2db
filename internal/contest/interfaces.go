package contest

import (
	"context"
	"io"
	"net/http"
	"time"
)

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
	// WaitSelector is honored by browser-backed fetchers only.
	WaitSelector string
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore writes artifact copies and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes notification payloads to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests used as poster fingerprints.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator derives stable record ids and random run ids.
type IDGenerator interface {
	StableID(key string) string
	NewID() (string, error)
}

// Bridge persists enriched records into relational storage.
type Bridge interface {
	UpsertBatch(ctx context.Context, records []Record) (inserted int, skipped int)
}

// Locker guards a pipeline run against concurrent instances.
type Locker interface {
	Acquire(ctx context.Context, name string) (release func(context.Context) error, err error)
}
