package enrich

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds model retries. Invalid responses and transport errors back off
// for different durations.
type RetryPolicy struct {
	MaxRetries     int
	InvalidBackoff time.Duration
	ErrorBackoff   time.Duration
}

// DefaultRetryPolicy allows two retries after the first attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     2,
		InvalidBackoff: time.Second,
		ErrorBackoff:   2 * time.Second,
	}
}

// ShouldRetry decides whether another attempt follows attempt (zero-based).
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.MaxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Backoff returns the wait before retrying after err.
func (p RetryPolicy) Backoff(err error) time.Duration {
	if errors.Is(err, ErrInvalidResponse) {
		return p.InvalidBackoff
	}
	return p.ErrorBackoff
}
