package enrich

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/contestlab/contest-pipeline/internal/logging"
	"github.com/contestlab/contest-pipeline/internal/metrics"
)

// ErrUnavailable is returned by a Model when the model service cannot be reached.
var ErrUnavailable = errors.New("model service unavailable")

// Request is one vision-model call.
type Request struct {
	Prompt string
	// Image is a JPEG.
	Image []byte
}

// Model generates a text response for a prompt and poster image.
type Model interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Analyzer asks the model for tags, retrying and falling back to title heuristics.
type Analyzer struct {
	model  Model
	retry  RetryPolicy
	sleep  func(context.Context, time.Duration) error
	logger *zap.Logger
}

// NewAnalyzer builds an Analyzer.
func NewAnalyzer(model Model, retry RetryPolicy, logger *zap.Logger) *Analyzer {
	return &Analyzer{model: model, retry: retry, sleep: sleepCtx, logger: logging.OrNop(logger)}
}

// Analyze returns tags for a poster. ok is false when every attempt failed and the
// tags come from FallbackKeywords.
func (a *Analyzer) Analyze(ctx context.Context, title string, image []byte) (tags Tags, ok bool) {
	prompt := BuildPrompt(title)
	for attempt := 0; ; attempt++ {
		start := time.Now()
		raw, err := a.model.Generate(ctx, Request{Prompt: prompt, Image: image})
		if err == nil {
			tags, err = ParseResponse(raw, title)
		}
		metrics.ObserveModelCall(callResult(err), time.Since(start))
		if err == nil {
			return tags, true
		}
		a.logger.Debug("model attempt failed",
			zap.String("title", title),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if !a.retry.ShouldRetry(err, attempt) {
			break
		}
		if a.sleep(ctx, a.retry.Backoff(err)) != nil {
			break
		}
	}
	a.logger.Info("model gave no usable answer, using title fallback", zap.String("title", title))
	return Tags{Keywords: FallbackKeywords(title), Category: ClassifyTitle(title)}, false
}

func callResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidResponse):
		return "invalid"
	default:
		return "error"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
