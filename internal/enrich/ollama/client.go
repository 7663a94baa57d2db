// Package ollama adapts the Ollama generate API to enrich.Model.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/contestlab/contest-pipeline/internal/enrich"
)

// Config selects the model and its sampling options.
type Config struct {
	Endpoint      string
	Model         string
	Timeout       time.Duration
	Temperature   float64
	TopK          int
	RepeatPenalty float64
}

// Client implements enrich.Model.
type Client struct {
	cfg    Config
	client *api.Client
}

// New builds a Client for cfg.Endpoint.
func New(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = "llava:7b"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	base, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid model endpoint %q", cfg.Endpoint)
	}
	return &Client{
		cfg:    cfg,
		client: api.NewClient(base, &http.Client{Timeout: cfg.Timeout}),
	}, nil
}

// Generate sends one non-streaming generate request with the poster attached.
func (c *Client) Generate(ctx context.Context, req enrich.Request) (string, error) {
	stream := false
	gen := &api.GenerateRequest{
		Model:  c.cfg.Model,
		Prompt: req.Prompt,
		Stream: &stream,
		Options: map[string]any{
			"temperature":    c.cfg.Temperature,
			"top_k":          c.cfg.TopK,
			"repeat_penalty": c.cfg.RepeatPenalty,
		},
	}
	if len(req.Image) > 0 {
		gen.Images = []api.ImageData{req.Image}
	}

	var out strings.Builder
	err := c.client.Generate(ctx, gen, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", classify(err)
	}
	return strings.TrimSpace(out.String()), nil
}

// Ping checks that the model service answers.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Heartbeat(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var status api.StatusError
	if errors.As(err, &status) {
		return fmt.Errorf("model status %d: %s", status.StatusCode, status.ErrorMessage)
	}
	return fmt.Errorf("%w: %v", enrich.ErrUnavailable, err)
}
