package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Orchestrator.Order; len(got) != 3 || got[0] != "thinkyou" || got[2] != "contestkorea" {
		t.Fatalf("unexpected default order: %v", got)
	}
	if cfg.SourceTimeout() != 300*time.Second || cfg.SourceDelay() != 2*time.Second {
		t.Fatalf("unexpected orchestrator budget: %v / %v", cfg.SourceTimeout(), cfg.SourceDelay())
	}
	if cfg.Enrich.CheckpointEvery != 3 || cfg.Enrich.MaxRetries != 2 || cfg.Enrich.PaceMillis != 1500 {
		t.Fatalf("unexpected enrich defaults: %+v", cfg.Enrich)
	}
	if cfg.Sources["contestkorea"].Pages != 4 || cfg.Sources["linkareer"].Pages != 3 {
		t.Fatalf("unexpected source defaults: %+v", cfg.Sources)
	}
	if cfg.Sources["thinkyou"].MaxItems != 5 {
		t.Fatalf("expected thinkyou max items 5, got %d", cfg.Sources["thinkyou"].MaxItems)
	}
	if got := cfg.Path(cfg.Data.CatalogFile); got != filepath.Join("data", "all_contests.json") {
		t.Fatalf("unexpected catalog path %q", got)
	}
	if got := cfg.WorkDir(); got != filepath.Join("data", "work") {
		t.Fatalf("unexpected work dir %q", got)
	}
	cfg.Data.WorkDir = "/tmp/contest-work"
	if got := cfg.WorkDir(); got != "/tmp/contest-work" {
		t.Fatalf("explicit work dir ignored, got %q", got)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: true
  level: debug
data:
  dir: /var/lib/contests
orchestrator:
  order: [contestkorea]
  timeout_seconds: 60
  delay_millis: 0
  runner: inprocess
sources:
  contestkorea:
    enabled: true
    pages: 2
    eligible: ["대학생"]
enrich:
  model_endpoint: http://gpu-box:11434
  checkpoint_every: 5
storage:
  provider: gcs
  bucket: contest-artifacts
pubsub:
  project_id: proj
  topic: new-contests
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides, got %+v", cfg.Logging)
	}
	if cfg.Orchestrator.Runner != "inprocess" || len(cfg.Orchestrator.Order) != 1 {
		t.Fatalf("expected orchestrator overrides, got %+v", cfg.Orchestrator)
	}
	src := cfg.Sources["contestkorea"]
	if src.Pages != 2 || len(src.Eligible) != 1 || src.Eligible[0] != "대학생" {
		t.Fatalf("expected source overrides, got %+v", src)
	}
	if cfg.Enrich.ModelEndpoint != "http://gpu-box:11434" || cfg.Enrich.CheckpointEvery != 5 {
		t.Fatalf("expected enrich overrides, got %+v", cfg.Enrich)
	}
	if cfg.Storage.Provider != "gcs" || cfg.Storage.Bucket != "contest-artifacts" {
		t.Fatalf("expected storage overrides, got %+v", cfg.Storage)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty data dir", func(c *Config) { c.Data.Dir = " " }, "data.dir"},
		{"zero timeout", func(c *Config) { c.Orchestrator.TimeoutSeconds = 0 }, "orchestrator.timeout_seconds"},
		{"negative delay", func(c *Config) { c.Orchestrator.DelayMillis = -1 }, "orchestrator.delay_millis"},
		{"bad runner", func(c *Config) { c.Orchestrator.Runner = "thread" }, "orchestrator.runner"},
		{"zero pages", func(c *Config) {
			c.Sources = map[string]SourceConfig{"x": {Enabled: true}}
		}, "sources.x.pages"},
		{"zero http timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"zero poster bytes", func(c *Config) { c.HTTP.MaxPosterBytes = 0 }, "http.max_poster_bytes"},
		{"headless parallel", func(c *Config) { c.Headless.MaxParallel = 0 }, "headless.max_parallel"},
		{"no model endpoint", func(c *Config) { c.Enrich.ModelEndpoint = "" }, "enrich.model_endpoint"},
		{"negative retries", func(c *Config) { c.Enrich.MaxRetries = -1 }, "enrich.max_retries"},
		{"zero checkpoint", func(c *Config) { c.Enrich.CheckpointEvery = 0 }, "enrich.checkpoint_every"},
		{"local without dir", func(c *Config) { c.Storage.Provider = "local" }, "storage.base_dir"},
		{"gcs without bucket", func(c *Config) { c.Storage.Provider = "gcs" }, "storage.bucket"},
		{"unknown provider", func(c *Config) { c.Storage.Provider = "s3" }, "storage.provider"},
		{"topic without project", func(c *Config) { c.PubSub.Topic = "t" }, "pubsub.project_id"},
		{"zero port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Sources = nil
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
