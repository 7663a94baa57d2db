// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every pipeline knob loaded via Viper.
type Config struct {
	Logging      LoggingConfig           `mapstructure:"logging"`
	Data         DataConfig              `mapstructure:"data"`
	Orchestrator OrchestratorConfig      `mapstructure:"orchestrator"`
	Sources      map[string]SourceConfig `mapstructure:"sources"`
	HTTP         HTTPConfig              `mapstructure:"http"`
	Headless     HeadlessConfig          `mapstructure:"headless"`
	Enrich       EnrichConfig            `mapstructure:"enrich"`
	Storage      StorageConfig           `mapstructure:"storage"`
	DB           DBConfig                `mapstructure:"db"`
	PubSub       PubSubConfig            `mapstructure:"pubsub"`
	Redis        RedisConfig             `mapstructure:"redis"`
	Schedule     ScheduleConfig          `mapstructure:"schedule"`
	Server       ServerConfig            `mapstructure:"server"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DataConfig locates the JSON artifacts.
type DataConfig struct {
	Dir            string `mapstructure:"dir"`
	WorkDir        string `mapstructure:"work_dir"`
	CatalogFile    string `mapstructure:"catalog_file"`
	DuplicatesFile string `mapstructure:"duplicates_file"`
	ExcludedFile   string `mapstructure:"excluded_file"`
	EnrichedFile   string `mapstructure:"enriched_file"`
	TimeZone       string `mapstructure:"time_zone"`
}

// OrchestratorConfig governs how sources are scheduled within a run.
type OrchestratorConfig struct {
	Order          []string `mapstructure:"order"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	DelayMillis    int      `mapstructure:"delay_millis"`
	Runner         string   `mapstructure:"runner"`
}

// SourceConfig tunes one listing-site adapter.
type SourceConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	BaseURL  string   `mapstructure:"base_url"`
	Pages    int      `mapstructure:"pages"`
	MaxItems int      `mapstructure:"max_items"`
	Eligible []string `mapstructure:"eligible"`
}

// HTTPConfig configures page and poster fetching.
type HTTPConfig struct {
	UserAgent              string  `mapstructure:"user_agent"`
	TimeoutSeconds         int     `mapstructure:"timeout_seconds"`
	PosterTimeoutSeconds   int     `mapstructure:"poster_timeout_seconds"`
	DownloadTimeoutSeconds int     `mapstructure:"download_timeout_seconds"`
	MaxPosterBytes         int64   `mapstructure:"max_poster_bytes"`
	BlockPrivateNetworks   bool    `mapstructure:"block_private_networks"`
	PerHostRPS             float64 `mapstructure:"per_host_rps"`
	PerHostBurst           int     `mapstructure:"per_host_burst"`
}

// HeadlessConfig configures the browser-backed fetcher.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// EnrichConfig configures the tag enrichment stage and its model.
type EnrichConfig struct {
	ModelEndpoint         string  `mapstructure:"model_endpoint"`
	Model                 string  `mapstructure:"model"`
	MaxRetries            int     `mapstructure:"max_retries"`
	InvalidBackoffMillis  int     `mapstructure:"invalid_backoff_millis"`
	ErrorBackoffMillis    int     `mapstructure:"error_backoff_millis"`
	CheckpointEvery       int     `mapstructure:"checkpoint_every"`
	PaceMillis            int     `mapstructure:"pace_millis"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds"`
	Temperature           float64 `mapstructure:"temperature"`
	TopK                  int     `mapstructure:"top_k"`
	RepeatPenalty         float64 `mapstructure:"repeat_penalty"`
}

// StorageConfig selects where artifact copies are mirrored.
type StorageConfig struct {
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`
	BaseDir  string `mapstructure:"base_dir"`
	Prefix   string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational store behind the bridge.
type DBConfig struct {
	DSN            string `mapstructure:"dsn"`
	MaxConns       int32  `mapstructure:"max_conns"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start"`
}

// PubSubConfig holds the new-contest notification topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// RedisConfig enables the distributed run lock.
type RedisConfig struct {
	URL            string `mapstructure:"url"`
	LockTTLSeconds int    `mapstructure:"lock_ttl_seconds"`
}

// ScheduleConfig drives the periodic runner.
type ScheduleConfig struct {
	Spec       string `mapstructure:"spec"`
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CONTESTPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

var baseEligible = []string{"대학생", "대학원생", "일반인", "누구나"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")

	v.SetDefault("data.dir", "data")
	v.SetDefault("data.catalog_file", "all_contests.json")
	v.SetDefault("data.duplicates_file", "duplicate_posters.json")
	v.SetDefault("data.excluded_file", "excluded_contests.json")
	v.SetDefault("data.enriched_file", "contest_with_tags.json")
	v.SetDefault("data.time_zone", "Asia/Seoul")

	v.SetDefault("orchestrator.order", []string{"thinkyou", "linkareer", "contestkorea"})
	v.SetDefault("orchestrator.timeout_seconds", 300)
	v.SetDefault("orchestrator.delay_millis", 2000)
	v.SetDefault("orchestrator.runner", "process")

	v.SetDefault("sources.contestkorea.enabled", true)
	v.SetDefault("sources.contestkorea.base_url", "https://www.contestkorea.com/sub/list.php")
	v.SetDefault("sources.contestkorea.pages", 4)
	v.SetDefault("sources.contestkorea.eligible", baseEligible)
	v.SetDefault("sources.linkareer.enabled", true)
	v.SetDefault("sources.linkareer.base_url", "https://linkareer.com/list/contest")
	v.SetDefault("sources.linkareer.pages", 3)
	v.SetDefault("sources.linkareer.eligible", append(append([]string{}, baseEligible...), "대상 제한 없음"))
	v.SetDefault("sources.thinkyou.enabled", true)
	v.SetDefault("sources.thinkyou.base_url", "https://thinkyou.co.kr/contest/")
	v.SetDefault("sources.thinkyou.pages", 5)
	v.SetDefault("sources.thinkyou.max_items", 5)
	v.SetDefault("sources.thinkyou.eligible", append(append([]string{}, baseEligible...),
		"대학(원)생", "내국인", "대한민국 국민", "나이 무관", "대학/대학원", "비전공자", "연구자", "학생"))

	v.SetDefault("http.user_agent", browserUserAgent)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.poster_timeout_seconds", 10)
	v.SetDefault("http.download_timeout_seconds", 30)
	v.SetDefault("http.max_poster_bytes", 20<<20)
	v.SetDefault("http.block_private_networks", true)
	v.SetDefault("http.per_host_rps", 1.0)
	v.SetDefault("http.per_host_burst", 1)

	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)

	v.SetDefault("enrich.model_endpoint", "http://localhost:11434")
	v.SetDefault("enrich.model", "llava:7b")
	v.SetDefault("enrich.max_retries", 2)
	v.SetDefault("enrich.invalid_backoff_millis", 1000)
	v.SetDefault("enrich.error_backoff_millis", 2000)
	v.SetDefault("enrich.checkpoint_every", 3)
	v.SetDefault("enrich.pace_millis", 1500)
	v.SetDefault("enrich.request_timeout_seconds", 120)
	v.SetDefault("enrich.temperature", 0.05)
	v.SetDefault("enrich.top_k", 23)
	v.SetDefault("enrich.repeat_penalty", 1.3)

	v.SetDefault("storage.provider", "none")
	v.SetDefault("storage.prefix", "artifacts")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.migrate_on_start", false)
	v.SetDefault("redis.lock_ttl_seconds", 3600)
	v.SetDefault("schedule.spec", "@every 6h")
	v.SetDefault("schedule.run_on_start", true)
	v.SetDefault("server.port", 8080)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Data.Dir) == "" {
		return fmt.Errorf("data.dir must be set")
	}
	if c.Orchestrator.TimeoutSeconds <= 0 {
		return fmt.Errorf("orchestrator.timeout_seconds must be > 0")
	}
	if c.Orchestrator.DelayMillis < 0 {
		return fmt.Errorf("orchestrator.delay_millis must be >= 0")
	}
	switch c.Orchestrator.Runner {
	case "process", "inprocess":
	default:
		return fmt.Errorf("orchestrator.runner must be process or inprocess, got %q", c.Orchestrator.Runner)
	}
	for name, src := range c.Sources {
		if src.Enabled && src.Pages <= 0 {
			return fmt.Errorf("sources.%s.pages must be > 0", name)
		}
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxPosterBytes <= 0 {
		return fmt.Errorf("http.max_poster_bytes must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Enrich.ModelEndpoint == "" {
		return fmt.Errorf("enrich.model_endpoint must be set")
	}
	if c.Enrich.MaxRetries < 0 {
		return fmt.Errorf("enrich.max_retries must be >= 0")
	}
	if c.Enrich.CheckpointEvery <= 0 {
		return fmt.Errorf("enrich.checkpoint_every must be > 0")
	}
	switch c.Storage.Provider {
	case "", "none", "memory":
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local provider")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("storage.provider %q is not supported", c.Storage.Provider)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// Path joins name onto the data directory.
func (c Config) Path(name string) string {
	return filepath.Join(c.Data.Dir, name)
}

// WorkDir is where sources drop their transient artifacts. It defaults to a work
// subdirectory of the data directory.
func (c Config) WorkDir() string {
	if c.Data.WorkDir != "" {
		return c.Data.WorkDir
	}
	return filepath.Join(c.Data.Dir, "work")
}

// SourceTimeout converts the per-source budget into a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Orchestrator.TimeoutSeconds) * time.Second
}

// SourceDelay is the pause inserted between sources.
func (c Config) SourceDelay() time.Duration {
	return time.Duration(c.Orchestrator.DelayMillis) * time.Millisecond
}

// LockTTL is how long a run lock survives without release.
func (c Config) LockTTL() time.Duration {
	return time.Duration(c.Redis.LockTTLSeconds) * time.Second
}

// Millis converts a millisecond knob into a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Seconds converts a second knob into a duration.
func Seconds(s int) time.Duration {
	return time.Duration(s) * time.Second
}
