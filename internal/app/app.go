// Package app builds the pipeline's long-lived services from configuration and runs
// the crawl, enrichment, and persistence stages in order.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/contestlab/contest-pipeline/internal/artifact"
	"github.com/contestlab/contest-pipeline/internal/clock/system"
	"github.com/contestlab/contest-pipeline/internal/config"
	"github.com/contestlab/contest-pipeline/internal/contest"
	"github.com/contestlab/contest-pipeline/internal/enrich"
	"github.com/contestlab/contest-pipeline/internal/enrich/ollama"
	posterfetcher "github.com/contestlab/contest-pipeline/internal/fetcher/poster"
	"github.com/contestlab/contest-pipeline/internal/hash/sha256"
	"github.com/contestlab/contest-pipeline/internal/id/uuid"
	"github.com/contestlab/contest-pipeline/internal/lock"
	redislock "github.com/contestlab/contest-pipeline/internal/lock/redis"
	"github.com/contestlab/contest-pipeline/internal/logging"
	"github.com/contestlab/contest-pipeline/internal/merge"
	"github.com/contestlab/contest-pipeline/internal/orchestrator"
	memorypublisher "github.com/contestlab/contest-pipeline/internal/publisher/memory"
	gcppublisher "github.com/contestlab/contest-pipeline/internal/publisher/pubsub"
	"github.com/contestlab/contest-pipeline/internal/storage"
	gcsstorage "github.com/contestlab/contest-pipeline/internal/storage/gcs"
	localstorage "github.com/contestlab/contest-pipeline/internal/storage/local"
	memorystorage "github.com/contestlab/contest-pipeline/internal/storage/memory"
	pgstore "github.com/contestlab/contest-pipeline/internal/storage/postgres"
)

// LockName is the lock key shared by every pipeline instance.
const LockName = "pipeline"

// Options carries values that come from the command line rather than config.
type Options struct {
	// ConfigPath is handed to child source processes so they load the same config.
	ConfigPath string
	// Executable overrides os.Executable for the process runner.
	Executable string
}

// App holds the services shared by every stage of a run.
type App struct {
	cfg    config.Config
	opts   Options
	logger *zap.Logger

	clock contest.Clock
	ids   contest.IDGenerator

	data      *artifact.Store
	work      *artifact.Store
	mirror    *storage.Mirror
	orch      *orchestrator.Orchestrator
	analyzer  *enrich.Analyzer
	posters   contest.Fetcher
	bridge    contest.Bridge
	publisher contest.Publisher
	locker    contest.Locker
	model     *ollama.Client

	closers []func(context.Context) error

	mu     sync.RWMutex
	latest *Summary
}

// Build creates every dependency. Setup errors are returned; optional collaborators
// that are not configured fall back to local or no-op implementations.
func Build(ctx context.Context, cfg config.Config, opts Options, logger *zap.Logger) (*App, error) {
	a := &App{
		cfg:    cfg,
		opts:   opts,
		logger: logging.OrNop(logger),
		clock:  system.New(cfg.Data.TimeZone),
		ids:    uuid.New(),
	}
	a.logger.Info("building pipeline",
		zap.String("data_dir", cfg.Data.Dir),
		zap.String("runner", cfg.Orchestrator.Runner),
		zap.String("storage", cfg.Storage.Provider),
	)

	if err := a.setupArtifacts(ctx); err != nil {
		a.closeQuietly()
		return nil, err
	}
	if err := a.setupBridge(ctx); err != nil {
		a.closeQuietly()
		return nil, err
	}
	if err := a.setupLocker(ctx); err != nil {
		a.closeQuietly()
		return nil, err
	}
	if err := a.setupEnrichment(); err != nil {
		a.closeQuietly()
		return nil, err
	}
	if err := a.setupOrchestrator(); err != nil {
		a.closeQuietly()
		return nil, err
	}
	return a, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Latest returns the summary of the most recent finished run.
func (a *App) Latest() (Summary, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.latest == nil {
		return Summary{}, false
	}
	return *a.latest, true
}

// Ready reports whether the data directory is usable.
func (a *App) Ready(context.Context) error {
	info, err := os.Stat(a.data.Dir())
	if err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data dir %s is not a directory", a.data.Dir())
	}
	return nil
}

// Close releases every client opened by Build.
func (a *App) Close(ctx context.Context) error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	a.closers = nil
	return first
}

func (a *App) closeQuietly() {
	_ = a.Close(context.Background())
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *App) setupArtifacts(ctx context.Context) error {
	blobs, err := a.setupBlobStore(ctx)
	if err != nil {
		return err
	}
	var opts []artifact.Option
	if blobs != nil {
		opts = append(opts, artifact.WithMirror(blobs, a.cfg.Storage.Prefix+"/latest"))
	}
	opts = append(opts, artifact.WithLogger(a.logger.Named("artifact")))
	if a.data, err = artifact.New(a.cfg.Data.Dir, opts...); err != nil {
		return fmt.Errorf("data store: %w", err)
	}
	if a.work, err = artifact.New(a.cfg.WorkDir(), artifact.WithLogger(a.logger.Named("artifact"))); err != nil {
		return fmt.Errorf("work store: %w", err)
	}
	a.mirror = storage.NewMirror(blobs, a.cfg.Storage.Prefix+"/runs", a.logger.Named("mirror"))
	return nil
}

func (a *App) setupBlobStore(ctx context.Context) (contest.BlobStore, error) {
	switch a.cfg.Storage.Provider {
	case "gcs":
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.onClose(func(context.Context) error { return store.Close() })
		a.logger.Info("mirroring artifacts to GCS", zap.String("bucket", a.cfg.Storage.Bucket))
		return store, nil
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("mirroring artifacts locally", zap.String("path", a.cfg.Storage.BaseDir))
		return store, nil
	case "memory":
		a.logger.Info("mirroring artifacts in memory")
		return memorystorage.NewBlobStore(), nil
	default:
		return nil, nil
	}
}

func (a *App) setupBridge(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no db.dsn configured, enriched contests will not be persisted")
		a.bridge = storage.Unavailable{Logger: a.logger.Named("bridge")}
		return nil
	}
	if a.cfg.DB.MigrateOnStart {
		if err := pgstore.RunMigrations(a.cfg.DB.DSN); err != nil {
			return fmt.Errorf("migrate on start: %w", err)
		}
		a.logger.Info("database migrations applied")
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}
	a.publisher = publisher
	store, err := pgstore.NewContestStore(ctx, pgstore.Config{
		DSN:      a.cfg.DB.DSN,
		MaxConns: a.cfg.DB.MaxConns,
		Topic:    a.cfg.PubSub.Topic,
	}, publisher, a.logger.Named("bridge"))
	if err != nil {
		return fmt.Errorf("contest store init failed: %w", err)
	}
	a.onClose(func(context.Context) error {
		store.Close()
		return nil
	})
	a.bridge = store
	return nil
}

func (a *App) setupPublisher(ctx context.Context) (contest.Publisher, error) {
	if a.cfg.PubSub.Topic == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub topic configured, new-contest notifications stay in memory",
			zap.String("topic", pgstore.DefaultTopic))
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub init failed: %w", err)
	}
	a.onClose(func(context.Context) error { return pub.Close() })
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return pub, nil
}

func (a *App) setupLocker(ctx context.Context) error {
	if a.cfg.Redis.URL == "" {
		a.locker = lock.NewLocal()
		return nil
	}
	locker, rdb, err := redislock.Connect(ctx, a.cfg.Redis.URL, a.cfg.LockTTL())
	if err != nil {
		return fmt.Errorf("redis lock init failed: %w", err)
	}
	a.onClose(func(context.Context) error { return rdb.Close() })
	a.locker = locker
	a.logger.Info("distributed run lock enabled", zap.Duration("ttl", a.cfg.LockTTL()))
	return nil
}

func (a *App) setupEnrichment() error {
	model, err := ollama.New(ollama.Config{
		Endpoint:      a.cfg.Enrich.ModelEndpoint,
		Model:         a.cfg.Enrich.Model,
		Timeout:       config.Seconds(a.cfg.Enrich.RequestTimeoutSeconds),
		Temperature:   a.cfg.Enrich.Temperature,
		TopK:          a.cfg.Enrich.TopK,
		RepeatPenalty: a.cfg.Enrich.RepeatPenalty,
	})
	if err != nil {
		return fmt.Errorf("model client: %w", err)
	}
	a.model = model
	a.analyzer = enrich.NewAnalyzer(model, enrich.RetryPolicy{
		MaxRetries:     a.cfg.Enrich.MaxRetries,
		InvalidBackoff: config.Millis(a.cfg.Enrich.InvalidBackoffMillis),
		ErrorBackoff:   config.Millis(a.cfg.Enrich.ErrorBackoffMillis),
	}, a.logger.Named("model"))
	a.posters = posterfetcher.New(posterfetcher.Config{
		UserAgent:            a.cfg.HTTP.UserAgent,
		Timeout:              config.Seconds(a.cfg.HTTP.DownloadTimeoutSeconds),
		MaxBytes:             a.cfg.HTTP.MaxPosterBytes,
		BlockPrivateNetworks: a.cfg.HTTP.BlockPrivateNetworks,
	})
	return nil
}

func (a *App) setupOrchestrator() error {
	fingerprints := merge.NewFingerprinter(
		posterfetcher.New(posterfetcher.Config{
			UserAgent:            a.cfg.HTTP.UserAgent,
			Timeout:              config.Seconds(a.cfg.HTTP.PosterTimeoutSeconds),
			MaxBytes:             a.cfg.HTTP.MaxPosterBytes,
			BlockPrivateNetworks: a.cfg.HTTP.BlockPrivateNetworks,
		}),
		sha256.New(),
		config.Seconds(a.cfg.HTTP.PosterTimeoutSeconds),
	)
	merger := merge.NewEngine(fingerprints, a.clock, a.ids, a.logger.Named("merge"))

	runner, err := a.setupRunner()
	if err != nil {
		return err
	}
	a.orch = orchestrator.New(orchestrator.Config{
		Timeout: a.cfg.SourceTimeout(),
		Delay:   a.cfg.SourceDelay(),
		Files: orchestrator.Files{
			Catalog:    a.cfg.Data.CatalogFile,
			Duplicates: a.cfg.Data.DuplicatesFile,
			Excluded:   a.cfg.Data.ExcludedFile,
		},
	}, runner, a.work, a.data, merger, a.logger.Named("orchestrator"))
	return nil
}

func (a *App) setupRunner() (orchestrator.Runner, error) {
	if a.cfg.Orchestrator.Runner == "inprocess" {
		host, err := NewSourceHost(a.cfg, a.logger)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error {
			host.Close()
			return nil
		})
		a.logger.Info("sources run in-process")
		return orchestrator.InProcessRunner{Build: host.Adapter, Work: a.work}, nil
	}

	exe := a.opts.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return nil, fmt.Errorf("locate executable for source processes: %w", err)
		}
	}
	var args []string
	if a.opts.ConfigPath != "" {
		args = append(args, "--config", a.opts.ConfigPath)
	}
	a.logger.Info("sources run as child processes", zap.String("executable", exe))
	return orchestrator.ProcessRunner{
		Executable: exe,
		Args:       args,
		WorkDir:    a.work.Dir(),
		Stdout:     os.Stderr,
		Stderr:     os.Stderr,
		WaitDelay:  5 * time.Second,
	}, nil
}
