// Package scheduler triggers pipeline runs on a cron spec.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler wraps robfig/cron. Overlapping ticks are skipped rather than queued.
type Scheduler struct {
	cron       *cron.Cron
	spec       string
	job        Job
	runOnStart bool
	logger     *zap.Logger

	// startup tracks the run-on-start job, which cron's own Stop does not wait for.
	startup sync.WaitGroup
}

// New builds a Scheduler; nothing runs until Start.
func New(spec string, runOnStart bool, job Job, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron:       cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		spec:       spec,
		job:        job,
		runOnStart: runOnStart,
		logger:     logger,
	}
}

// Start registers the job and starts ticking. With runOnStart the job also fires once
// immediately through the same skip-if-running chain.
func (s *Scheduler) Start(ctx context.Context) error {
	id, err := s.cron.AddFunc(s.spec, func() { s.run(ctx) })
	if err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec), zap.Time("next", s.cron.Entry(id).Next))

	if s.runOnStart {
		job := s.cron.Entry(id).WrappedJob
		s.startup.Add(1)
		go func() {
			defer s.startup.Done()
			job.Run()
		}()
	}
	return nil
}

// Stop halts new ticks and returns a context that is done once running jobs finish,
// including a run-on-start job still in flight.
func (s *Scheduler) Stop() context.Context {
	cronDone := s.cron.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		s.startup.Wait()
		s.logger.Info("scheduler stopped")
		cancel()
	}()
	return ctx
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.job(ctx); err != nil {
		s.logger.Error("scheduled run failed", zap.Error(err))
	}
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
