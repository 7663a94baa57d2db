package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/contestlab/contest-pipeline/internal/api"
	"github.com/contestlab/contest-pipeline/internal/app"
	"github.com/contestlab/contest-pipeline/internal/scheduler"
)

func newScheduleCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on a cron schedule and serve the ops endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer c.close(cmd.Context(), a)
			return serve(cmd.Context(), a, c.logger)
		},
	}
}

// runGuard keeps scheduled and manual runs in one process from overlapping and
// tracks manual runs so shutdown can wait for them.
type runGuard struct {
	do      func(context.Context) error
	running atomic.Bool
	manual  sync.WaitGroup
	logger  *zap.Logger
}

func newRunGuard(a *app.App, logger *zap.Logger) *runGuard {
	return &runGuard{
		do: func(ctx context.Context) error {
			_, err := a.Run(ctx)
			return err
		},
		logger: logger,
	}
}

func (g *runGuard) run(ctx context.Context) error {
	if !g.running.CompareAndSwap(false, true) {
		g.logger.Info("run already in progress, skipping tick")
		return nil
	}
	defer g.running.Store(false)
	return g.do(ctx)
}

func (g *runGuard) trigger(ctx context.Context) api.Trigger {
	return func() bool {
		if !g.running.CompareAndSwap(false, true) {
			return false
		}
		g.manual.Add(1)
		go func() {
			defer g.manual.Done()
			defer g.running.Store(false)
			if err := g.do(ctx); err != nil {
				g.logger.Error("manual run failed", zap.Error(err))
			}
		}()
		return true
	}
}

// wait blocks until every manual run has returned.
func (g *runGuard) wait() {
	g.manual.Wait()
}

func serve(ctx context.Context, a *app.App, logger *zap.Logger) error {
	cfg := a.Config()
	guard := newRunGuard(a, logger.Named("runs"))
	sched := scheduler.New(cfg.Schedule.Spec, cfg.Schedule.RunOnStart, guard.run, logger.Named("scheduler"))

	g, gctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           api.NewServer(a, guard.trigger(gctx), logger.Named("api")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logger.Info("ops server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := sched.Start(gctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		logger.Info("scheduler started", zap.String("spec", cfg.Schedule.Spec))
		<-gctx.Done()
		<-sched.Stop().Done()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown ops server: %w", err)
		}
		return nil
	})

	err := g.Wait()
	guard.wait()
	if err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
