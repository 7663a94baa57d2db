package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/contestlab/contest-pipeline/internal/artifact"
	"github.com/contestlab/contest-pipeline/internal/contest"
	"github.com/contestlab/contest-pipeline/internal/source"
)

// Runner executes one source to completion, leaving its transient artifacts in the
// work directory. The caller bounds ctx with the per-source timeout.
type Runner interface {
	Run(ctx context.Context, name string) error
}

// AcceptedArtifact names the transient list of accepted records for a source.
func AcceptedArtifact(name string) string { return name + "_temp.json" }

// ExcludedArtifact names the transient list of excluded records for a source.
func ExcludedArtifact(name string) string { return name + "_excluded_temp.json" }

// RunSource crawls with adapter and writes its transient artifacts into work. The
// exclusion artifact is only written when something was excluded.
func RunSource(ctx context.Context, adapter source.Adapter, work *artifact.Store) error {
	result, err := adapter.Crawl(ctx)
	if err != nil {
		return fmt.Errorf("crawl %s: %w", adapter.Name(), err)
	}
	accepted := result.Accepted
	if accepted == nil {
		accepted = []contest.Record{}
	}
	if err := work.WriteJSON(ctx, AcceptedArtifact(adapter.Name()), accepted); err != nil {
		return err
	}
	if len(result.Excluded) > 0 {
		if err := work.WriteJSON(ctx, ExcludedArtifact(adapter.Name()), result.Excluded); err != nil {
			return err
		}
	}
	return nil
}

// ProcessRunner runs each source in a child process by re-invoking the pipeline
// binary with its hidden source command. Cancelling ctx kills the child.
type ProcessRunner struct {
	// Executable is the binary to run, usually os.Executable().
	Executable string
	// Args precede the source command, e.g. a --config flag.
	Args    []string
	WorkDir string
	Stdout  io.Writer
	Stderr  io.Writer
	// WaitDelay bounds how long to wait for output pipes after the child is killed.
	WaitDelay time.Duration
}

// Run implements Runner.
func (r ProcessRunner) Run(ctx context.Context, name string) error {
	args := append(append([]string{}, r.Args...), "source", name, "--work-dir", r.WorkDir)
	cmd := exec.CommandContext(ctx, r.Executable, args...) // #nosec G204 -- re-executes this binary.
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 5 * time.Second
	}
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("source %s: %w", name, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("source %s exited with code %d: %w", name, exitErr.ExitCode(), err)
		}
		return fmt.Errorf("source %s: %w", name, err)
	}
	return nil
}

// InProcessRunner runs adapters on a goroutine. A panic is recovered into an error
// and the deadline is enforced by abandoning the goroutine.
type InProcessRunner struct {
	Build func(name string) (source.Adapter, error)
	Work  *artifact.Store
}

// Run implements Runner.
func (r InProcessRunner) Run(ctx context.Context, name string) error {
	adapter, err := r.Build(name)
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("source %s panicked: %v", name, p)
			}
		}()
		done <- RunSource(ctx, adapter, r.Work)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("source %s: %w", name, ctx.Err())
	case err := <-done:
		return err
	}
}
