package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/target/runboard/internal/domain/model"
	apperrors "github.com/target/runboard/internal/errors"
)

// Run starts worker goroutines that pick up pending jobs until the context is cancelled.
// Returns nil on graceful shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner", "workers", r.workers, "poll_interval", r.pollInterval)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx); err != nil {
				// first error wins, cancels all workers
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (r *Runner) workerLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		id, ok, err := r.claimNext(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			// Listing failures are transient from the worker's point of view.
			r.logger.WarnContext(ctx, "look up pending jobs failed", "error", err)
		case ok:
			r.executeClaimed(ctx, id)
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// claimNext claims the oldest pending job no other worker has claimed first.
func (r *Runner) claimNext(ctx context.Context) (model.JobID, bool, error) {
	pending, err := r.store.JobsByStatus(ctx, model.JobStatusPending)
	if err != nil {
		return 0, false, fmt.Errorf("list pending jobs: %w", err)
	}
	for _, j := range pending {
		err := r.store.SetJobStatus(ctx, j.ID, model.JobStatusInProgress)
		switch {
		case err == nil:
			return j.ID, true, nil
		case apperrors.IsInvalidTransition(err), apperrors.IsNotFound(err):
			// Claimed, voided, or reaped in the meantime.
			continue
		default:
			return 0, false, fmt.Errorf("claim job %s: %w", j.ID, err)
		}
	}
	return 0, false, nil
}

func (r *Runner) executeClaimed(ctx context.Context, id model.JobID) {
	status, err := r.Execute(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		r.logger.InfoContext(ctx, "job interrupted by shutdown", "job_id", id)
	case status == "":
		r.logger.ErrorContext(ctx, "job aborted", "job_id", id, "error", err)
	default:
		r.logger.WarnContext(ctx, "job ended with failure", "job_id", id, "status", status, "error", err)
	}
}
