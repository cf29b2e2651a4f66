package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/target/runboard/config"
	"github.com/target/runboard/internal/core"
	"github.com/target/runboard/internal/domain/model"
	apperrors "github.com/target/runboard/internal/errors"
	obserrors "github.com/target/runboard/internal/observability/errors"
	"github.com/target/runboard/internal/observability/metrics"
	"github.com/target/runboard/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Store   core.JobStore
	Config  config.ReaperConfig
	Logger  *slog.Logger
	Metrics statsd.Sink
	// Now overrides the clock in tests.
	Now func() time.Time
}

// ReaperService fails jobs that will never make progress on their own: pending jobs no runner
// claimed within PendingMaxAge, and in-progress jobs whose record went quiet for
// InProgressMaxAge because their runner died.
type ReaperService struct {
	store   core.JobStore
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

// NewReaperService requires a store; everything else has defaults.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Store == nil {
		return nil, errors.New("job store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ReaperService{
		store:   opts.Store,
		config:  opts.Config,
		logger:  logger.With("component", "reaper"),
		metrics: opts.Metrics,
		now:     now,
	}, nil
}

// Run sweeps once after a short random delay, then every Interval until ctx is cancelled.
// Cancellation is a clean stop.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "reaper started",
		"interval", s.config.Interval,
		"pending_max_age", s.config.PendingMaxAge,
		"in_progress_max_age", s.config.InProgressMaxAge)

	// Replicas started together should not sweep in lockstep.
	if jitter := s.config.Interval / 10; jitter > 0 {
		select {
		case <-time.After(rand.N(jitter)):
		case <-ctx.Done():
			return nil
		}
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil && !isContextCancellation(err) {
			s.logger.ErrorContext(ctx, "reaper sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("reaper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// CleanupResult reports how many jobs one pass failed.
type CleanupResult struct {
	StalePending int64
	Abandoned    int64
}

// Total returns the number of jobs failed by the pass.
func (r CleanupResult) Total() int64 { return r.StalePending + r.Abandoned }

// sweep fails every job in status whose age, as measured by ageFrom, exceeds maxAge.
type sweep struct {
	label     string
	operation string
	status    model.JobStatus
	maxAge    time.Duration
	ageFrom   func(model.Job) time.Time
	reason    string
	// readLast loads the record so an open processing step can be closed instead of appended to.
	readLast bool
}

func (s *ReaperService) sweeps() []sweep {
	return []sweep{
		{
			label:     "fail stale pending jobs",
			operation: "fail_pending",
			status:    model.JobStatusPending,
			maxAge:    s.config.PendingMaxAge,
			ageFrom:   func(j model.Job) time.Time { return j.CreatedAt },
			reason:    fmt.Sprintf("Error: job was not picked up within %s", s.config.PendingMaxAge),
		},
		{
			label:     "fail abandoned jobs",
			operation: "fail_abandoned",
			status:    model.JobStatusInProgress,
			maxAge:    s.config.InProgressMaxAge,
			ageFrom:   func(j model.Job) time.Time { return j.UpdatedAt },
			reason:    fmt.Sprintf("Error: runner stopped reporting for %s", s.config.InProgressMaxAge),
			readLast:  true,
		},
	}
}

// RunOnce performs every sweep once. A failing sweep does not stop the next one.
func (s *ReaperService) RunOnce(ctx context.Context) (CleanupResult, error) {
	start := time.Now()
	sweeps := s.sweeps()
	counts := make([]int64, len(sweeps))
	var errs []error

	for i, sw := range sweeps {
		n, err := s.runSweep(ctx, sw)
		counts[i] = n
		s.emitSweep(sw.operation, n, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sw.label, err))
			continue
		}
		if n > 0 {
			s.logger.InfoContext(ctx, sw.label, "count", n, "max_age", sw.maxAge)
		}
	}

	result := CleanupResult{StalePending: counts[0], Abandoned: counts[1]}
	err := errors.Join(errs...)
	s.emitPass(result, err, time.Since(start))

	switch {
	case err == nil:
		return result, nil
	case isContextCancellation(err) && ctx.Err() != nil:
		return result, context.Canceled
	default:
		return result, fmt.Errorf("cleanup failed: %w", err)
	}
}

func (s *ReaperService) runSweep(ctx context.Context, sw sweep) (int64, error) {
	jobs, err := s.store.JobsByStatus(ctx, sw.status)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-sw.maxAge)

	var failed int64
	for _, j := range jobs {
		if err := ctx.Err(); err != nil {
			return failed, err
		}
		if !sw.ageFrom(j).Before(cutoff) {
			continue
		}

		var last *model.Step
		if sw.readLast {
			rec, err := s.store.ReadJob(ctx, j.ID)
			if apperrors.IsNotFound(err) {
				continue
			}
			if err != nil {
				return failed, err
			}
			last = rec.LastStep()
		}

		ok, err := s.failJob(ctx, j.ID, last, sw.reason)
		if err != nil {
			return failed, err
		}
		if ok {
			failed++
		}
	}
	return failed, nil
}

// failJob records reason on the job and moves it to error. A processing last step is closed
// as the failed step; otherwise a new error step is appended. Losing a race with a runner that
// finished the job in the meantime reports false without an error.
func (s *ReaperService) failJob(ctx context.Context, id model.JobID, last *model.Step, reason string) (bool, error) {
	var err error
	if last != nil && last.Status == model.StepStatusProcessing {
		err = s.store.UpdateStep(ctx, id, last.ID, model.StepPatch{
			Status:      model.StatusPtr(model.StepStatusError),
			Title:       model.StringPtr(reason),
			Description: []string{"Last reported action: " + last.Title},
		})
	} else {
		err = s.store.AppendStep(ctx, id, model.Step{
			ID:     "reaper-" + uuid.NewString(),
			Time:   s.now(),
			Title:  reason,
			Status: model.StepStatusError,
		})
	}
	if err == nil {
		err = s.store.SetJobStatus(ctx, id, model.JobStatusError)
	}
	switch {
	case err == nil:
	case apperrors.IsInvalidTransition(err), apperrors.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}

	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: "reaped", Result: metrics.ResultError})
	return true, nil
}

func sweepResult(count int64, err error) string {
	switch {
	case err != nil:
		return metrics.ResultError
	case count == 0:
		return metrics.ResultNoop
	default:
		return metrics.ResultSuccess
	}
}

func resultTags(count int64, err error) map[string]string {
	err = suppressContextCancellation(err)
	tags := map[string]string{"result": sweepResult(count, err)}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}
	return tags
}

func (s *ReaperService) emitSweep(operation string, count int64, err error) {
	if s.metrics == nil {
		return
	}
	tags := resultTags(count, err)
	tags["operation"] = operation
	s.metrics.Count("reaper.cleanup_operation", 1, tags)
	if err == nil && count > 0 {
		s.metrics.Count("reaper.jobs_processed", count, metrics.CloneTags(tags))
	}
}

func (s *ReaperService) emitPass(result CleanupResult, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	tags := resultTags(result.Total(), err)
	s.metrics.Count("reaper.cleanup", 1, tags)
	s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	if err == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(s.now().Unix()), nil)
	}
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
