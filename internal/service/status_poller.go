package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/target/runboard/internal/core"
	"github.com/target/runboard/internal/domain/model"
	apperrors "github.com/target/runboard/internal/errors"
)

// DefaultPollInterval is how often a StatusPoller re-reads a job.
const DefaultPollInterval = 2 * time.Second

// Snapshot is what a viewer renders for one job at one poll.
type Snapshot struct {
	// Record is the most recent successfully read record. Nil while the job does not exist yet.
	Record *model.JobRecord
	// Loading is set while the job is not found.
	Loading bool
	// Err is the last read failure. The previous Record is kept alongside it.
	Err       error
	FetchedAt time.Time
}

// Done reports whether the snapshot shows a job that will not change again.
func (s Snapshot) Done() bool {
	return s.Record != nil && s.Record.Job.Status.Terminal()
}

// StatusPollerOptions groups dependencies for StatusPoller.
type StatusPollerOptions struct {
	Store    core.JobStore // Required: job record store (read-only use)
	Interval time.Duration // Optional: defaults to DefaultPollInterval
	Logger   *slog.Logger  // Optional: structured logger
	Now      func() time.Time
}

// StatusPoller periodically re-reads a job record for display. It never writes.
type StatusPoller struct {
	store    core.JobStore
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewStatusPoller constructs a StatusPoller.
func NewStatusPoller(opts StatusPollerOptions) (*StatusPoller, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &StatusPoller{
		store:    opts.Store,
		interval: interval,
		logger:   logger.With("component", "status_poller"),
		now:      now,
	}, nil
}

// Interval returns the poll interval.
func (p *StatusPoller) Interval() time.Duration { return p.interval }

// Fetch reads the job once and derives the next snapshot from prev. A fetched record replaces
// the previous one wholesale; NotFound yields a loading snapshot; any other failure keeps the
// previous record and reports the error.
func (p *StatusPoller) Fetch(ctx context.Context, id model.JobID, prev Snapshot) Snapshot {
	rec, err := p.store.ReadJob(ctx, id)
	now := p.now()
	switch {
	case err == nil:
		return Snapshot{Record: rec, FetchedAt: now}
	case apperrors.IsNotFound(err):
		return Snapshot{Loading: true, FetchedAt: now}
	default:
		p.logger.WarnContext(ctx, "job read failed; keeping last snapshot", "job_id", id, "error", err)
		return Snapshot{Record: prev.Record, Loading: prev.Loading, Err: err, FetchedAt: prev.FetchedAt}
	}
}

// Watch polls the job until it reaches a terminal status or ctx is cancelled, calling fn with
// every snapshot. Cancellation is not an error.
func (p *StatusPoller) Watch(ctx context.Context, id model.JobID, fn func(Snapshot)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	snap := Snapshot{Loading: true}
	for {
		snap = p.Fetch(ctx, id, snap)
		if ctx.Err() != nil {
			return nil
		}
		fn(snap)
		if snap.Done() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
