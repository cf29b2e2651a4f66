package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/target/runboard/internal/core"
	"github.com/target/runboard/internal/domain/model"
	"github.com/target/runboard/internal/domain/plan"
	apperrors "github.com/target/runboard/internal/errors"
	"github.com/target/runboard/internal/observability/metrics"
	"github.com/target/runboard/internal/observability/statsd"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Store     core.JobStore  // Required: job record store
	Plans     *plan.Registry // Required: plans jobs are created from
	Escalator core.Escalator // Optional: escalation fan-out for failed steps
	Logger    *slog.Logger   // Optional: structured logger
	Metrics   statsd.Sink    // Optional: metrics sink
	Now       func() time.Time
}

// JobService creates jobs from plans and exposes the operator actions on existing jobs.
type JobService struct {
	store     core.JobStore
	plans     *plan.Registry
	escalator core.Escalator
	logger    *slog.Logger
	metrics   statsd.Sink
	now       func() time.Time
}

// EnqueueRequest asks for a new pending job running the named plan.
type EnqueueRequest struct {
	Plan   string            `json:"plan"`
	Params map[string]string `json:"params,omitempty"`
	// Label overrides the label rendered from the plan.
	Label string `json:"label,omitempty"`
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Plans == nil {
		return nil, errors.New("plan registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &JobService{
		store:     opts.Store,
		plans:     opts.Plans,
		escalator: opts.Escalator,
		logger:    logger.With("component", "job_service"),
		metrics:   opts.Metrics,
		now:       now,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Enqueue resolves the plan's params, renders its label and key details, and creates a
// pending job for a runner to pick up.
func (s *JobService) Enqueue(ctx context.Context, req EnqueueRequest) (*model.JobRecord, error) {
	p, err := s.plans.Get(strings.TrimSpace(req.Plan))
	if err != nil {
		return nil, err
	}
	params, err := p.ResolveParams(req.Params)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid params")
	}
	rendered, err := p.Render(params, s.now())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "render plan")
	}

	create := &model.CreateJobRequest{
		Label:      rendered.Label,
		Name:       rendered.KeyDetails[model.KeyDetailProcessName],
		Plan:       p.Name,
		Params:     params,
		KeyDetails: rendered.KeyDetails,
	}
	if label := strings.TrimSpace(req.Label); label != "" {
		create.Label = label
	}
	if create.Name == "" {
		create.Name = p.Name
	}
	if create.KeyDetails == nil {
		create.KeyDetails = map[string]string{}
	}
	if _, ok := create.KeyDetails[model.KeyDetailTeam]; !ok && p.Team != "" {
		create.KeyDetails[model.KeyDetailTeam] = p.Team
	}
	if err := create.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job")
	}

	rec, err := s.store.CreateJob(ctx, create)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Plan:       p.Name,
		Transition: "created",
		Result:     metrics.ResultSuccess,
	})
	s.logger.InfoContext(ctx, "job enqueued", "job_id", rec.Job.ID, "plan", p.Name, "label", rec.Job.Label)
	return rec, nil
}

// Get returns the job's record.
func (s *JobService) Get(ctx context.Context, id model.JobID) (*model.JobRecord, error) {
	return s.store.ReadJob(ctx, id)
}

// List returns the job index, optionally restricted to one status.
func (s *JobService) List(ctx context.Context, status model.JobStatus) ([]model.JobSummary, error) {
	index, err := s.store.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if status == "" {
		return index, nil
	}
	out := make([]model.JobSummary, 0, len(index))
	for _, entry := range index {
		if entry.Status == status.DisplayName() {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Void discards a job that has not finished.
func (s *JobService) Void(ctx context.Context, id model.JobID) error {
	if err := s.store.SetJobStatus(ctx, id, model.JobStatusVoid); err != nil {
		return err
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: "void", Result: metrics.ResultSuccess})
	s.logger.InfoContext(ctx, "job voided", "job_id", id)
	return nil
}

// Escalate sends a failed step to the escalation sinks. Only steps in error can be escalated.
func (s *JobService) Escalate(ctx context.Context, id model.JobID, stepID string) error {
	if s.escalator == nil {
		return apperrors.Validation("escalation is not configured")
	}
	rec, err := s.store.ReadJob(ctx, id)
	if err != nil {
		return err
	}
	idx := rec.StepIndex(stepID)
	if idx < 0 {
		return apperrors.NotFoundf("step %s not found in job %s", stepID, id)
	}
	step := rec.Logs[idx]
	if step.Status != model.StepStatusError {
		return apperrors.InvalidTransitionf("step %s is %s; only failed steps can be escalated", stepID, step.Status)
	}
	req := core.EscalationRequest{
		JobID:      id,
		JobLabel:   rec.Job.Label,
		Plan:       rec.Job.Plan,
		StepID:     step.ID,
		StepTitle:  step.Title,
		StepTime:   step.Time,
		Details:    append(append([]string(nil), step.Description...), step.Reasoning...),
		KeyDetails: maps.Clone(rec.KeyDetails),
	}
	if err := s.escalator.Escalate(ctx, req); err != nil {
		return apperrors.ExternalActionFailed(err, "escalation failed")
	}
	s.logger.InfoContext(ctx, "step escalated", "job_id", id, "step_id", stepID)
	return nil
}

// Plans lists the names of the plans jobs can be created from.
func (s *JobService) Plans() []string {
	return s.plans.Names()
}

// Plan returns the named plan.
func (s *JobService) Plan(name string) (*plan.Plan, error) {
	return s.plans.Get(name)
}
