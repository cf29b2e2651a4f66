// Package jobrunner executes step plans against the automation collaborator and records every
// step in the job record store.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/target/runboard/internal/core"
	"github.com/target/runboard/internal/domain/model"
	"github.com/target/runboard/internal/domain/plan"
	apperrors "github.com/target/runboard/internal/errors"
	"github.com/target/runboard/internal/observability/metrics"
	"github.com/target/runboard/internal/observability/statsd"
)

// CredentialAwaiter blocks until a one-time password with enough validity is available.
type CredentialAwaiter interface {
	AwaitFreshCredential(ctx context.Context, minRemaining time.Duration, maxAttempts int) (core.Credential, error)
}

const (
	defaultActionTimeout      = 2 * time.Minute
	defaultPollInterval       = 2 * time.Second
	defaultCredentialAttempts = 3
	recordingLabel            = "Session Recording"
)

// RunnerOptions configures the job runner adapter.
type RunnerOptions struct {
	Store       core.JobStore
	Automation  core.Automation
	Credentials CredentialAwaiter
	// Publisher turns collaborator file paths into viewer locators. Nil keeps the paths as-is.
	Publisher core.ArtifactPublisher
	Plans     *plan.Registry
	Logger    *slog.Logger
	Metrics   statsd.Sink

	// ActionTimeout bounds one external action unless the plan step sets its own.
	ActionTimeout time.Duration
	// CredentialMinRemaining and CredentialAttempts parameterise the OTP wait before login steps.
	CredentialMinRemaining time.Duration
	CredentialAttempts     int

	// PollInterval and Concurrency configure Run.
	PollInterval time.Duration
	Concurrency  int

	Now func() time.Time
}

// Runner claims pending jobs and executes their plans one step at a time.
type Runner struct {
	store         core.JobStore
	automation    core.Automation
	credentials   CredentialAwaiter
	publisher     core.ArtifactPublisher
	plans         *plan.Registry
	logger        *slog.Logger
	metrics       statsd.Sink
	actionTimeout time.Duration
	minRemaining  time.Duration
	attempts      int
	pollInterval  time.Duration
	workers       int
	now           func() time.Time
}

// NewRunner validates options and constructs a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Automation == nil {
		return nil, errors.New("Automation is required")
	}
	if opts.Plans == nil {
		return nil, errors.New("plan registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		store:         opts.Store,
		automation:    opts.Automation,
		credentials:   opts.Credentials,
		publisher:     opts.Publisher,
		plans:         opts.Plans,
		logger:        logger.With("component", "job_runner"),
		metrics:       opts.Metrics,
		actionTimeout: opts.ActionTimeout,
		minRemaining:  opts.CredentialMinRemaining,
		attempts:      opts.CredentialAttempts,
		pollInterval:  opts.PollInterval,
		workers:       opts.Concurrency,
		now:           opts.Now,
	}
	if r.actionTimeout <= 0 {
		r.actionTimeout = defaultActionTimeout
	}
	if r.attempts <= 0 {
		r.attempts = defaultCredentialAttempts
	}
	if r.pollInterval <= 0 {
		r.pollInterval = defaultPollInterval
	}
	if r.workers <= 0 {
		r.workers = 1
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// execution carries the per-job state of one plan run.
type execution struct {
	rec        *model.JobRecord
	plan       *plan.Plan
	recordings map[string]model.Artifact
	started    time.Time
}

// RunJob claims the pending job and executes its plan to completion. It returns the status the
// job ended in. Step failures leave the job in error and are returned alongside that status;
// store failures abort immediately and leave the job as the store last saw it.
func (r *Runner) RunJob(ctx context.Context, id model.JobID) (model.JobStatus, error) {
	if err := r.store.SetJobStatus(ctx, id, model.JobStatusInProgress); err != nil {
		return "", fmt.Errorf("claim job %s: %w", id, err)
	}
	return r.Execute(ctx, id)
}

// Execute runs the plan of a job that is already in progress.
func (r *Runner) Execute(ctx context.Context, id model.JobID) (model.JobStatus, error) {
	rec, err := r.store.ReadJob(ctx, id)
	if err != nil {
		return "", fmt.Errorf("read job %s: %w", id, err)
	}
	logger := r.logger.With("job_id", id, "plan", rec.Job.Plan)

	exec := &execution{rec: rec, recordings: map[string]model.Artifact{}, started: r.now()}
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Plan:       rec.Job.Plan,
		Transition: "started",
		Result:     metrics.ResultSuccess,
	})

	exec.plan, err = r.resolvePlan(rec)
	if err != nil {
		logger.ErrorContext(ctx, "plan unavailable", "error", err)
		return r.failWithoutStep(ctx, exec, err)
	}

	logger.InfoContext(ctx, "executing job", "steps", len(exec.plan.Steps))
	for i, step := range exec.plan.Steps {
		if err := r.runStep(ctx, exec, i, step); err != nil {
			if isFatal(err) {
				logger.ErrorContext(ctx, "job aborted", "step", i+1, "error", err)
				return "", err
			}
			logger.WarnContext(ctx, "job failed", "step", i+1, "kind", step.Kind, "error", err)
			return r.finish(ctx, exec, model.JobStatusError, err)
		}
	}
	return r.finish(ctx, exec, model.JobStatusDone, nil)
}

func (r *Runner) resolvePlan(rec *model.JobRecord) (*plan.Plan, error) {
	p, err := r.plans.Get(rec.Job.Plan)
	if err != nil {
		return nil, err
	}
	params, err := p.ResolveParams(rec.Job.Params)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid job params")
	}
	return p.Render(params, rec.Job.CreatedAt)
}

// stepFailure is a business failure of one step: the step and the job are marked error.
type stepFailure struct {
	err error
}

func (f *stepFailure) Error() string { return f.err.Error() }
func (f *stepFailure) Unwrap() error { return f.err }

// isFatal reports whether err must stop the runner without any further store writes.
func isFatal(err error) bool {
	var sf *stepFailure
	return !errors.As(err, &sf)
}

func stepID(index int) string {
	return fmt.Sprintf("step-%02d", index+1)
}

// runStep performs the append / act / update protocol for one planned step.
func (r *Runner) runStep(ctx context.Context, exec *execution, index int, ps plan.Step) error {
	id := stepID(index)
	start := r.now()
	step := model.Step{
		ID:          id,
		Time:        start,
		Title:       ps.Title,
		Status:      model.StepStatusProcessing,
		Description: ps.Description,
	}
	if err := r.store.AppendStep(ctx, exec.rec.Job.ID, step); err != nil {
		return fmt.Errorf("append step %s: %w", id, err)
	}

	patch, actErr := r.perform(ctx, exec, id, ps)
	if actErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.emitStep(exec, ps, metrics.ResultError, start, actErr)
		failPatch := model.StepPatch{
			Status:      model.StatusPtr(model.StepStatusError),
			Title:       model.StringPtr("Error: " + failureTitle(ps, actErr)),
			Description: []string{actErr.Error()},
			Artifacts:   patch.Artifacts,
		}
		if err := r.store.UpdateStep(ctx, exec.rec.Job.ID, id, failPatch); err != nil {
			return fmt.Errorf("record failed step %s: %w", id, err)
		}
		return &stepFailure{err: actErr}
	}

	if err := r.store.UpdateStep(ctx, exec.rec.Job.ID, id, patch); err != nil {
		return fmt.Errorf("complete step %s: %w", id, err)
	}
	result := metrics.ResultSuccess
	if patch.Status != nil && *patch.Status == model.StepStatusWarning {
		result = metrics.ResultWarning
	}
	r.emitStep(exec, ps, result, start, nil)
	return nil
}

// perform executes the step's action and returns the completing patch.
func (r *Runner) perform(ctx context.Context, exec *execution, id string, ps plan.Step) (model.StepPatch, error) {
	patch := model.StepPatch{Status: model.StatusPtr(model.StepStatusSuccess)}
	if ps.SuccessTitle != "" {
		patch.Title = model.StringPtr(ps.SuccessTitle)
	}
	if !ps.Kind.External() {
		return patch, nil
	}

	action := core.Action{
		JobID:  exec.rec.Job.ID,
		StepID: id,
		Kind:   ps.Kind,
		Args:   ps.Args,
	}
	if ps.Kind.NeedsCredential() {
		if r.credentials == nil {
			return patch, apperrors.CredentialUnavailablef("no credential source configured")
		}
		cred, err := r.credentials.AwaitFreshCredential(ctx, r.minRemaining, r.attempts)
		if err != nil {
			return patch, err
		}
		action.Credential = cred.Code
	}

	timeout := r.actionTimeout
	if ps.Timeout > 0 {
		timeout = ps.Timeout
	}
	actCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := r.automation.Execute(actCtx, action)
	if err != nil {
		patch.Artifacts = r.failureArtifacts(ctx, exec, res)
		if ctx.Err() == nil && errors.Is(actCtx.Err(), context.DeadlineExceeded) {
			return patch, apperrors.Wrapf(err, apperrors.ErrCodeExternalActionFailed, "timed out after %s", timeout)
		}
		if apperrors.GetCode(err) == "" {
			return patch, apperrors.ExternalActionFailed(err, "automation action failed")
		}
		return patch, err
	}
	if res == nil {
		return patch, nil
	}

	if res.Title != "" {
		patch.Title = model.StringPtr(res.Title)
	}
	patch.Description = res.Description
	if res.Warning != "" {
		patch.Status = model.StatusPtr(model.StepStatusWarning)
		patch.Reasoning = []string{res.Warning}
	}

	artifacts, err := r.publishAll(ctx, exec, res)
	if err != nil {
		return patch, err
	}
	patch.Artifacts = artifacts
	return patch, nil
}

// publishAll converts the collaborator's artifacts into stored ones. The session recording is
// published once per job and referenced from every step that reports it.
func (r *Runner) publishAll(ctx context.Context, exec *execution, res *core.ActionResult) ([]model.Artifact, error) {
	out := make([]model.Artifact, 0, len(res.Artifacts)+1)
	for _, produced := range res.Artifacts {
		a := model.Artifact{
			ID:      uuid.NewString(),
			Kind:    produced.Kind,
			Label:   produced.Label,
			Table:   produced.Table,
			Message: produced.Message,
		}
		if produced.Path != "" {
			loc, err := r.publish(ctx, exec.rec.Job.ID, produced.Kind, produced.Path)
			if err != nil {
				return nil, err
			}
			a.Locator = loc
		}
		if err := a.Validate(); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeExternalActionFailed, "collaborator returned an invalid artifact")
		}
		out = append(out, a)
	}

	if res.Recording != "" {
		shared, ok := exec.recordings[res.Recording]
		if !ok {
			loc, err := r.publish(ctx, exec.rec.Job.ID, model.ArtifactKindVideo, res.Recording)
			if err != nil {
				return nil, err
			}
			shared = model.Artifact{
				ID:      uuid.NewString(),
				Kind:    model.ArtifactKindVideo,
				Label:   recordingLabel,
				Locator: loc,
			}
			exec.recordings[res.Recording] = shared
		}
		out = append(out, shared)
	}
	return out, nil
}

// failureArtifacts publishes what the worker captured on a failed action so the error step
// can show it. Publishing problems are logged and leave the step without artifacts.
func (r *Runner) failureArtifacts(ctx context.Context, exec *execution, res *core.ActionResult) []model.Artifact {
	if res == nil || ctx.Err() != nil {
		return nil
	}
	artifacts, err := r.publishAll(ctx, exec, res)
	if err != nil {
		r.logger.WarnContext(ctx, "publish failure artifacts", "job_id", exec.rec.Job.ID, "error", err)
		return nil
	}
	return artifacts
}

func (r *Runner) publish(ctx context.Context, id model.JobID, kind model.ArtifactKind, path string) (string, error) {
	if r.publisher == nil {
		return path, nil
	}
	loc, err := r.publisher.Publish(ctx, core.PublishRequest{JobID: id, Kind: kind, Path: path})
	if err != nil {
		return "", apperrors.ExternalActionFailed(err, "publish "+string(kind)+" artifact")
	}
	return loc, nil
}

// failWithoutStep records a failure that happened before any planned step could start.
func (r *Runner) failWithoutStep(ctx context.Context, exec *execution, cause error) (model.JobStatus, error) {
	step := model.Step{
		ID:          "step-00",
		Time:        r.now(),
		Title:       "Error: job could not be started",
		Status:      model.StepStatusError,
		Description: []string{cause.Error()},
	}
	if err := r.store.AppendStep(ctx, exec.rec.Job.ID, step); err != nil {
		return "", fmt.Errorf("record start failure: %w", err)
	}
	return r.finish(ctx, exec, model.JobStatusError, cause)
}

func (r *Runner) finish(ctx context.Context, exec *execution, status model.JobStatus, cause error) (model.JobStatus, error) {
	if err := r.store.SetJobStatus(ctx, exec.rec.Job.ID, status); err != nil {
		return "", fmt.Errorf("set job %s %s: %w", exec.rec.Job.ID, status, err)
	}
	result := metrics.ResultSuccess
	if status == model.JobStatusError {
		result = metrics.ResultError
	}
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Plan:       exec.rec.Job.Plan,
		Transition: string(status),
		Result:     result,
		Duration:   r.now().Sub(exec.started),
		Err:        cause,
	})
	r.logger.InfoContext(ctx, "job finished", "job_id", exec.rec.Job.ID, "status", status)

	var sf *stepFailure
	if errors.As(cause, &sf) {
		cause = sf.err
	}
	return status, cause
}

func (r *Runner) emitStep(exec *execution, ps plan.Step, result string, start time.Time, err error) {
	metrics.EmitStep(r.metrics, metrics.StepMetric{
		Plan:     exec.rec.Job.Plan,
		Kind:     string(ps.Kind),
		Result:   result,
		Duration: r.now().Sub(start),
		Err:      err,
	})
}

// failureTitle names the failed step for the viewer, which shows it verbatim.
func failureTitle(ps plan.Step, err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return fmt.Sprintf("%s (%s)", ps.Title, appErr.Message)
	}
	return ps.Title
}
