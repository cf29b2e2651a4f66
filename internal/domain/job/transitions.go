// Package job holds the pure mutation rules for job records. Every store backend applies a
// change by loading the record, running one of these functions against it, and publishing the
// result as a whole, so the rules live in exactly one place.
package job

import (
	"slices"
	"time"

	"github.com/target/runboard/internal/domain/model"
	apperrors "github.com/target/runboard/internal/errors"
)

// CanTransition reports whether a job may move from one status to another.
// Transitions are strictly forward: pending moves to in_progress or straight to a terminal
// status, in_progress moves to a terminal status, and terminal statuses never change.
// Same-status writes are refused so that pending -> in_progress acts as an exclusive claim.
func CanTransition(from, to model.JobStatus) error {
	if !to.Valid() {
		return apperrors.ValidationField("status", "invalid job status "+string(to))
	}
	if from.Terminal() {
		return apperrors.InvalidTransitionf("job is %s; terminal status cannot change to %s", from, to)
	}
	if to.Rank() <= from.Rank() {
		return apperrors.InvalidTransitionf("job status cannot move from %s to %s", from, to)
	}
	return nil
}

// NewRecord builds the initial record for a freshly allocated job id.
func NewRecord(id model.JobID, req *model.CreateJobRequest, now time.Time) *model.JobRecord {
	now = Normalize(now)
	j := model.Job{
		ID:        id,
		Label:     req.Label,
		Name:      req.Name,
		Plan:      req.Plan,
		Status:    model.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(req.Params) > 0 {
		j.Params = make(map[string]string, len(req.Params))
		for k, v := range req.Params {
			j.Params[k] = v
		}
	}
	rec := model.NewJobRecord(j)
	for k, v := range req.KeyDetails {
		rec.KeyDetails[k] = v
	}
	rec.KeyDetails[model.KeyDetailStatus] = j.Status.KeyDetail()
	return rec
}

// ApplySetStatus moves the record's job to status and mirrors it into keyDetails.
func ApplySetStatus(rec *model.JobRecord, status model.JobStatus, now time.Time) error {
	if err := CanTransition(rec.Job.Status, status); err != nil {
		return err
	}
	rec.Job.Status = status
	rec.Job.UpdatedAt = Normalize(now)
	if rec.KeyDetails == nil {
		rec.KeyDetails = map[string]string{}
	}
	rec.KeyDetails[model.KeyDetailStatus] = status.KeyDetail()
	return nil
}

// ApplyAppendStep appends step to the record. Artifacts already carried by the step are also
// listed in the sidebar.
func ApplyAppendStep(rec *model.JobRecord, step model.Step, now time.Time) error {
	if rec.Job.Status.Terminal() {
		return apperrors.InvalidTransitionf("job %s is %s; steps cannot be appended", rec.Job.ID, rec.Job.Status)
	}
	if err := step.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid step")
	}
	if rec.StepIndex(step.ID) >= 0 {
		return apperrors.Conflictf("step %s already exists in job %s", step.ID, rec.Job.ID)
	}
	step.Time = Normalize(step.Time)
	step.Artifacts = nilIfEmpty(normalizeArtifacts(step.Artifacts))
	step.Description = nilIfEmpty(step.Description)
	step.Reasoning = nilIfEmpty(step.Reasoning)
	rec.Logs = append(rec.Logs, step)
	rec.SidebarArtifacts = appendSidebar(rec.SidebarArtifacts, step.Artifacts)
	rec.Job.UpdatedAt = Normalize(now)
	return nil
}

// ApplyUpdateStep applies patch to the step identified by stepID. Nil patch fields are left
// unchanged; artifacts, description, and reasoning are appended. Patch artifacts are also
// listed in the sidebar.
func ApplyUpdateStep(rec *model.JobRecord, stepID string, patch model.StepPatch, now time.Time) error {
	idx := rec.StepIndex(stepID)
	if idx < 0 {
		return apperrors.NotFoundf("step %s not found in job %s", stepID, rec.Job.ID)
	}
	if rec.Job.Status.Terminal() {
		return apperrors.InvalidTransitionf("job %s is %s; steps are immutable", rec.Job.ID, rec.Job.Status)
	}
	step := &rec.Logs[idx]
	if step.Status.Terminal() {
		return apperrors.InvalidTransitionf("step %s is already %s", stepID, step.Status)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return apperrors.ValidationField("status", "invalid step status "+string(*patch.Status))
	}
	for i := range patch.Artifacts {
		if err := patch.Artifacts[i].Validate(); err != nil {
			return apperrors.Wrapf(err, apperrors.ErrCodeValidation, "invalid artifact %d", i)
		}
	}

	if patch.Title != nil {
		step.Title = *patch.Title
	}
	if patch.Status != nil {
		step.Status = *patch.Status
	}
	added := normalizeArtifacts(patch.Artifacts)
	step.Artifacts = nilIfEmpty(append(step.Artifacts, added...))
	step.Description = nilIfEmpty(append(step.Description, patch.Description...))
	step.Reasoning = nilIfEmpty(append(step.Reasoning, patch.Reasoning...))
	rec.SidebarArtifacts = appendSidebar(rec.SidebarArtifacts, added)
	rec.Job.UpdatedAt = Normalize(now)
	return nil
}

// Normalize converts t to UTC with microsecond precision so that records compare equal after
// a round trip through JSON or Postgres.
func Normalize(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Microsecond)
}

// appendSidebar lists each artifact id once; a shared recording referenced by several steps
// keeps its first entry.
func appendSidebar(sidebar, added []model.Artifact) []model.Artifact {
	for _, a := range added {
		if !slices.ContainsFunc(sidebar, func(b model.Artifact) bool { return b.ID == a.ID }) {
			sidebar = append(sidebar, a)
		}
	}
	return sidebar
}

// nilIfEmpty stores empty step lists as nil, which is how they read back from JSON.
func nilIfEmpty[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return s
}

func normalizeArtifacts(in []model.Artifact) []model.Artifact {
	if len(in) == 0 {
		return in
	}
	out := make([]model.Artifact, len(in))
	copy(out, in)
	for i := range out {
		if out[i].Message != nil {
			m := *out[i].Message
			m.ReceivedAt = Normalize(m.ReceivedAt)
			out[i].Message = &m
		}
	}
	return out
}
