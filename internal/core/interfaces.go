package core

import (
	"context"
	"io"

	"github.com/target/runboard/internal/domain/model"
)

// This file contains the port definitions (hexagonal architecture) shared by the store
// backends, the runner, and the HTTP layer. Services depend on these interfaces, not on
// concrete implementations.

// JobStore is the durable mapping from job id to job record.
//
// Every mutation replaces the whole record atomically: a concurrent ReadJob observes either
// the state before or after the mutation, never a partial record.
type JobStore interface {
	// CreateJob allocates an id greater than every id allocated before and persists a pending
	// job with no steps.
	CreateJob(ctx context.Context, req *model.CreateJobRequest) (*model.JobRecord, error)
	// AppendStep appends step to the job. NotFound for an unknown job, InvalidTransition for a
	// terminal job, Conflict for a duplicate step id.
	AppendStep(ctx context.Context, jobID model.JobID, step model.Step) error
	// UpdateStep patches an existing step. NotFound if the job or step is unknown,
	// InvalidTransition if either is already terminal.
	UpdateStep(ctx context.Context, jobID model.JobID, stepID string, patch model.StepPatch) error
	// SetJobStatus moves the job strictly forward.
	SetJobStatus(ctx context.Context, jobID model.JobID, status model.JobStatus) error
	// ReadJob returns a self-consistent snapshot of the record.
	ReadJob(ctx context.Context, jobID model.JobID) (*model.JobRecord, error)
	// ListJobs returns the job index sorted by ascending id.
	ListJobs(ctx context.Context) ([]model.JobSummary, error)
	// JobsByStatus returns the headers of every job currently in status, oldest first.
	JobsByStatus(ctx context.Context, status model.JobStatus) ([]model.Job, error)
}

// Automation performs one browser-level action against the target portal.
// Implementations report collaborator failures as ExternalActionFailed errors. A failed
// action may still return a result carrying what the worker captured before it gave up, such
// as a screenshot or the session recording.
type Automation interface {
	Execute(ctx context.Context, action Action) (*ActionResult, error)
}

// CredentialSource reads the one-time password currently issued by the OTP provider.
type CredentialSource interface {
	Current(ctx context.Context) (Credential, error)
}

// ArtifactPublisher makes a file produced by the automation collaborator resolvable by
// viewers and returns its locator.
type ArtifactPublisher interface {
	Publish(ctx context.Context, req PublishRequest) (string, error)
}

// ArtifactReader opens a published artifact by the key at the end of its locator, for
// viewers that fetch artifacts through the HTTP server.
type ArtifactReader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Escalator fans a failed step out to the configured escalation sinks.
type Escalator interface {
	Escalate(ctx context.Context, req EscalationRequest) error
}
