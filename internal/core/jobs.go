// Package core holds the ports and transfer types shared by the runboard store, runner,
// and HTTP layers.
package core

import (
	"time"

	"github.com/target/runboard/internal/domain/model"
	"github.com/target/runboard/internal/domain/plan"
)

// CreateJobRequest represents a request to create a new job (re-exported from the model package).
type CreateJobRequest = model.CreateJobRequest

// Credential is a short-lived one-time password and its remaining validity.
type Credential struct {
	Code      string
	Remaining time.Duration
	FetchedAt time.Time
}

// Action is one unit of work sent to the automation collaborator.
type Action struct {
	JobID      model.JobID       `json:"jobId"`
	StepID     string            `json:"stepId"`
	Kind       plan.StepKind     `json:"kind"`
	Args       map[string]string `json:"args,omitempty"`
	Credential string            `json:"credential,omitempty"`
}

// ProducedArtifact is an artifact as reported by the collaborator, before publishing.
type ProducedArtifact struct {
	Kind    model.ArtifactKind
	Label   string
	Path    string
	Table   *model.DataTable
	Message *model.EmailMessage
}

// ActionResult is the collaborator's report of a successful action.
type ActionResult struct {
	// Title, when set, replaces the step's provisional title.
	Title       string
	Description []string
	// Warning, when set, completes the step as a warning instead of a success.
	Warning   string
	Artifacts []ProducedArtifact
	// Recording is the path of the session screen recording covering this action, if any.
	// The same recording may be reported by many actions.
	Recording string
}

// PublishRequest identifies a produced file to publish.
type PublishRequest struct {
	JobID model.JobID
	Kind  model.ArtifactKind
	Path  string
}

// EscalationRequest describes a failed step an operator chose to escalate.
type EscalationRequest struct {
	JobID     model.JobID
	JobLabel  string
	Plan      string
	StepID    string
	StepTitle string
	StepTime  time.Time
	Details   []string
	// KeyDetails are the job's headline facts (process name, team, processing date).
	KeyDetails map[string]string
}
