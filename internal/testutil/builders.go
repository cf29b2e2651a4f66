// Package testutil provides testing utilities and helpers for runboard.
package testutil

import (
	"fmt"
	"time"

	"github.com/target/runboard/internal/domain/model"
)

// JobRequestBuilder provides a fluent interface for building CreateJobRequest objects for testing.
type JobRequestBuilder struct {
	req *model.CreateJobRequest
}

// NewJobRequest creates a new JobRequestBuilder with sensible defaults.
func NewJobRequest() *JobRequestBuilder {
	return &JobRequestBuilder{
		req: &model.CreateJobRequest{
			Label:  "Extracting Data from 2024-01-01 to 2024-01-31",
			Name:   "Cash Position",
			Plan:   "cash-position",
			Params: map[string]string{"start": "2024-01-01", "end": "2024-01-31"},
			KeyDetails: map[string]string{
				model.KeyDetailProcessName: "Cash Position",
				model.KeyDetailTeam:        "Cash",
			},
		},
	}
}

// WithLabel sets the job label.
func (b *JobRequestBuilder) WithLabel(label string) *JobRequestBuilder {
	b.req.Label = label
	return b
}

// WithName sets the process name.
func (b *JobRequestBuilder) WithName(name string) *JobRequestBuilder {
	b.req.Name = name
	return b
}

// WithPlan sets the plan name.
func (b *JobRequestBuilder) WithPlan(plan string) *JobRequestBuilder {
	b.req.Plan = plan
	return b
}

// WithParam sets one plan parameter.
func (b *JobRequestBuilder) WithParam(key, value string) *JobRequestBuilder {
	if b.req.Params == nil {
		b.req.Params = map[string]string{}
	}
	b.req.Params[key] = value
	return b
}

// WithKeyDetail sets one key detail.
func (b *JobRequestBuilder) WithKeyDetail(key, value string) *JobRequestBuilder {
	if b.req.KeyDetails == nil {
		b.req.KeyDetails = map[string]string{}
	}
	b.req.KeyDetails[key] = value
	return b
}

// Build returns the constructed CreateJobRequest.
func (b *JobRequestBuilder) Build() *model.CreateJobRequest {
	return b.req
}

// StepBuilder builds timeline steps for tests.
type StepBuilder struct {
	step model.Step
}

// NewStep creates a processing step with the given id.
func NewStep(id string) *StepBuilder {
	return &StepBuilder{step: model.Step{
		ID:     id,
		Time:   TestTime(),
		Title:  fmt.Sprintf("Step %s", id),
		Status: model.StepStatusProcessing,
	}}
}

// WithTitle sets the step title.
func (b *StepBuilder) WithTitle(title string) *StepBuilder {
	b.step.Title = title
	return b
}

// WithStatus sets the step status.
func (b *StepBuilder) WithStatus(status model.StepStatus) *StepBuilder {
	b.step.Status = status
	return b
}

// WithTime sets the step timestamp.
func (b *StepBuilder) WithTime(t time.Time) *StepBuilder {
	b.step.Time = t
	return b
}

// WithDescription appends description lines.
func (b *StepBuilder) WithDescription(lines ...string) *StepBuilder {
	b.step.Description = append(b.step.Description, lines...)
	return b
}

// WithArtifact attaches an artifact.
func (b *StepBuilder) WithArtifact(a model.Artifact) *StepBuilder {
	b.step.Artifacts = append(b.step.Artifacts, a)
	return b
}

// Build returns the constructed step.
func (b *StepBuilder) Build() model.Step {
	return b.step
}

// VideoArtifact returns a video artifact pointing at locator.
func VideoArtifact(id, locator string) model.Artifact {
	return model.Artifact{ID: id, Kind: model.ArtifactKindVideo, Label: "Recording", Locator: locator}
}

// DocumentArtifact returns a document artifact pointing at locator.
func DocumentArtifact(id, locator string) model.Artifact {
	return model.Artifact{ID: id, Kind: model.ArtifactKindDocument, Label: "Document", Locator: locator}
}
