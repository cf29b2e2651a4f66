package model

import (
	"fmt"
	"strings"
	"time"
)

// StepStatus is the per-step outcome, independent of the owning job's status.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type StepStatus string

const (
	// StepStatusProcessing marks a step whose external action has not finished.
	StepStatusProcessing StepStatus = "processing"
	// StepStatusSuccess marks a step whose action succeeded.
	StepStatusSuccess StepStatus = "success"
	// StepStatusWarning marks a step that succeeded with something worth a look.
	StepStatusWarning StepStatus = "warning"
	// StepStatusError marks a step whose action failed.
	StepStatusError StepStatus = "error"
)

// Valid returns true if the StepStatus is a known value.
func (s StepStatus) Valid() bool {
	switch s {
	case StepStatusProcessing, StepStatusSuccess, StepStatusWarning, StepStatusError:
		return true
	default:
		return false
	}
}

// Terminal reports whether the step has reached its final outcome.
func (s StepStatus) Terminal() bool {
	return s == StepStatusSuccess || s == StepStatusWarning || s == StepStatusError
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *StepStatus) UnmarshalText(text []byte) error {
	st := StepStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !st.Valid() {
		return fmt.Errorf("invalid StepStatus: %q", string(text))
	}
	*s = st
	return nil
}

// Step is one recorded unit of progress within a job. Steps are append-only within a job.
type Step struct {
	ID          string     `json:"id"`
	Time        time.Time  `json:"time"`
	Title       string     `json:"title"`
	Status      StepStatus `json:"status"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	Description []string   `json:"description,omitempty"`
	Reasoning   []string   `json:"reasoning,omitempty"`
}

// Validate checks the fields required of a step before it is appended.
func (s *Step) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("step id is required and cannot be empty")
	}
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("step title is required and cannot be empty")
	}
	if !s.Status.Valid() {
		return fmt.Errorf("step status must be one of: processing, success, warning, error")
	}
	if s.Time.IsZero() {
		return fmt.Errorf("step time is required")
	}
	for i := range s.Artifacts {
		if err := s.Artifacts[i].Validate(); err != nil {
			return fmt.Errorf("artifact %d: %w", i, err)
		}
	}
	return nil
}

// StepPatch describes a partial update of a step. Nil fields are left unchanged.
// Artifacts, Description, and Reasoning are appended rather than replaced.
type StepPatch struct {
	Status      *StepStatus
	Title       *string
	Artifacts   []Artifact
	Description []string
	Reasoning   []string
}

// Empty reports whether the patch changes nothing.
func (p StepPatch) Empty() bool {
	return p.Status == nil && p.Title == nil && len(p.Artifacts) == 0 &&
		len(p.Description) == 0 && len(p.Reasoning) == 0
}

// StatusPtr returns a pointer to s for use in a StepPatch.
func StatusPtr(s StepStatus) *StepStatus {
	return &s
}

// StringPtr returns a pointer to s for use in a StepPatch.
func StringPtr(s string) *string {
	return &s
}
