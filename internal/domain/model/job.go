// Package model defines the core data types shared by the runboard store, runner, and viewers.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// JobID identifies a job. IDs are allocated strictly increasing; gaps are permitted.
type JobID int64

// String returns the decimal form used in file names, keys, and URLs.
func (id JobID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseJobID parses the decimal form of a job id.
func ParseJobID(s string) (JobID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid job id %q: %w", s, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid job id %q: must be positive", s)
	}
	return JobID(v), nil
}

// JobStatus represents the coarse lifecycle state of a job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusPending indicates a job was created but no runner has started it.
	JobStatusPending JobStatus = "pending"
	// JobStatusInProgress indicates a runner is executing the job's plan.
	JobStatusInProgress JobStatus = "in_progress"
	// JobStatusDone indicates every planned step succeeded.
	JobStatusDone JobStatus = "done"
	// JobStatusError indicates the job aborted on a failed step.
	JobStatusError JobStatus = "error"
	// JobStatusVoid indicates an operator discarded the job.
	JobStatusVoid JobStatus = "void"
)

// AllJobStatuses lists every status in lifecycle order.
func AllJobStatuses() []JobStatus {
	return []JobStatus{
		JobStatusPending,
		JobStatusInProgress,
		JobStatusDone,
		JobStatusError,
		JobStatusVoid,
	}
}

// Valid returns true if the JobStatus is a known value.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusInProgress, JobStatusDone, JobStatusError, JobStatusVoid:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed out of s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError || s == JobStatusVoid
}

// Rank orders statuses along the lifecycle. Terminal statuses share the highest rank.
func (s JobStatus) Rank() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusInProgress:
		return 1
	case JobStatusDone, JobStatusError, JobStatusVoid:
		return 2
	default:
		return -1
	}
}

// DisplayName is the index/list form of the status ("In Progress", "Done", ...).
func (s JobStatus) DisplayName() string {
	switch s {
	case JobStatusPending:
		return "Pending"
	case JobStatusInProgress:
		return "In Progress"
	case JobStatusDone:
		return "Done"
	case JobStatusError:
		return "Error"
	case JobStatusVoid:
		return "Void"
	default:
		return string(s)
	}
}

// KeyDetail is the value mirrored into a record's keyDetails.status.
func (s JobStatus) KeyDetail() string {
	switch s {
	case JobStatusDone:
		return KeyDetailStatusComplete
	case JobStatusError:
		return KeyDetailStatusError
	case JobStatusVoid:
		return KeyDetailStatusVoid
	default:
		return KeyDetailStatusProcessing
	}
}

// UnmarshalText accepts both wire values ("in_progress") and display names ("In Progress").
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	v = strings.ReplaceAll(v, " ", "_")
	st := JobStatus(v)
	if !st.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", string(text))
	}
	*s = st
	return nil
}

// Values recognised in keyDetails.status.
const (
	KeyDetailStatusProcessing = "Processing"
	KeyDetailStatusComplete   = "Complete"
	KeyDetailStatusError      = "Error"
	KeyDetailStatusVoid       = "Void"
)

// Well-known keyDetails keys.
const (
	KeyDetailProcessName    = "processName"
	KeyDetailTeam           = "team"
	KeyDetailProcessingDate = "processingDate"
	KeyDetailStatus         = "status"
)

// Job is the summary header of a job record.
type Job struct {
	ID        JobID             `json:"id"`
	Label     string            `json:"label"`
	Name      string            `json:"name,omitempty"`
	Plan      string            `json:"plan,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	Status    JobStatus         `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// CreateJobRequest represents a request to create a new job.
type CreateJobRequest struct {
	Label      string            `json:"label"`
	Name       string            `json:"name,omitempty"`
	Plan       string            `json:"plan,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
	KeyDetails map[string]string `json:"keyDetails,omitempty"`
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.Label) == "" {
		return fmt.Errorf("label is required and cannot be empty")
	}
	if len(r.Label) > 500 {
		return fmt.Errorf("label cannot exceed 500 characters")
	}
	for k := range r.Params {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("params cannot contain empty keys")
		}
	}
	return nil
}

// JobSummary is one entry of the Job Index read by the list view and by pollers.
type JobSummary struct {
	ID      JobID  `json:"id"`
	StockID string `json:"stockId"`
	Name    string `json:"name"`
	Year    string `json:"year"`
	Status  string `json:"status"`
}

// Summarize derives the Job Index entry for a job.
func Summarize(j *Job) JobSummary {
	return JobSummary{
		ID:      j.ID,
		StockID: j.Label,
		Name:    j.Name,
		Year:    j.CreatedAt.UTC().Format(time.DateOnly),
		Status:  j.Status.DisplayName(),
	}
}

// JobStatusFromDisplay maps an index status back to the wire status.
func JobStatusFromDisplay(display string) (JobStatus, error) {
	var s JobStatus
	if err := s.UnmarshalText([]byte(display)); err != nil {
		return "", err
	}
	return s, nil
}
