// Package notify carries escalated job steps to external alerting sinks.
package notify

import (
	"context"
	"time"
)

// Severities understood by the sinks. Escalations default to SeverityCritical.
const (
	SeverityCritical = "critical"
	SeverityError    = "error"
)

// Escalation is one failed step an operator chose to escalate.
type Escalation struct {
	JobID     string
	JobLabel  string
	Plan      string
	StepID    string
	StepTitle string
	// Error is the step's description and reasoning joined into one line.
	Error      string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	// Metadata holds the job's key details. Sinks render it sorted by key.
	Metadata map[string]string
}

// Sink delivers an escalation to one destination.
type Sink interface {
	Send(ctx context.Context, esc Escalation) error
}

// SinkFunc lets a plain function act as a Sink.
type SinkFunc func(ctx context.Context, esc Escalation) error

// Send calls f; a nil SinkFunc accepts everything.
func (f SinkFunc) Send(ctx context.Context, esc Escalation) error {
	if f == nil {
		return nil
	}
	return f(ctx, esc)
}
