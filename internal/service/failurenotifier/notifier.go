// Package failurenotifier fans escalated step failures out to the configured alerting sinks.
package failurenotifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/target/runboard/internal/core"
	"github.com/target/runboard/internal/observability/notify"
)

// ErrNoSinks is returned by Escalate when no sink is configured.
var ErrNoSinks = errors.New("no escalation sinks configured")

// escalatedClass tags every operator escalation in sink payloads.
const escalatedClass = "escalated"

// SinkRegistration names a sink for logs and delivery errors.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
}

// Service implements core.Escalator on top of a fixed set of sinks.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
}

var _ core.Escalator = (*Service)(nil)

// NewService drops nil sinks and names anonymous ones "sink-<n>".
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{logger: logger.With("component", "failure_notifier")}
	for i, reg := range opts.Sinks {
		if reg.Sink == nil {
			continue
		}
		if reg.Name == "" {
			reg.Name = fmt.Sprintf("sink-%d", i+1)
		}
		svc.sinks = append(svc.sinks, reg)
	}
	return svc
}

// Enabled reports whether any sink is configured.
func (s *Service) Enabled() bool { return len(s.sinks) > 0 }

// Escalate delivers req to every sink. It succeeds when at least one sink accepted it.
func (s *Service) Escalate(ctx context.Context, req core.EscalationRequest) error {
	if !s.Enabled() {
		return ErrNoSinks
	}
	esc := notify.Escalation{
		JobID:      req.JobID.String(),
		JobLabel:   req.JobLabel,
		Plan:       req.Plan,
		StepID:     req.StepID,
		StepTitle:  req.StepTitle,
		Error:      strings.Join(req.Details, "; "),
		ErrorClass: escalatedClass,
		OccurredAt: req.StepTime,
		Metadata:   req.KeyDetails,
	}
	errs := s.Deliver(ctx, esc)
	if len(errs) == len(s.sinks) {
		return fmt.Errorf("escalate job %s step %s: every sink failed: %w", req.JobID, req.StepID, errors.Join(errs...))
	}
	return nil
}

// Deliver sends esc to all sinks concurrently and returns one error per failed sink.
func (s *Service) Deliver(ctx context.Context, esc notify.Escalation) []error {
	if esc.Severity == "" {
		esc.Severity = notify.SeverityCritical
	}

	results := make([]error, len(s.sinks))
	var g errgroup.Group
	for i, reg := range s.sinks {
		g.Go(func() error {
			if err := reg.Sink.Send(ctx, esc); err != nil {
				s.logger.ErrorContext(ctx, "escalation delivery failed",
					"sink", reg.Name, "job_id", esc.JobID, "step_id", esc.StepID, "error", err)
				results[i] = fmt.Errorf("%s: %w", reg.Name, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for _, err := range results {
		if err != nil {
			failed = append(failed, err)
		}
	}
	return failed
}
