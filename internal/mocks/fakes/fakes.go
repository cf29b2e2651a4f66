// Package fakes contains simple hand-written test doubles for the runboard ports.
// These are lightweight and suitable for unit tests without codegen.
package fakes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/target/runboard/internal/core"
)

// Ensure compile-time conformance to ports.
var (
	_ core.Automation        = (*ScriptedAutomation)(nil)
	_ core.CredentialSource  = (*SequenceCredentialSource)(nil)
	_ core.ArtifactPublisher = (*MemoryPublisher)(nil)
	_ core.Escalator         = (*RecordingEscalator)(nil)
)

// ScriptedAutomation answers actions from a per-step script. Steps without a script entry
// succeed with an empty result.
type ScriptedAutomation struct {
	mu      sync.Mutex
	Results map[string]*core.ActionResult
	Errors  map[string]error
	// Delay is slept (context-aware) before answering each action.
	Delay time.Duration

	actions []core.Action
}

// NewScriptedAutomation creates a ScriptedAutomation with empty scripts.
func NewScriptedAutomation() *ScriptedAutomation {
	return &ScriptedAutomation{
		Results: map[string]*core.ActionResult{},
		Errors:  map[string]error{},
	}
}

func (a *ScriptedAutomation) Execute(ctx context.Context, action core.Action) (*core.ActionResult, error) {
	a.mu.Lock()
	a.actions = append(a.actions, action)
	res, err := a.Results[action.StepID], a.Errors[action.StepID]
	delay := a.Delay
	a.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err != nil {
		// A scripted result next to an error is what the worker captured before failing.
		return res, err
	}
	if res == nil {
		return &core.ActionResult{}, nil
	}
	return res, nil
}

// Actions returns the actions received so far, in order.
func (a *ScriptedAutomation) Actions() []core.Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]core.Action(nil), a.actions...)
}

// SequenceCredentialSource returns its credentials in order, repeating the last one.
type SequenceCredentialSource struct {
	mu    sync.Mutex
	Creds []core.Credential
	Err   error
	calls int
}

func (s *SequenceCredentialSource) Current(_ context.Context) (core.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.Err != nil {
		return core.Credential{}, s.Err
	}
	if len(s.Creds) == 0 {
		return core.Credential{}, errors.New("no credentials scripted")
	}
	idx := min(s.calls-1, len(s.Creds)-1)
	return s.Creds[idx], nil
}

// Calls returns how many times Current was called.
func (s *SequenceCredentialSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// MemoryPublisher "publishes" by returning a deterministic locator derived from the path.
type MemoryPublisher struct {
	mu        sync.Mutex
	Err       error
	published []core.PublishRequest
}

func (p *MemoryPublisher) Publish(_ context.Context, req core.PublishRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	p.published = append(p.published, req)
	return fmt.Sprintf("mem://%d/%s", req.JobID, req.Path), nil
}

// Published returns every publish request received so far.
func (p *MemoryPublisher) Published() []core.PublishRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.PublishRequest(nil), p.published...)
}

// RecordingEscalator keeps every escalation it receives.
type RecordingEscalator struct {
	mu       sync.Mutex
	Err      error
	requests []core.EscalationRequest
}

func (e *RecordingEscalator) Escalate(_ context.Context, req core.EscalationRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	return e.Err
}

// Requests returns the escalations received so far.
func (e *RecordingEscalator) Requests() []core.EscalationRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]core.EscalationRequest(nil), e.requests...)
}
