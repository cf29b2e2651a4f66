// Package pagerduty raises escalated job steps as PagerDuty incidents through Events API v2.
package pagerduty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/target/runboard/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	// Endpoint overrides APIEndpoint.
	Endpoint   string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client triggers one incident per escalated step.
type Client struct {
	routingKey string
	endpoint   string
	source     string
	component  string
	retryLimit int
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// event is the Events API v2 trigger body.
type event struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	DedupKey    string       `json:"dedup_key,omitempty"`
	Payload     eventPayload `json:"payload"`
}

type eventPayload struct {
	Summary       string         `json:"summary"`
	Severity      string         `json:"severity"`
	Source        string         `json:"source"`
	Component     string         `json:"component,omitempty"`
	Group         string         `json:"group,omitempty"`
	Class         string         `json:"class,omitempty"`
	Timestamp     string         `json:"timestamp"`
	CustomDetails map[string]any `json:"custom_details,omitempty"`
}

// NewClient validates cfg. A routing key is required.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	return &Client{
		routingKey: key,
		endpoint:   notify.Fallback(strings.TrimSpace(cfg.Endpoint), APIEndpoint),
		source:     notify.Fallback(strings.TrimSpace(cfg.Source), "runboard"),
		component:  notify.Fallback(strings.TrimSpace(cfg.Component), "runboard"),
		retryLimit: max(cfg.RetryLimit, 0),
		client:     notify.HTTPClient(cfg.Client, cfg.Timeout),
	}, nil
}

// Send triggers an incident for the escalated step.
func (c *Client) Send(ctx context.Context, payload notify.Escalation) error {
	body, err := json.Marshal(c.buildEvent(payload))
	if err != nil {
		return fmt.Errorf("encode pagerduty event: %w", err)
	}
	return notify.Post(ctx, notify.Delivery{
		Sink:    "pagerduty",
		URL:     c.endpoint,
		Body:    body,
		Client:  c.client,
		Retries: c.retryLimit,
	})
}

func (c *Client) buildEvent(payload notify.Escalation) event {
	occurredAt := payload.OccurredAt.UTC()
	if payload.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	details := make(map[string]any, len(payload.Metadata)+7)
	for k, v := range payload.Metadata {
		details[k] = v
	}
	maps.Copy(details, map[string]any{
		"job_id":      payload.JobID,
		"job_label":   payload.JobLabel,
		"plan":        payload.Plan,
		"step_id":     payload.StepID,
		"step_title":  payload.StepTitle,
		"error":       payload.Error,
		"error_class": payload.ErrorClass,
	})

	return event{
		RoutingKey:  c.routingKey,
		EventAction: "trigger",
		DedupKey:    dedupKey(payload),
		Payload: eventPayload{
			Summary: fmt.Sprintf("Job %s step %q failed",
				notify.Fallback(payload.JobID, "unknown"),
				notify.Fallback(payload.StepTitle, "unknown")),
			Severity:      notify.Fallback(strings.ToLower(payload.Severity), notify.SeverityCritical),
			Source:        c.source,
			Component:     c.component,
			Group:         payload.Plan,
			Class:         payload.ErrorClass,
			Timestamp:     occurredAt.Format(time.RFC3339),
			CustomDetails: details,
		},
	}
}

// dedupKey folds repeated escalations of the same step into one incident.
func dedupKey(payload notify.Escalation) string {
	if payload.JobID == "" {
		return ""
	}
	if payload.StepID == "" {
		return "runboard-job-" + payload.JobID
	}
	return "runboard-job-" + payload.JobID + "-" + payload.StepID
}
