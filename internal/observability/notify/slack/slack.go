// Package slack posts escalated job steps to a Slack incoming webhook.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/target/runboard/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// JobURLPrefix turns job ids into links, e.g. https://runboard.example.com/jobs.
	JobURLPrefix string
}

// Client delivers step escalations to a Slack webhook.
type Client struct {
	webhookURL string
	channel    string
	username   string
	retryLimit int
	jobURL     *url.URL
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// message is the incoming-webhook body.
type message struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
	Channel  string `json:"channel,omitempty"`
}

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// NewClient validates cfg. A webhook URL is required; an unusable JobURLPrefix disables links.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}
	return &Client{
		webhookURL: webhookURL,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   notify.Fallback(strings.TrimSpace(cfg.Username), "runboard"),
		retryLimit: max(cfg.RetryLimit, 0),
		jobURL:     parseJobURLPrefix(cfg.JobURLPrefix),
		client:     notify.HTTPClient(cfg.Client, cfg.Timeout),
	}, nil
}

func parseJobURLPrefix(prefix string) *url.URL {
	u, err := url.Parse(strings.TrimSpace(prefix))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	return u
}

// Send posts a formatted message to Slack.
func (c *Client) Send(ctx context.Context, payload notify.Escalation) error {
	body, err := json.Marshal(c.formatMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}
	return notify.Post(ctx, notify.Delivery{
		Sink:    "slack webhook",
		URL:     c.webhookURL,
		Body:    body,
		Client:  c.client,
		Retries: c.retryLimit,
	})
}

func (c *Client) formatMessage(payload notify.Escalation) message {
	var text strings.Builder
	text.WriteString("*Escalated job step*")
	if payload.JobID != "" {
		fmt.Fprintf(&text, " `%s`", payload.JobID)
	}
	if payload.Plan != "" {
		fmt.Fprintf(&text, " (%s)", payload.Plan)
	}
	text.WriteByte('\n')

	bullet(&text, "Severity", notify.Fallback(payload.Severity, notify.SeverityCritical))
	bullet(&text, "Job", c.formatJobValue(payload.JobID, payload.JobLabel))
	bullet(&text, "Step", mrkdwnEscaper.Replace(payload.StepTitle))
	bullet(&text, "Error class", payload.ErrorClass)
	bullet(&text, "Error", mrkdwnEscaper.Replace(payload.Error))
	if len(payload.Metadata) > 0 {
		text.WriteString("• Metadata:\n")
		for _, k := range slices.Sorted(maps.Keys(payload.Metadata)) {
			fmt.Fprintf(&text, "    • %s: %s\n", k, mrkdwnEscaper.Replace(payload.Metadata[k]))
		}
	}

	ts := payload.OccurredAt
	if ts.IsZero() {
		ts = time.Now()
	}
	text.WriteString("• Timestamp: " + ts.UTC().Format(time.RFC3339))

	return message{Text: text.String(), Username: c.username, Channel: c.channel}
}

func bullet(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(text, "• %s: %s\n", label, value)
}

// formatJobValue renders the job as a link when a prefix is configured, with the label as its
// text when known.
func (c *Client) formatJobValue(jobID, label string) string {
	id := mrkdwnEscaper.Replace(strings.TrimSpace(jobID))
	name := mrkdwnEscaper.Replace(strings.TrimSpace(label))
	link := c.jobLink(strings.TrimSpace(jobID))

	switch {
	case link != "" && name != "":
		return fmt.Sprintf("<%s|%s> (%s)", link, name, id)
	case link != "":
		return fmt.Sprintf("<%s|%s>", link, id)
	case name != "" && id != "":
		return fmt.Sprintf("%s (%s)", name, id)
	case name != "":
		return name
	default:
		return id
	}
}

func (c *Client) jobLink(jobID string) string {
	if c.jobURL == nil || jobID == "" {
		return ""
	}
	return c.jobURL.JoinPath(jobID).String()
}
