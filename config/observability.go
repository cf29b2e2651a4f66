package config

import (
	"maps"
	"strings"
	"time"
)

const defaultObservabilityName = "runboard"

// ObservabilityConfig covers step metrics and escalation of failed steps.
type ObservabilityConfig struct {
	Metrics    MetricsConfig    `envPrefix:"METRICS_"`
	Escalation EscalationConfig `envPrefix:"ESCALATION_"`
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Escalation.Sanitize()
}

// MetricsConfig controls the StatsD sink for job and step transitions.
type MetricsConfig struct {
	Enabled       bool   `env:"ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string `env:"PREFIX"         envDefault:"runboard"`
	// Tags are attached to every metric, e.g. METRICS_TAGS=env:prod,region:eu.
	Tags map[string]string `env:"TAGS"`
}

// Sanitize trims the address and prefix. Metrics are switched off without an address.
func (c *MetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), ".")
	if c.Prefix == "" {
		c.Prefix = defaultObservabilityName
	}
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
	if len(c.Tags) > 0 {
		tags := make(map[string]string, len(c.Tags))
		for k, v := range c.Tags {
			if k = strings.TrimSpace(k); k != "" {
				tags[k] = strings.TrimSpace(v)
			}
		}
		c.Tags = tags
	}
}

// IsEnabled reports whether a StatsD client should be built.
func (c *MetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// GlobalTags returns a copy of Tags safe to hand to a client.
func (c *MetricsConfig) GlobalTags() map[string]string {
	if len(c.Tags) == 0 {
		return nil
	}
	return maps.Clone(c.Tags)
}

// EscalationConfig controls where steps escalated by an operator are delivered.
type EscalationConfig struct {
	Enabled   bool                `env:"ENABLED" envDefault:"false"`
	Timeout   time.Duration       `env:"TIMEOUT" envDefault:"5s"`
	Retries   int                 `env:"RETRIES" envDefault:"3"`
	Slack     SlackEscalation     `envPrefix:"SLACK_"`
	PagerDuty PagerDutyEscalation `envPrefix:"PAGERDUTY_"`
}

// Sanitize clamps delivery settings and disables sinks that lack credentials.
// Nothing is delivered while Enabled is false.
func (c *EscalationConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	c.Retries = max(c.Retries, 0)

	c.Slack.sanitize()
	c.PagerDuty.sanitize()

	c.Slack.Enabled = c.Enabled && c.Slack.Enabled && c.Slack.WebhookURL != ""
	c.PagerDuty.Enabled = c.Enabled && c.PagerDuty.Enabled && c.PagerDuty.RoutingKey != ""
}

// Sinks names the sinks that remain enabled after Sanitize.
func (c *EscalationConfig) Sinks() []string {
	var sinks []string
	if c.Slack.Enabled {
		sinks = append(sinks, "slack")
	}
	if c.PagerDuty.Enabled {
		sinks = append(sinks, "pagerduty")
	}
	return sinks
}

// SlackEscalation posts escalations to an incoming webhook.
type SlackEscalation struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME"    envDefault:"runboard"`
	// JobURLPrefix links messages to job pages; empty falls back to APP_BASE_URL.
	JobURLPrefix string `env:"JOB_URL_PREFIX"`
}

func (c *SlackEscalation) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	c.JobURLPrefix = strings.TrimSpace(c.JobURLPrefix)
	if c.Username = strings.TrimSpace(c.Username); c.Username == "" {
		c.Username = defaultObservabilityName
	}
}

// PagerDutyEscalation triggers Events API v2 incidents.
type PagerDutyEscalation struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Endpoint   string `env:"ENDPOINT"`
	Source     string `env:"SOURCE"      envDefault:"runboard"`
	Component  string `env:"COMPONENT"   envDefault:"runboard"`
}

func (c *PagerDutyEscalation) sanitize() {
	c.RoutingKey = strings.TrimSpace(c.RoutingKey)
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	if c.Source = strings.TrimSpace(c.Source); c.Source == "" {
		c.Source = defaultObservabilityName
	}
	if c.Component = strings.TrimSpace(c.Component); c.Component == "" {
		c.Component = defaultObservabilityName
	}
}
