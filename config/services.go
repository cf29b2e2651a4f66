package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API and the job viewer.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeRunner runs the job runner worker.
	ServiceModeRunner ServiceMode = "runner"
	// ServiceModeReaper runs the stale job reaper.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeRunner,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeRunner, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, runner, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// RunnerConfig contains job runner configuration.
type RunnerConfig struct {
	// PollInterval is how often the runner looks for pending jobs.
	PollInterval time.Duration `env:"RUNNER_POLL_INTERVAL" envDefault:"2s"`

	// ActionTimeout bounds one external action unless the plan step overrides it.
	ActionTimeout time.Duration `env:"RUNNER_ACTION_TIMEOUT" envDefault:"2m"`

	// PlanDir is an optional directory of extra YAML plans loaded on top of the built-in ones.
	PlanDir string `env:"RUNNER_PLAN_DIR"`

	// Concurrency is the number of jobs one runner process executes at a time.
	Concurrency int `env:"RUNNER_CONCURRENCY" envDefault:"1"`
}

// Sanitize applies guardrails to runner configuration values.
func (r *RunnerConfig) Sanitize() {
	if r.PollInterval < 100*time.Millisecond {
		r.PollInterval = 100 * time.Millisecond
	}
	if r.ActionTimeout < time.Second {
		r.ActionTimeout = time.Second
	}
	r.PlanDir = strings.TrimSpace(r.PlanDir)
	if r.Concurrency < 1 {
		r.Concurrency = 1
	}
	if r.Concurrency > 16 {
		r.Concurrency = 16
	}
}

// AutomationConfig contains the browser automation worker client configuration.
type AutomationConfig struct {
	// WorkerURL is the base URL of the automation worker. Empty disables external steps.
	WorkerURL string `env:"AUTOMATION_WORKER_URL" envDefault:"http://localhost:3000"`

	// Timeout is the HTTP client timeout for one worker call.
	Timeout time.Duration `env:"AUTOMATION_TIMEOUT" envDefault:"3m"`
}

// Sanitize applies guardrails to automation configuration values.
func (a *AutomationConfig) Sanitize() {
	a.WorkerURL = strings.TrimRight(strings.TrimSpace(a.WorkerURL), "/")
	if a.Timeout < time.Second {
		a.Timeout = time.Second
	}
}

// OTPConfig contains the one-time password provider configuration.
type OTPConfig struct {
	// URL is the provider endpoint returning the current code as JSON.
	URL string `env:"OTP_URL" envDefault:"http://localhost:3000/v1/otp"`

	// Token is sent as a bearer token when set.
	Token string `env:"OTP_TOKEN"`

	// CodeExpr is the JMESPath expression selecting the code from the response.
	CodeExpr string `env:"OTP_CODE_EXPR" envDefault:"otp"`

	// RemainingExpr is the JMESPath expression selecting the remaining validity in seconds.
	RemainingExpr string `env:"OTP_REMAINING_EXPR" envDefault:"remaining_seconds"`

	// MinRemaining is the validity a code must still have before it is used.
	MinRemaining time.Duration `env:"OTP_MIN_REMAINING" envDefault:"10s"`

	// MaxAttempts bounds how many codes are read before giving up.
	MaxAttempts int `env:"OTP_MAX_ATTEMPTS" envDefault:"3"`

	// Timeout is the HTTP client timeout for one provider call.
	Timeout time.Duration `env:"OTP_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to OTP configuration values.
func (o *OTPConfig) Sanitize() {
	o.URL = strings.TrimSpace(o.URL)
	if strings.TrimSpace(o.CodeExpr) == "" {
		o.CodeExpr = "otp"
	}
	if strings.TrimSpace(o.RemainingExpr) == "" {
		o.RemainingExpr = "remaining_seconds"
	}
	if o.MinRemaining < 0 {
		o.MinRemaining = 0
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 1
	}
	if o.Timeout < time.Second {
		o.Timeout = time.Second
	}
}

// ReaperConfig contains stale job reaper configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// PendingMaxAge is the maximum age for pending jobs before they are marked as failed.
	// Jobs no runner picked up within this window are failed.
	PendingMaxAge time.Duration `env:"REAPER_PENDING_MAX_AGE" envDefault:"1h"`

	// InProgressMaxAge is how long an in-progress job may go without any record update before
	// it is considered abandoned and failed.
	InProgressMaxAge time.Duration `env:"REAPER_IN_PROGRESS_MAX_AGE" envDefault:"30m"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive store load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.PendingMaxAge < 5*time.Minute {
		r.PendingMaxAge = 5 * time.Minute
	}
	if r.InProgressMaxAge < 5*time.Minute {
		r.InProgressMaxAge = 5 * time.Minute
	}
}
