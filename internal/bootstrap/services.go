package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/runboard/config"
	"github.com/target/runboard/internal/adapters/artifacts"
	"github.com/target/runboard/internal/core"
	"github.com/target/runboard/internal/domain/plan"
	"github.com/target/runboard/internal/observability/notify"
	"github.com/target/runboard/internal/observability/notify/pagerduty"
	"github.com/target/runboard/internal/observability/notify/slack"
	"github.com/target/runboard/internal/observability/statsd"
	"github.com/target/runboard/internal/service"
	"github.com/target/runboard/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Store         core.JobStore
	Plans         *plan.Registry
	Jobs          *service.JobService
	Poller        *service.StatusPoller
	Artifacts     artifacts.Store
	Observability ObservabilityContainer
}

// ObservabilityContainer holds the metrics client and the escalation fan-out.
type ObservabilityContainer struct {
	// MetricsSink is nil when metrics are disabled; its methods are nil-safe.
	MetricsSink     *statsd.Client
	FailureNotifier *failurenotifier.Service
	Escalation      config.EscalationConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig
	Store  core.JobStore
	Logger *slog.Logger
}

func buildObservability(logger *slog.Logger, cfg *config.AppConfig) ObservabilityContainer {
	if logger == nil {
		logger = slog.Default()
	}
	obs := ObservabilityContainer{Escalation: cfg.Observability.Escalation}

	if metrics := cfg.Observability.Metrics; metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled:    true,
			Address:    metrics.StatsdAddress,
			Prefix:     metrics.Prefix,
			GlobalTags: metrics.GlobalTags(),
			Logger:     logger,
		})
		if err != nil {
			// Metrics are best effort; the services run without them.
			logger.Error("statsd client disabled", "address", metrics.StatsdAddress, "error", err)
		} else {
			obs.MetricsSink = client
		}
	}

	if obs.Escalation.Slack.JobURLPrefix == "" {
		obs.Escalation.Slack.JobURLPrefix = cfg.HTTP.JobURLPrefix()
	}
	obs.FailureNotifier = buildFailureNotifier(logger, obs.Escalation)
	return obs
}

// LoadPlans returns the built-in plans plus any YAML plans found in dir.
func LoadPlans(dir string) (*plan.Registry, error) {
	plans, err := plan.Builtin()
	if err != nil {
		return nil, err
	}
	if err := plans.LoadDir(dir); err != nil {
		return nil, err
	}
	return plans, nil
}

// NewServices wires the job services on top of an opened store.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil || deps.Store == nil {
		return ServiceContainer{}, errors.New("config and store are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	plans, err := LoadPlans(cfg.Runner.PlanDir)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("load plans: %w", err)
	}

	observability := buildObservability(logger, cfg)

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Store:     deps.Store,
		Plans:     plans,
		Escalator: observability.FailureNotifier,
		Logger:    logger,
		Metrics:   observability.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create job service: %w", err)
	}

	poller, err := service.NewStatusPoller(service.StatusPollerOptions{
		Store:  deps.Store,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create status poller: %w", err)
	}

	store, err := artifacts.New(ctx, cfg.Artifacts)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create artifact store: %w", err)
	}

	return ServiceContainer{
		Store:         deps.Store,
		Plans:         plans,
		Jobs:          jobs,
		Poller:        poller,
		Artifacts:     store,
		Observability: observability,
	}, nil
}

func buildFailureNotifier(logger *slog.Logger, cfg config.EscalationConfig) *failurenotifier.Service {
	opts := failurenotifier.Options{Logger: logger.With("component", "failure_notifier")}

	for _, name := range cfg.Sinks() {
		sink, err := newEscalationSink(name, cfg)
		if err != nil {
			logger.Error("escalation sink disabled", "sink", name, "error", err)
			continue
		}
		opts.Sinks = append(opts.Sinks, failurenotifier.SinkRegistration{Name: name, Sink: sink})
	}
	return failurenotifier.NewService(opts)
}

func newEscalationSink(name string, cfg config.EscalationConfig) (notify.Sink, error) {
	switch name {
	case "slack":
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.Retries,
			JobURLPrefix: cfg.Slack.JobURLPrefix,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case "pagerduty":
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Endpoint:   cfg.PagerDuty.Endpoint,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.Retries,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown escalation sink %q", name)
	}
}
