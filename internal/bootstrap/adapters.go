package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/target/runboard/config"
	"github.com/target/runboard/internal/adapters/jobrunner"
	"github.com/target/runboard/internal/adapters/otp"
	"github.com/target/runboard/internal/adapters/portal"
	"github.com/target/runboard/internal/core"
	"github.com/target/runboard/internal/observability/statsd"
	"github.com/target/runboard/internal/service"
)

// RunnerConfig contains the dependencies of the job runner service.
type RunnerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// NewJobRunner wires the automation worker client, the OTP provider, and the artifact
// publisher into a job runner.
func NewJobRunner(cfg RunnerConfig) (*jobrunner.Runner, error) {
	if cfg.Config == nil {
		return nil, errors.New("runner config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config

	automation, err := portal.NewClient(portal.ClientOptions{
		WorkerURL: appCfg.Automation.WorkerURL,
		Timeout:   appCfg.Automation.Timeout,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create automation client: %w", err)
	}

	credentials, err := newCredentialWaiter(appCfg.OTP, logger)
	if err != nil {
		return nil, err
	}

	opts := jobrunner.RunnerOptions{
		Store:                  cfg.Services.Store,
		Automation:             automation,
		Plans:                  cfg.Services.Plans,
		Logger:                 logger,
		Metrics:                cfg.Services.Observability.MetricsSink,
		ActionTimeout:          appCfg.Runner.ActionTimeout,
		CredentialMinRemaining: appCfg.OTP.MinRemaining,
		CredentialAttempts:     appCfg.OTP.MaxAttempts,
		PollInterval:           appCfg.Runner.PollInterval,
		Concurrency:            appCfg.Runner.Concurrency,
	}
	if credentials != nil {
		opts.Credentials = credentials
	}
	if cfg.Services.Artifacts != nil {
		opts.Publisher = cfg.Services.Artifacts
	}

	runner, err := jobrunner.NewRunner(opts)
	if err != nil {
		return nil, fmt.Errorf("create job runner: %w", err)
	}
	return runner, nil
}

// newCredentialWaiter returns nil when no OTP provider is configured; plans that need a
// fresh code then fail at their login step.
func newCredentialWaiter(cfg config.OTPConfig, logger *slog.Logger) (*service.CredentialWaiter, error) {
	if cfg.URL == "" {
		logger.Warn("OTP provider not configured; login steps will fail")
		return nil, nil
	}
	source, err := NewOTPSource(cfg, logger)
	if err != nil {
		return nil, err
	}

	waiter, err := service.NewCredentialWaiter(service.CredentialWaiterOptions{
		Source: source,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create credential waiter: %w", err)
	}
	return waiter, nil
}

// NewOTPSource builds the HTTP one-time password reader from configuration.
func NewOTPSource(cfg config.OTPConfig, logger *slog.Logger) (*otp.Source, error) {
	source, err := otp.NewSource(otp.SourceOptions{
		URL:           cfg.URL,
		Token:         cfg.Token,
		CodeExpr:      cfg.CodeExpr,
		RemainingExpr: cfg.RemainingExpr,
		HTTPClient:    &http.Client{Timeout: cfg.Timeout},
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create otp source: %w", err)
	}
	return source, nil
}

// RunRunner starts the job runner and blocks until ctx is cancelled.
func RunRunner(ctx context.Context, cfg RunnerConfig) error {
	runner, err := NewJobRunner(cfg)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}

// ReaperConfig contains configuration for the reaper service.
type ReaperConfig struct {
	Store   core.JobStore
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper runs the stale job reaper until ctx is cancelled.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Store:   cfg.Store,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper: %w", err)
	}
	return reaper.Run(ctx)
}
