package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/runboard/config"
)

// shutdownWaitTimeout bounds how long services get to return after cancellation.
const shutdownWaitTimeout = 15 * time.Second

// ServiceOrchestrationConfig contains everything RunServicesWithShutdown starts.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	// Ping backs the readiness probe.
	Ping   func(ctx context.Context) error
	Logger *slog.Logger

	// listener replaces HTTP_ADDR in tests.
	listener net.Listener
}

// backgroundService is one long-running component selected by SERVICES.
type backgroundService struct {
	mode config.ServiceMode
	name string
	// run blocks until ctx is cancelled. A nil return after cancellation is a clean stop.
	run func(ctx context.Context) error
}

// RunServicesWithShutdown runs every enabled service until SIGINT or SIGTERM arrives or one
// of them fails. In-flight jobs stay in_progress on shutdown; the reaper fails them if no
// runner picks them up again.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if err := validateOrchestration(cfg); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runServices(ctx, cfg)
}

func validateOrchestration(cfg *ServiceOrchestrationConfig) error {
	switch {
	case cfg == nil:
		return errors.New("service orchestration config is required")
	case cfg.Config == nil:
		return errors.New("service orchestration config missing AppConfig")
	case cfg.Services.Store == nil:
		return errors.New("service orchestration config missing job store")
	}
	return nil
}

func runServices(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	err = superviseServices(ctx, logger, selectServices(cfg, logger, enabled))
	if closeErr := cfg.Services.Observability.MetricsSink.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close statsd client: %w", closeErr))
	}
	return err
}

// selectServices returns the enabled services in config.ValidServiceModes order.
func selectServices(cfg *ServiceOrchestrationConfig, logger *slog.Logger, enabled map[config.ServiceMode]bool) []backgroundService {
	all := []backgroundService{
		newHTTPService(cfg, logger),
		{
			mode: config.ServiceModeRunner,
			name: "job runner",
			run: func(ctx context.Context) error {
				return RunRunner(ctx, RunnerConfig{Config: cfg.Config, Services: cfg.Services, Logger: logger})
			},
		},
		{
			mode: config.ServiceModeReaper,
			name: "reaper",
			run: func(ctx context.Context) error {
				return RunReaper(ctx, ReaperConfig{
					Store:   cfg.Services.Store,
					Logger:  logger,
					Config:  cfg.Config.Reaper,
					Metrics: cfg.Services.Observability.MetricsSink,
				})
			},
		},
	}

	selected := make([]backgroundService, 0, len(all))
	for _, svc := range all {
		if enabled[svc.mode] {
			selected = append(selected, svc)
		}
	}
	return selected
}

// superviseServices runs services side by side. The first failure cancels the rest; a
// cancelled ctx stops all of them. Services that ignore cancellation are abandoned after
// shutdownWaitTimeout.
func superviseServices(ctx context.Context, logger *slog.Logger, services []backgroundService) error {
	if len(services) == 0 {
		return errors.New("no services enabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		g.Go(func() error {
			logger.InfoContext(gctx, "service started", "service", svc.name, "mode", svc.mode)
			err := svc.run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.ErrorContext(gctx, "service failed", "service", svc.name, "error", err)
				return fmt.Errorf("%s: %w", svc.name, err)
			}
			logger.Info("service stopped", "service", svc.name)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-gctx.Done():
	}
	logger.Info("shutting down services")

	select {
	case err := <-done:
		return err
	case <-time.After(shutdownWaitTimeout):
		return fmt.Errorf("services did not stop within %s", shutdownWaitTimeout)
	}
}
