// Command runboard serves the job dashboard and runs the services selected by SERVICES.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/target/runboard/config"
	"github.com/target/runboard/internal/bootstrap"
	"github.com/target/runboard/internal/devseed"
)

func main() {
	checkOnly := flag.Bool("check-config", false, "load and validate configuration, then exit")
	flag.Parse()

	logger := bootstrap.InitLogger()
	ctx := context.Background()
	if err := run(ctx, logger, *checkOnly); err != nil {
		logger.ErrorContext(ctx, "runboard exited", "error", err)
		os.Exit(1) //nolint:forbidigo // process entrypoint
	}
}

func run(ctx context.Context, logger *slog.Logger, checkOnly bool) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}
	logger.InfoContext(ctx, "starting runboard", startupAttrs(&cfg)...)
	if checkOnly {
		return nil
	}

	store, err := bootstrap.OpenStore(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.ErrorContext(ctx, "close job store", "error", err)
		}
	}()

	if cfg.IsDev {
		if _, err := devseed.Seed(ctx, store.Store, devseed.Options{Logger: logger}); err != nil {
			logger.WarnContext(ctx, "seed demo jobs", "error", err)
		}
	}

	services, err := bootstrap.NewServices(ctx, &bootstrap.ServiceDeps{Config: &cfg, Store: store.Store, Logger: logger})
	if err != nil {
		return err
	}
	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:   &cfg,
		Services: services,
		Ping:     store.Ping,
		Logger:   logger,
	})
}

func startupAttrs(cfg *config.AppConfig) []any {
	attrs := []any{
		"version", buildVersion(),
		"store", cfg.Store.Backend,
		"artifacts", cfg.Artifacts.Backend,
		"dev", cfg.IsDev,
		"services", bootstrap.GetEnabledServices(cfg),
	}
	if sinks := cfg.Observability.Escalation.Sinks(); len(sinks) > 0 {
		attrs = append(attrs, "escalation_sinks", sinks)
	}
	return attrs
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "devel"
}
