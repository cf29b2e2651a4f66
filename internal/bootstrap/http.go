package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/target/runboard/config"
	httpx "github.com/target/runboard/internal/http"
)

func routerServices(
	svc ServiceContainer,
	ping func(ctx context.Context) error,
	isDev bool,
	logger *slog.Logger,
) httpx.RouterServices {
	services := httpx.RouterServices{
		Jobs:   svc.Jobs,
		Poller: svc.Poller,
		Ping:   ping,
		IsDev:  isDev,
		Logger: logger,
	}
	if svc.Artifacts != nil {
		services.Artifacts = svc.Artifacts
	}
	return services
}

type httpHandlerConfig struct {
	Logger   *slog.Logger
	Services httpx.RouterServices
	HTTP     config.HTTPConfig
}

// buildHTTPHandler wraps the router as Recover(Logging(Compression(router))).
func buildHTTPHandler(cfg httpHandlerConfig) http.Handler {
	var h http.Handler = httpx.NewRouter(cfg.Services)
	if cfg.HTTP.CompressionEnabled {
		h = httpx.Compression(httpx.CompressionConfig{Level: cfg.HTTP.CompressionLevel, Logger: cfg.Logger})(h)
	}
	h = httpx.Logging(cfg.Logger)(h)
	return httpx.Recover(cfg.Logger)(h)
}

func newHTTPServer(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
}

// serveHTTP serves on ln until ctx is cancelled, then drains in-flight requests for at most
// shutdownTimeout. A nil ln listens on server.Addr.
func serveHTTP(ctx context.Context, server *http.Server, ln net.Listener, shutdownTimeout time.Duration, logger *slog.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		if ln == nil {
			serveErr <- server.ListenAndServe()
			return
		}
		serveErr <- server.Serve(ln)
	}()
	logger.InfoContext(ctx, "http server listening", "addr", server.Addr)

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	// ctx is already done; draining gets its own deadline.
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}

func newHTTPService(cfg *ServiceOrchestrationConfig, logger *slog.Logger) backgroundService {
	handler := buildHTTPHandler(httpHandlerConfig{
		Logger:   logger,
		Services: routerServices(cfg.Services, cfg.Ping, cfg.Config.IsDev, logger),
		HTTP:     cfg.Config.HTTP,
	})
	if cfg.Config.HTTP.CompressionEnabled {
		logger.Info("http compression enabled", "level", cfg.Config.HTTP.CompressionLevel)
	}
	return backgroundService{
		mode: config.ServiceModeHTTP,
		name: "http server",
		run: func(ctx context.Context) error {
			server := newHTTPServer(cfg.Config.HTTP, handler)
			return serveHTTP(ctx, server, cfg.listener, cfg.Config.HTTP.ShutdownTimeout, logger)
		},
	}
}
