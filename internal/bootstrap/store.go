package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/target/runboard/config"
	"github.com/target/runboard/internal/core"
	"github.com/target/runboard/internal/data"
)

// StoreHandle is an opened job store together with its readiness probe and cleanup.
type StoreHandle struct {
	Store   core.JobStore
	Backend config.StoreBackend
	// Ping reports whether the backend is reachable.
	Ping func(ctx context.Context) error

	db     *sql.DB
	redis  redis.UniversalClient
	closed bool
}

// DB returns the Postgres handle, or nil for other backends.
func (h *StoreHandle) DB() *sql.DB { return h.db }

// Close releases backend connections. It is safe to call more than once.
func (h *StoreHandle) Close() error {
	if h == nil || h.closed {
		return nil
	}
	h.closed = true
	var errs []error
	if h.db != nil {
		if err := h.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if h.redis != nil {
		if err := h.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// OpenStore opens the job store selected by STORE_BACKEND.
func OpenStore(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*StoreHandle, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	storeLogger := logger.With("store", string(cfg.Store.Backend))

	switch cfg.Store.Backend {
	case config.StoreBackendPostgres:
		return openPostgresStore(ctx, cfg, storeLogger)
	case config.StoreBackendRedis:
		return openRedisStore(ctx, cfg, storeLogger)
	default:
		return openFileStore(cfg, storeLogger)
	}
}

func openFileStore(cfg *config.AppConfig, logger *slog.Logger) (*StoreHandle, error) {
	store, err := data.NewFileStore(data.FileStoreOptions{Dir: cfg.Store.DataDir, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("open file store: %w", err)
	}
	dir := cfg.Store.DataDir
	logger.Info("job store ready", "dir", dir)
	return &StoreHandle{
		Store:   store,
		Backend: config.StoreBackendFile,
		Ping: func(context.Context) error {
			_, statErr := os.Stat(dir)
			return statErr
		},
	}, nil
}

func openPostgresStore(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*StoreHandle, error) {
	db, err := ConnectDB(ctx, DatabaseConfig{DBConfig: cfg.Postgres, Logger: logger})
	if err != nil {
		return nil, err
	}
	handle := &StoreHandle{Backend: config.StoreBackendPostgres, db: db, Ping: db.PingContext}

	if cfg.Postgres.RunMigrationsOnStart {
		if migErr := RunMigrations(ctx, db, logger); migErr != nil {
			return nil, errors.Join(migErr, handle.Close())
		}
	}

	store, err := data.NewPGStore(db, data.PGStoreOptions{Logger: logger})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open postgres store: %w", err), handle.Close())
	}
	handle.Store = store
	return handle, nil
}

func openRedisStore(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*StoreHandle, error) {
	client, err := ConnectRedis(ctx, DatabaseConfig{RedisConfig: cfg.Redis, Logger: logger})
	if err != nil {
		return nil, err
	}
	handle := &StoreHandle{
		Backend: config.StoreBackendRedis,
		redis:   client,
		Ping:    func(ctx context.Context) error { return client.Ping(ctx).Err() },
	}

	store, err := data.NewRedisStore(client, data.RedisStoreOptions{KeyPrefix: cfg.Redis.KeyPrefix, Logger: logger})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open redis store: %w", err), handle.Close())
	}
	handle.Store = store
	return handle, nil
}
