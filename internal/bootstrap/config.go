package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/target/runboard/config"
)

// InitLogger installs the process logger as the slog default. LOG_LEVEL takes debug, info,
// warn or error; LOG_FORMAT=text switches from JSON to logfmt-style output.
func InitLogger() *slog.Logger {
	logger := newLogger(os.Stdout, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	slog.SetDefault(logger)
	return logger
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// LoadConfig reads the env files named by ENV_FILE (comma separated, default .env) without
// overriding variables already set, then parses and sanitises AppConfig. Missing env files
// are ignored.
func LoadConfig() (config.AppConfig, error) {
	for _, file := range envFiles(os.Getenv("ENV_FILE")) {
		if err := godotenv.Load(file); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) {
				return config.AppConfig{}, fmt.Errorf("load %s: %w", file, err)
			}
		}
	}

	cfg, err := env.ParseAs[config.AppConfig]()
	if err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

func envFiles(raw string) []string {
	var files []string
	for f := range strings.SplitSeq(raw, ",") {
		if f = strings.TrimSpace(f); f != "" {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return []string{".env"}
	}
	return files
}

// ValidateServiceConfig rejects an unparseable or empty SERVICES list.
func ValidateServiceConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("service config is required")
	}
	services, err := cfg.GetEnabledServices()
	switch {
	case err != nil:
		return fmt.Errorf("invalid service configuration: %w", err)
	case len(services) == 0:
		return errors.New("no services enabled")
	}
	return nil
}

// GetEnabledServices lists enabled service names in config.ValidServiceModes order. An invalid
// SERVICES value yields an empty list; ValidateServiceConfig reports why.
func GetEnabledServices(cfg *config.AppConfig) []string {
	enabled := []string{}
	if cfg == nil {
		return enabled
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return enabled
	}
	for _, mode := range config.ValidServiceModes() {
		if services[mode] {
			enabled = append(enabled, string(mode))
		}
	}
	return enabled
}
