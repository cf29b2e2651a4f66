package config

import (
	"strings"
	"time"
)

// HTTPConfig configures the dashboard and JSON API listener.
type HTTPConfig struct {
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the public origin of the dashboard, used for absolute job links.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// WriteTimeout bounds a single response. Session recordings are served through the same
	// listener, so keep it generous.
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT"    envDefault:"5m"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	CompressionEnabled bool `env:"HTTP_COMPRESSION_ENABLED" envDefault:"false"`
	// CompressionLevel is a gzip level, clamped to 1..9.
	CompressionLevel int `env:"HTTP_COMPRESSION_LEVEL" envDefault:"6"`
}

// Sanitize clamps the gzip level, fills zero timeouts, and normalises BaseURL.
func (h *HTTPConfig) Sanitize() {
	h.Addr = strings.TrimSpace(h.Addr)
	if h.Addr == "" {
		h.Addr = ":8080"
	}
	h.CompressionLevel = min(max(h.CompressionLevel, 1), 9)
	if h.WriteTimeout <= 0 {
		h.WriteTimeout = 5 * time.Minute
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 10 * time.Second
	}
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
}

// JobURLPrefix is BaseURL + "/jobs", or "" when no BaseURL is configured.
func (h *HTTPConfig) JobURLPrefix() string {
	if h.BaseURL == "" {
		return ""
	}
	return h.BaseURL + "/jobs"
}
