// Package config declares the environment-driven settings of the runboard server and admin
// CLI. Values are parsed with github.com/caarlos0/env and then normalised by Sanitize.
package config

import (
	"os"
	"strings"
)

// AppConfig is the root of the configuration tree. Each section lives next to the code it
// configures:
//   - database.go: STORE_BACKEND, DATA_DIR, DB_*, REDIS_*
//   - artifacts.go: ARTIFACTS_*
//   - http.go: HTTP_*, APP_BASE_URL
//   - services.go: SERVICES, RUNNER_*, AUTOMATION_*, OTP_*, REAPER_*
//   - observability.go: METRICS_*, ESCALATION_*
type AppConfig struct {
	// IsDev reloads templates on every request and seeds demo jobs into an empty store.
	// NODE_ENV=development also enables it.
	IsDev bool `env:"DEV" envDefault:"false"`

	Store    StoreConfig
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	Artifacts ArtifactsConfig
	HTTP      HTTPConfig

	// Services is a comma separated subset of http, runner and reaper.
	Services string `env:"SERVICES" envDefault:"http"`

	Runner     RunnerConfig
	Automation AutomationConfig
	OTP        OTPConfig
	Reaper     ReaperConfig

	Observability ObservabilityConfig
}

type sanitizer interface{ Sanitize() }

// Sanitize normalises every section. Call it once after parsing.
func (c *AppConfig) Sanitize() {
	for _, section := range []sanitizer{
		&c.Store, &c.Redis, &c.Artifacts, &c.HTTP, &c.Runner,
		&c.Automation, &c.OTP, &c.Reaper, &c.Observability,
	} {
		section.Sanitize()
	}
	if !c.IsDev {
		switch strings.ToLower(strings.TrimSpace(os.Getenv("NODE_ENV"))) {
		case "development", "dev":
			c.IsDev = true
		}
	}
}

// GetEnabledServices parses Services.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	return err == nil && services[mode]
}

// IsHTTPServerEnabled reports whether SERVICES includes http.
func (c *AppConfig) IsHTTPServerEnabled() bool { return c.serviceEnabled(ServiceModeHTTP) }

// IsRunnerEnabled reports whether SERVICES includes runner.
func (c *AppConfig) IsRunnerEnabled() bool { return c.serviceEnabled(ServiceModeRunner) }

// IsReaperEnabled reports whether SERVICES includes reaper.
func (c *AppConfig) IsReaperEnabled() bool { return c.serviceEnabled(ServiceModeReaper) }
