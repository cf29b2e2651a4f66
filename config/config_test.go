package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{name: "single service - http", input: "http", expected: map[ServiceMode]bool{ServiceModeHTTP: true}},
		{name: "single service - runner", input: "runner", expected: map[ServiceMode]bool{ServiceModeRunner: true}},
		{
			name:     "all services with spaces",
			input:    " http , runner , reaper ",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true, ServiceModeRunner: true, ServiceModeReaper: true},
		},
		{
			name:     "duplicate services",
			input:    "http,http,runner",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true, ServiceModeRunner: true},
		},
		{name: "empty string", input: "", expectError: true},
		{name: "only commas", input: ",,", expectError: true},
		{name: "invalid service", input: "http,scheduler", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ParseServices(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestAppConfig_ParseEnvDefaults(t *testing.T) {
	t.Setenv("SERVICES", "http,runner")
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("OTP_MIN_REMAINING", "15s")
	t.Setenv("ARTIFACTS_BACKEND", "s3")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	cfg.Sanitize()

	if cfg.Store.Backend != StoreBackendPostgres {
		t.Errorf("expected postgres backend, got %q", cfg.Store.Backend)
	}
	if cfg.Postgres.Name != "runboard" {
		t.Errorf("expected default db name runboard, got %q", cfg.Postgres.Name)
	}
	if cfg.Redis.KeyPrefix != "runboard:" {
		t.Errorf("expected default redis key prefix, got %q", cfg.Redis.KeyPrefix)
	}
	if cfg.OTP.MinRemaining != 15*time.Second {
		t.Errorf("expected otp min remaining 15s, got %v", cfg.OTP.MinRemaining)
	}
	if cfg.OTP.MaxAttempts != 3 {
		t.Errorf("expected 3 otp attempts, got %d", cfg.OTP.MaxAttempts)
	}
	if cfg.Runner.PollInterval != 2*time.Second {
		t.Errorf("expected 2s poll interval, got %v", cfg.Runner.PollInterval)
	}
	// S3 without credentials falls back to local publishing.
	if cfg.Artifacts.Backend != ArtifactBackendLocal {
		t.Errorf("expected local artifacts fallback, got %q", cfg.Artifacts.Backend)
	}
	if !cfg.IsHTTPServerEnabled() || !cfg.IsRunnerEnabled() || cfg.IsReaperEnabled() {
		t.Errorf("unexpected enabled services for %q", cfg.Services)
	}
}

func TestConfig_ServiceEnabledMethodsWithInvalidConfig(t *testing.T) {
	cfg := AppConfig{Services: "bogus"}
	if cfg.IsHTTPServerEnabled() || cfg.IsRunnerEnabled() || cfg.IsReaperEnabled() {
		t.Fatal("expected no services enabled for an invalid list")
	}
}

func TestValidServiceModes(t *testing.T) {
	expected := []ServiceMode{ServiceModeHTTP, ServiceModeRunner, ServiceModeReaper}
	if got := ValidServiceModes(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("ValidServiceModes() = %v, want %v", got, expected)
	}
}

func TestStoreConfig_Sanitize(t *testing.T) {
	cfg := StoreConfig{Backend: " nosuch ", DataDir: " "}
	cfg.Sanitize()
	if cfg.Backend != StoreBackendFile {
		t.Errorf("expected file fallback, got %q", cfg.Backend)
	}
	if cfg.DataDir != "./data" {
		t.Errorf("expected default data dir, got %q", cfg.DataDir)
	}
}

func TestRunnerAndReaperConfig_Sanitize(t *testing.T) {
	runner := RunnerConfig{PollInterval: time.Millisecond, ActionTimeout: 0, PlanDir: " plans "}
	runner.Sanitize()
	if runner.PollInterval != 100*time.Millisecond || runner.ActionTimeout != time.Second || runner.PlanDir != "plans" {
		t.Errorf("unexpected runner config after sanitize: %+v", runner)
	}

	reaper := ReaperConfig{}
	reaper.Sanitize()
	if reaper.Interval != time.Minute || reaper.PendingMaxAge != 5*time.Minute || reaper.InProgressMaxAge != 5*time.Minute {
		t.Errorf("unexpected reaper config after sanitize: %+v", reaper)
	}
}

func TestArtifactsConfig_SanitizeKeepsCompleteS3(t *testing.T) {
	cfg := ArtifactsConfig{
		Backend: "S3",
		S3: S3Config{
			Endpoint:  "minio:9000",
			AccessKey: "key",
			SecretKey: "secret",
			Bucket:    "artifacts",
			PublicURL: "https://cdn.example/artifacts/",
		},
	}
	cfg.Sanitize()
	if cfg.Backend != ArtifactBackendS3 {
		t.Fatalf("expected s3 backend, got %q", cfg.Backend)
	}
	if cfg.S3.PublicURL != "https://cdn.example/artifacts" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.S3.PublicURL)
	}
}

func TestHTTPConfig_JobURLPrefix(t *testing.T) {
	cfg := HTTPConfig{BaseURL: " https://runboard.example/ "}
	cfg.Sanitize()
	if got := cfg.JobURLPrefix(); got != "https://runboard.example/jobs" {
		t.Fatalf("JobURLPrefix() = %q", got)
	}
}

func TestMetricsConfig_Sanitize(t *testing.T) {
	cfg := MetricsConfig{Enabled: true, StatsdAddress: " ", Prefix: " .runboard. "}
	cfg.Sanitize()
	if cfg.IsEnabled() {
		t.Fatal("expected metrics to be disabled without an address")
	}
	if cfg.Prefix != "runboard" {
		t.Fatalf("expected dots trimmed from prefix, got %q", cfg.Prefix)
	}

	cfg = MetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
		Tags:          map[string]string{" env ": " prod ", " ": "dropped"},
	}
	cfg.Sanitize()
	if !cfg.IsEnabled() || cfg.StatsdAddress != "statsd:1234" {
		t.Fatalf("expected trimmed, enabled metrics, got %+v", cfg)
	}
	if cfg.Prefix != "runboard" {
		t.Fatalf("expected default prefix, got %q", cfg.Prefix)
	}
	tags := cfg.GlobalTags()
	if !reflect.DeepEqual(tags, map[string]string{"env": "prod"}) {
		t.Fatalf("unexpected tags %v", tags)
	}
	tags["env"] = "changed"
	if cfg.Tags["env"] != "prod" {
		t.Fatal("GlobalTags must return a copy")
	}
}

func TestMetricsConfig_ParseEnv(t *testing.T) {
	t.Setenv("METRICS_ENABLED", "true")
	t.Setenv("METRICS_TAGS", "env:prod,region:eu")
	t.Setenv("ESCALATION_ENABLED", "true")
	t.Setenv("ESCALATION_SLACK_ENABLED", "true")
	t.Setenv("ESCALATION_SLACK_WEBHOOK_URL", "https://hooks.slack.example/services/x")

	var cfg ObservabilityConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg.Sanitize()
	if !cfg.Metrics.IsEnabled() || cfg.Metrics.Tags["region"] != "eu" {
		t.Fatalf("unexpected metrics config %+v", cfg.Metrics)
	}
	if got := cfg.Escalation.Sinks(); !reflect.DeepEqual(got, []string{"slack"}) {
		t.Fatalf("Sinks() = %v", got)
	}
}

func TestEscalationConfig_Sanitize(t *testing.T) {
	cfg := EscalationConfig{
		Enabled: true,
		Retries: -1,
		Slack:   SlackEscalation{Enabled: true, WebhookURL: " ", Username: " "},
		PagerDuty: PagerDutyEscalation{
			Enabled:    true,
			RoutingKey: " ",
		},
	}
	cfg.Sanitize()

	if cfg.Timeout != 5*time.Second {
		t.Fatalf("expected default timeout, got %v", cfg.Timeout)
	}
	if cfg.Retries != 0 {
		t.Fatalf("expected retries clamped to 0, got %d", cfg.Retries)
	}
	if cfg.Slack.Enabled || cfg.PagerDuty.Enabled {
		t.Fatal("expected sinks without credentials to be disabled")
	}
	if cfg.Slack.Username != "runboard" || cfg.PagerDuty.Source != "runboard" || cfg.PagerDuty.Component != "runboard" {
		t.Fatalf("expected defaults, got %+v / %+v", cfg.Slack, cfg.PagerDuty)
	}
	if len(cfg.Sinks()) != 0 {
		t.Fatalf("expected no sinks, got %v", cfg.Sinks())
	}

	cfg = EscalationConfig{
		Enabled:   false,
		Slack:     SlackEscalation{Enabled: true, WebhookURL: "https://hooks.slack.example/services/test"},
		PagerDuty: PagerDutyEscalation{Enabled: true, RoutingKey: "abc"},
	}
	cfg.Sanitize()
	if cfg.Slack.Enabled || cfg.PagerDuty.Enabled {
		t.Fatal("expected sinks to follow the top-level switch")
	}

	cfg.Enabled = true
	cfg.Slack.Enabled = true
	cfg.PagerDuty.Enabled = true
	cfg.Sanitize()
	if got := cfg.Sinks(); !reflect.DeepEqual(got, []string{"slack", "pagerduty"}) {
		t.Fatalf("Sinks() = %v", got)
	}
}

func TestHTTPConfig_SanitizeDefaults(t *testing.T) {
	cfg := HTTPConfig{Addr: " ", CompressionLevel: 42}
	cfg.Sanitize()
	if cfg.Addr != ":8080" || cfg.CompressionLevel != 9 {
		t.Fatalf("unexpected http config %+v", cfg)
	}
	if cfg.WriteTimeout != 5*time.Minute || cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("unexpected timeouts %+v", cfg)
	}
	if cfg.JobURLPrefix() != "" {
		t.Fatalf("expected no job links without a base url, got %q", cfg.JobURLPrefix())
	}
}
