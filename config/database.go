package config

import "strings"

// StoreBackend names a job record store implementation.
type StoreBackend string

const (
	// StoreBackendFile keeps one JSON document per job in a directory.
	StoreBackendFile StoreBackend = "file"
	// StoreBackendPostgres keeps one JSONB row per job.
	StoreBackendPostgres StoreBackend = "postgres"
	// StoreBackendRedis keeps one JSON string per job.
	StoreBackendRedis StoreBackend = "redis"
)

// StoreConfig selects and configures the job record store.
type StoreConfig struct {
	Backend StoreBackend `env:"STORE_BACKEND" envDefault:"file"`
	// DataDir holds process_<id>.json and processes.json for the file backend.
	DataDir string `env:"DATA_DIR" envDefault:"./data"`
}

// Sanitize normalises the backend name and falls back to the file backend when unknown.
func (s *StoreConfig) Sanitize() {
	s.Backend = StoreBackend(strings.ToLower(strings.TrimSpace(string(s.Backend))))
	switch s.Backend {
	case StoreBackendFile, StoreBackendPostgres, StoreBackendRedis:
	default:
		s.Backend = StoreBackendFile
	}
	if strings.TrimSpace(s.DataDir) == "" {
		s.DataDir = "./data"
	}
}

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"runboard"`
	Password string `env:"PASSWORD"                envDefault:"runboard"`
	Name     string `env:"NAME"                    envDefault:"runboard"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	KeyPrefix          string   `env:"KEY_PREFIX"           envDefault:"runboard:"`
	SentinelPort       string   `env:"SENTINEL_PORT"        envDefault:"26379"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// Sanitize applies guardrails to Redis configuration values.
func (r *RedisConfig) Sanitize() {
	if r.DB < 0 {
		r.DB = 0
	}
	if strings.TrimSpace(r.KeyPrefix) == "" {
		r.KeyPrefix = "runboard:"
	}
}
