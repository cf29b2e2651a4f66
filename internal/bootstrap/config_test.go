package bootstrap

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/runboard/config"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "")
	logger.Info("hidden")
	logger.Warn("shown", "job_id", 7)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"job_id":7`)

	buf.Reset()
	logger = newLogger(&buf, "nonsense", "TEXT")
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
	logger.Info("plain", "step", "login")
	assert.Contains(t, buf.String(), "step=login")
}

func TestEnvFiles(t *testing.T) {
	assert.Equal(t, []string{".env"}, envFiles(""))
	assert.Equal(t, []string{".env"}, envFiles(" , "))
	assert.Equal(t, []string{"base.env", "local.env"}, envFiles("base.env, local.env"))
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runboard.env")
	require.NoError(t, os.WriteFile(path, []byte("SERVICES=runner,reaper\nSTORE_BACKEND=redis\n"), 0o600))
	t.Setenv("ENV_FILE", path+",missing.env")
	// Already-set variables win over the file.
	t.Setenv("STORE_BACKEND", "postgres")
	// godotenv sets SERVICES for the process; drop it again afterwards.
	t.Setenv("SERVICES", "")
	require.NoError(t, os.Unsetenv("SERVICES"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"runner", "reaper"}, GetEnabledServices(&cfg))
	assert.Equal(t, config.StoreBackendPostgres, cfg.Store.Backend)
}
