package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := fromYAML(defaults())
	require.Equal(t, ":8080", cfg.ServerAddr)
	require.Equal(t, BackendMemory, cfg.StoreBackend)
	require.Equal(t, 3*time.Second, cfg.PollInterval)
	require.Equal(t, 5*time.Second, cfg.StoreTimeout)
	require.Equal(t, int64(4096), cfg.WSMaxMessageSize)
	require.True(t, cfg.SeedUsers)
	require.Equal(t, 10, cfg.DBMaxConnections())
}

func TestEnvOverridesYAML(t *testing.T) {
	t.Setenv("STORE_BACKEND", "REDIS")
	t.Setenv("POLL_INTERVAL_MS", "500")
	t.Setenv("SEED_USERS", "false")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")

	yc := defaults()
	yc.PollIntervalMS = 1000
	cfg := fromYAML(yc)
	require.Equal(t, BackendRedis, cfg.StoreBackend)
	require.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	require.False(t, cfg.SeedUsers)
	require.Equal(t, "redis://cache:6379/1", cfg.RedisURL)
}

func TestBadValuesFallBack(t *testing.T) {
	t.Setenv("STORE_BACKEND", "cassandra")
	t.Setenv("POLL_INTERVAL_MS", "soon")
	t.Setenv("SEED_USERS", "maybe")

	yc := defaults()
	yc.StoreTimeoutMS = 0
	cfg := fromYAML(yc)
	require.Equal(t, BackendMemory, cfg.StoreBackend)
	require.Equal(t, 3*time.Second, cfg.PollInterval)
	require.Equal(t, 5*time.Second, cfg.StoreTimeout)
	require.True(t, cfg.SeedUsers)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_addr: ":9090"
store_backend: postgres
poll_interval_ms: 1500
db_max_connections: 4
`), 0o600))
	t.Setenv("APP_ENV", "test")
	t.Setenv("CONFIG_PATH", path)

	cfg := Load()
	require.Equal(t, ":9090", cfg.ServerAddr)
	require.Equal(t, BackendPostgres, cfg.StoreBackend)
	require.Equal(t, 1500*time.Millisecond, cfg.PollInterval)
	require.Equal(t, 4, cfg.DBMaxConnections())
	// Не заданные в файле ключи остаются по умолчанию.
	require.Equal(t, 5*time.Second, cfg.StoreTimeout)
}
