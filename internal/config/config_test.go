package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
redis:
  addr: localhost:6379
  ttl: 2h
  prefix: "live:"
game:
  grace_period: 5s
  early_reveal: true
notify:
  analytics_url: http://analytics:3005
  pool_size: 32
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "live:", cfg.Redis.Prefix)
	assert.Equal(t, 2*time.Hour, TTLDuration(cfg.Redis.TTL, time.Minute))
	assert.Equal(t, 5*time.Second, TTLDuration(cfg.Game.GracePeriod, time.Second))
	assert.True(t, cfg.Game.EarlyReveal)
	assert.Equal(t, 32, cfg.Notify.PoolSize)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Server.Port)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Redis.DB = 1
	env := map[string]string{
		"PORT":             "7000",
		"REDIS_DB":         "3",
		"QUIZ_SERVICE_URL": "http://quiz:3002",
		"NATS_URL":         "nats://nats:4222",
		"EARLY_REVEAL":     "true",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "http://quiz:3002", cfg.Quiz.ServiceURL)
	assert.Equal(t, "nats://nats:4222", cfg.Notify.NATSURL)
	assert.True(t, cfg.Game.EarlyReveal)
}

func TestTTLDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, TTLDuration("", time.Minute))
	assert.Equal(t, time.Minute, TTLDuration("soon", time.Minute))
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("QUIZ_LIVE_TEST_KEY=from-file\n"), 0o600))
	t.Setenv("QUIZ_LIVE_TEST_KEY", "")
	os.Unsetenv("QUIZ_LIVE_TEST_KEY")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("QUIZ_LIVE_TEST_KEY"))
}
