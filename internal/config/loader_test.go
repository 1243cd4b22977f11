package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfigYAML = `
server:
  port: 8081
  mode: debug
database:
  host: pg.internal
  port: 5432
  user: registry
  password: secret
  db_name: rid
  max_conns: 4
redis:
  enabled: true
  addr: redis.internal:6379
kafka:
  enabled: true
  brokers: ["k1:9092", "k2:9092"]
  topic: rid.events
log:
  level: debug
  format: console
ingest:
  create_batch_size: 250
  lock_ttl: 5m
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ridsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "pg.internal", cfg.Database.Host)
	assert.Equal(t, "registry", cfg.Database.User)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "rid.events", cfg.Kafka.Topic)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 250, cfg.Ingest.CreateBatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Ingest.LockTTL)
	// untouched keys fall back to defaults
	assert.Equal(t, 500, cfg.Ingest.UpdateBatchSize)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("RIDREG_DATABASE_HOST", "override.internal")
	t.Setenv("RIDREG_INGEST_SLUG_RETRIES", "3")

	cfg, err := Load(writeConfig(t, sampleConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, "override.internal", cfg.Database.Host)
	assert.Equal(t, 3, cfg.Ingest.SlugRetries)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  mode: production\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RIDREG_DATABASE_USER", "envuser")
	t.Setenv("RIDREG_SERVER_PORT", "9999")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "envuser", cfg.Database.User)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, DefaultDBName, cfg.Database.DBName)
}

func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "nope.yaml")) })
}
