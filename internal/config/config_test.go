package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db.internal
  name: sentinel
  user: app
  password: secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 2*time.Second, cfg.Ledger.RetryBase)
	assert.Equal(t, 5*time.Minute, cfg.Ledger.RetryCap)
	assert.Equal(t, 10, cfg.Ledger.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.StalenessWindow)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.MaxClockSkew)
	assert.Equal(t, 0.75, cfg.Matcher.ThresholdCritical)
	assert.Equal(t, 0.90, cfg.Matcher.ThresholdLow)
	assert.Equal(t, 256, cfg.Bus.SubscriberBuffer)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FileValuesWin(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
ledger:
  max_attempts: 3
  retry_base: 500ms
pipeline:
  staleness_window: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Ledger.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Ledger.RetryBase)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.StalenessWindow)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  host: from-file
`)

	t.Setenv("SENTINEL_SERVER_PORT", "7070")
	t.Setenv("SENTINEL_DB_HOST", "from-env")
	t.Setenv("SENTINEL_LEDGER_GATEWAY_URL", "http://ledger:7050")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Database.Host)
	assert.Equal(t, "http://ledger:7050", cfg.Ledger.GatewayURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, Name: "sentinel", User: "app", Password: "pw"}
	assert.Equal(t, "postgres://app:pw@db:5432/sentinel?sslmode=disable", d.DSN())
}
