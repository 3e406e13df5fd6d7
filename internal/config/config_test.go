package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/tradeguard/internal/errs"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 24, cfg.Service.LookbackHours)
	assert.Equal(t, "social", cfg.Providers.Social.Name)
	assert.False(t, cfg.Storage.Postgres.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EmptyPathIsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
}

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
service:
  lookback_hours: 12
  subreddits: [stocks]
gate:
  max_pending_orders: 2
  sentiment:
    enabled: true
    fail_closed: true
storage:
  postgres:
    enabled: true
    dsn: postgres://localhost/tradeguard
    max_idle_conns: 0
    conn_max_lifetime: 0s
providers:
  social:
    path: testdata/records.json
    max_retries: 0
    timeout: 2s
server:
  port: 9090
log:
  level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Service.LookbackHours)
	assert.Equal(t, 30, cfg.Service.BaselineDays, "unset keys keep defaults")
	assert.Equal(t, []string{"stocks"}, cfg.Service.Subreddits)
	assert.Equal(t, 2, cfg.Gate.MaxPendingOrders)
	assert.True(t, cfg.Gate.Sentiment.FailClosed)

	assert.True(t, cfg.Storage.Postgres.Enabled)
	assert.Equal(t, 10, cfg.Storage.Postgres.MaxOpenConns)
	assert.Zero(t, cfg.Storage.Postgres.MaxIdleConns, "explicit zeros are kept")
	assert.Zero(t, cfg.Storage.Postgres.ConnMaxLifetime)

	assert.Equal(t, "testdata/records.json", cfg.Providers.Social.Path)
	assert.Zero(t, cfg.Providers.Social.MaxRetries)
	assert.Equal(t, 3, cfg.Providers.Account.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Providers.Social.Timeout)
	assert.Equal(t, "social", cfg.Providers.Social.Name)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "auto", cfg.Log.Format)
}

func TestParse_NullSectionKeepsDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader("scorer: null\nlog: null\nserver: null\nproviders:\n  prices: null\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.Scorer)
	assert.Equal(t, Default().Scorer.VolumeScale, cfg.Scorer.VolumeScale)
	assert.Equal(t, Default().Log, cfg.Log)
	assert.Equal(t, Default().Server, cfg.Server)
	assert.Equal(t, "prices", cfg.Providers.Prices.Name)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"unknown key", "service:\n  lookbak_hours: 3\n", "config"},
		{"bad yaml", "service: [\n", "config"},
		{"section check", "service:\n  lookback_hours: 1000\n", "service.lookback_hours"},
		{"tag rule", "log:\n  level: loud\n", "log.level"},
		{"nested tag rule", "storage:\n  redis:\n    db: -1\n", "storage.redis.db"},
		{"dsn required", "storage:\n  postgres:\n    enabled: true\n", "storage.postgres.dsn"},
		{"provider guard", "providers:\n  prices:\n    failure_thresh: 2\n", "providers.prices.failure_thresh"},
		{"server", "server:\n  port: 70000\n", "server.port"},
		{"explicit zero is checked", "storage:\n  postgres:\n    max_open_conns: 0\n", "storage.postgres.max_open_conns"},
		{"empty log format", "log:\n  format: \"\"\n", "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.yaml))
			require.Error(t, err)
			var ce errs.ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tradeguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backtest:\n  workers: 2\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Backtest.Workers)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestYAMLPath(t *testing.T) {
	assert.Equal(t, "storage.postgres.max_open_conns", yamlPath("Config.Storage.Postgres.MaxOpenConns"))
	assert.Equal(t, "storage.redis.db", yamlPath("Config.Storage.Redis.DB"))
	assert.Equal(t, "log.level", yamlPath("Config.Log.Level"))
}
