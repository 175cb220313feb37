package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
app:
  port: 9090
database:
  driver: sqlite
  path: /tmp/ledger.db
auth:
  jwt_secret: test-secret
market_data:
  provider: http
  base_url: http://quotes.local
  fetch_timeout: 3s
quote_cache:
  serve_stale_on_error: true
  warm_symbols: [aapl, " msft "]
ledger:
  starting_balance: "25000.00"
  lock_timeout: 500ms
stream:
  push_interval: 2s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 3*time.Second, cfg.MarketData.FetchTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Ledger.LockTimeout)
	assert.True(t, cfg.QuoteCache.ServeStaleOnError)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.QuoteCache.WarmSymbols)
	assert.Equal(t, 45*time.Second, cfg.QuoteCache.WarmInterval)
	assert.Equal(t, "25000", cfg.StartingBalance().String())
	assert.True(t, cfg.Stream.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Stream.PushInterval)
	assert.Equal(t, 100, cfg.Stream.MaxSymbols)

	// defaults survive partial files
	assert.Equal(t, 3, cfg.Ledger.MaxRetries)
	assert.Equal(t, "USD", cfg.Ledger.Currency)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgresql://trader:pw@db.internal:5433/ledger?sslmode=require")
	t.Setenv("REDIS_ADDR", "cache.internal:6380")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.App.Port)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "ledger", cfg.Database.Name)
	assert.Equal(t, "trader", cfg.Database.User)
	assert.Equal(t, "require", cfg.Database.SSLMode)
	assert.Equal(t, "postgresql://trader:pw@db.internal:5433/ledger?sslmode=require", cfg.GetDatabaseURL())
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache.internal:6380", cfg.GetRedisAddr())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.App.Port = 0 }},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"postgres without host", func(c *Config) { c.Database.Driver = "postgres"; c.Database.Host = "" }},
		{"alpaca without keys", func(c *Config) { c.MarketData.Provider = "alpaca" }},
		{"sub-cent balance", func(c *Config) { c.Ledger.StartingBalance = "10.001" }},
		{"negative balance", func(c *Config) { c.Ledger.StartingBalance = "-1" }},
		{"zero lock timeout", func(c *Config) { c.Ledger.LockTimeout = 0 }},
		{"zero stream interval", func(c *Config) { c.Stream.PushInterval = 0 }},
		{"zero stream buffer", func(c *Config) { c.Stream.SendBuffer = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Database.Driver = "memory"
			cfg.Auth.JWTSecret = "s"
			cfg.MarketData.BaseURL = "http://quotes.local"
			require.NoError(t, cfg.validate())

			tt.mutate(cfg)
			assert.Error(t, cfg.validate())
		})
	}
}
