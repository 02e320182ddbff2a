package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
exchange:
  name: paper
strategy:
  symbol: SOL/USD
  base_currency: SOL
  timeframe: 1h
trade:
  stop_loss_pct: 0.03
  risk_reward_ratio: 2
  order_timeout: 30s
risk:
  max_daily_loss: 50
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "SOL/USD", cfg.Strategy.Symbol)
	assert.Equal(t, "SOL", cfg.Strategy.BaseCurrency)
	assert.Equal(t, "USD", cfg.Strategy.QuoteCurrency)
	assert.Equal(t, time.Hour, cfg.Strategy.Timeframe)
	assert.Equal(t, 0.03, cfg.Trade.StopLossPct)
	assert.Equal(t, 2.0, cfg.Trade.RiskRewardRatio)
	assert.Equal(t, 30*time.Second, cfg.Trade.OrderTimeout)
	assert.Equal(t, 2*time.Second, cfg.Trade.PollInterval)
	assert.Equal(t, 50.0, cfg.Risk.MaxDailyLoss)
	assert.Equal(t, 10.0, cfg.Risk.MinBalance)
}

func TestLoad_KrakenSecretsFromEnv(t *testing.T) {
	t.Setenv("KRAKEN_API_KEY", "key")
	t.Setenv("KRAKEN_API_SECRET", "c2VjcmV0")
	path := writeConfig(t, "exchange:\n  name: kraken\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "key", cfg.Exchange.APIKey)
	assert.Equal(t, "c2VjcmV0", cfg.Exchange.APISecret)
}

func TestLoad_KrakenWithoutSecretsFails(t *testing.T) {
	t.Setenv("KRAKEN_API_KEY", "")
	t.Setenv("KRAKEN_API_SECRET", "")
	path := writeConfig(t, "exchange:\n  name: kraken\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults on paper", func(c *Config) {}, ""},
		{"empty symbol", func(c *Config) { c.Strategy.Symbol = "" }, "symbol"},
		{"stop loss out of range", func(c *Config) { c.Trade.StopLossPct = 1.5 }, "stop_loss_pct"},
		{"adx thresholds inverted", func(c *Config) { c.Strategy.ADXLow = 50 }, "adx_low"},
		{"unknown size unit", func(c *Config) { c.Trade.SizeUnit = "lots" }, "size_unit"},
		{"unknown exit mode", func(c *Config) { c.Trade.ExitMode = "magic" }, "exit_mode"},
		{"lead longer than timeframe", func(c *Config) { c.Schedule.Lead = 5 * time.Hour }, "lead"},
		{"bad timezone", func(c *Config) { c.Risk.Timezone = "Mars/Olympus" }, "timezone"},
		{"unknown storage", func(c *Config) { c.Storage.Driver = "mongo" }, "storage"},
		{"timeframe kraken does not serve", func(c *Config) { c.Strategy.Timeframe = 2 * time.Hour }, "timeframe"},
		{"weekly timeframe", func(c *Config) { c.Strategy.Timeframe = 7 * 24 * time.Hour }, ""},
		{"short on kraken spot", func(c *Config) {
			c.Exchange.Name = "kraken"
			c.Exchange.APIKey, c.Exchange.APISecret = "key", "c2VjcmV0"
			c.Trade.AllowShort = true
		}, "allow_short"},
		{"short on paper", func(c *Config) { c.Trade.AllowShort = true }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Exchange.Name = "paper"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
