package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polysignal/config"
	"github.com/alejandrodnm/polysignal/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"LOG_LEVEL", "LOG_FORMAT", "STORE_BACKEND", "REDIS_ADDR", "KAFKA_BROKERS", "METRICS_ADDR"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(writeConfig(t, "log:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.ScanInterval())
	assert.Equal(t, 2*time.Minute, cfg.MinGap())
	assert.Equal(t, 45*time.Second, cfg.FeedTimeout())
	assert.Equal(t, 6.0, cfg.Scanner.HoursBack)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.False(t, cfg.Kafka.Enabled())

	assert.Equal(t, domain.DefaultRules().Scoring.FadeFactors, cfg.Rules().Scoring.FadeFactors)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := config.Load(writeConfig(t, "store:\n  backend: sqlite\n"))
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "redis:6379", cfg.Store.RedisAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = config.Load(writeConfig(t, "scanner: [not a map"))
	assert.Error(t, err)

	_, err = config.Load(writeConfig(t, "store:\n  backend: postgres\n"))
	assert.Error(t, err)

	_, err = config.Load(writeConfig(t, "settlement:\n  win_price: 0.5\n  loss_price: 0.6\n"))
	assert.Error(t, err)
}

func TestRules_Overrides(t *testing.T) {
	body := `
scoring:
  min_trade_usd: 25
  fade_factors: [volumeLow]
  default_event_utc: 0
wallets:
  winning_win_rate: 60
  tiers:
    - {tier: ELITE, min_win_rate: 75, min_bets: 5}
learning:
  promote_min_samples: 20
settlement:
  unknown_after_event_end_hours: 48
  settled_ttl_days: 60
`
	cfg, err := config.Load(writeConfig(t, body))
	require.NoError(t, err)
	r := cfg.Rules()

	assert.Equal(t, 25.0, r.Aggregation.MinSizeUSD)
	assert.Equal(t, []string{"volumeLow"}, r.Scoring.FadeFactors)
	assert.Equal(t, 0, r.Scoring.DefaultEventUTC)
	assert.Equal(t, 60.0, r.Wallets.WinningWinRate)
	require.Len(t, r.Wallets.Tiers, 1)
	assert.Equal(t, domain.TierElite, r.Wallets.Tiers[0].Tier)
	assert.Equal(t, 20, r.Learning.PromoteMinSamples)
	assert.Equal(t, 48*time.Hour, r.Settlement.UnknownAfterEventEnd)
	assert.Equal(t, 60*24*time.Hour, r.Settlement.SettledTTL)
	// Lo no configurado mantiene el valor por defecto
	assert.Equal(t, 12*time.Hour, r.Settlement.UnknownAfterQuiet)
}

func TestLoad_ShippedConfig(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load("config.yaml")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Len(t, cfg.Rules().Wallets.Tiers, 5)
}
