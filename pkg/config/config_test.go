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

func TestLoad_AppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, "environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 15*time.Second, c.Server.ReadTimeout)
	assert.Equal(t, "sqlite", c.Database.Driver)
	assert.Equal(t, "VNINDEX", c.Regime.ProxySymbol)
	assert.InDelta(t, 0.6, c.Regime.DomesticWeight, 1e-9)
	assert.InDelta(t, -1.5, c.Regime.BearThreshold, 1e-9)
	assert.Equal(t, "v1", c.Scan.Version)
	assert.Equal(t, 200, c.Universe.TopN)
	assert.Equal(t, -1, c.Kafka.Producer.RequiredAcks)
	assert.Equal(t, uint32(3), c.Foreign.TripAfter)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, `
environment: production
scan:
  version: v2
  workers: 3
  bands:
    bear: {min: 1, max: 4}
strategies:
  swing: {stop_loss_pct: -3, ttl_days: 10, momentum_rsi: 50}
`))
	require.NoError(t, err)
	assert.Equal(t, "v2", c.Scan.Version)
	assert.Equal(t, 3, c.Scan.Workers)
	assert.Equal(t, 260, c.Scan.LookbackBars)
	assert.Equal(t, BandConfig{Min: 1, Max: 4}, c.Scan.Bands["bear"])
	assert.Equal(t, StrategyConfig{StopLossPct: -3, TTLDays: 10, MomentumRSI: 50}, c.Strategies["swing"])
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"bad environment":      "environment: moon\n",
		"unknown strategy":     "strategies:\n  daytrade: {stop_loss_pct: -1, ttl_days: 1, momentum_rsi: 50}\n",
		"positive stop loss":   "strategies:\n  swing: {stop_loss_pct: 2, ttl_days: 5, momentum_rsi: 50}\n",
		"inverted band":        "scan:\n  bands:\n    bull: {min: 9, max: 3}\n",
		"queue without redis":  "schedule:\n  use_queue: true\n",
		"kafka without broker": "kafka:\n  enabled: true\n",
		"unknown scan version": "scan:\n  version: v9\n",
		"bad timezone":         "schedule:\n  timezone: Mars/Olympus\n",
	}
	for name, body := range cases {
		body := body
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	env := map[string]string{
		"KAFKA_BROKERS":   "k1:9092, k2:9092,",
		"SYMBOLS":         "AAA,BBB",
		"PORT":            "9090",
		"REDIS_ENABLED":   "true",
		"DATABASE_DRIVER": "postgres",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"AAA", "BBB"}, c.Universe.Symbols)
	assert.Equal(t, 9090, c.Server.Port)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "postgres", c.Database.Driver)
}

func TestLoad_ShippedConfig(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.Len(t, c.Strategies, 3)
}
