package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	t.Parallel()
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4, cfg.Regime.ChaosConfluence)
	assert.Equal(t, 22.0, cfg.Regime.ADXRangeMax)
	assert.Equal(t, 27.0, cfg.Regime.ADXTrendMin)
}

func TestValidateNamesKeys(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"chaos confluence required", func(c *Config) { c.Regime.ChaosConfluence = 0 }, "regime.chaos_confluence"},
		{"adx range required", func(c *Config) { c.Regime.ADXRangeMax = 0 }, "regime.adx_range_max"},
		{"adx trend required", func(c *Config) { c.Regime.ADXTrendMin = 0 }, "regime.adx_trend_min"},
		{"caution mismatch", func(c *Config) { c.Strategy.CautionConfluence = 3 }, "strategy.caution_confluence"},
		{"multiplier mismatch", func(c *Config) { c.Backtest.Cost.Multiplier = 10 }, "backtest.cost.multiplier"},
		{"capital", func(c *Config) { c.Backtest.Capital = 0 }, "backtest.capital"},
		{"parallel", func(c *Config) { c.Backtest.Parallel = 0 }, "backtest.parallel"},
		{"dte window", func(c *Config) { c.Backtest.Chain.MaxDTE = 5 }, "backtest.chain.min_dte"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"slippage", func(c *Config) { c.Backtest.Cost.Slippage = 1 }, "sim.slippage"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseMergesOverDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(`
regime:
  chaos_confluence: 3
loop:
  underlying: QQQ
  interval: 30s
risk:
  base_lots: 1
`))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Regime.ChaosConfluence)
	assert.Equal(t, "QQQ", cfg.Loop.Underlying)
	assert.Equal(t, 30*time.Second, cfg.Loop.Interval)
	assert.Equal(t, 1, cfg.Risk.BaseLots)

	def := Default()
	assert.Equal(t, def.Regime.ADXRangeMax, cfg.Regime.ADXRangeMax)
	assert.Equal(t, def.Risk.DrawdownSteps, cfg.Risk.DrawdownSteps)
	assert.Equal(t, def.Backtest, cfg.Backtest)
}

func TestParseJSONDurations(t *testing.T) {
	t.Parallel()
	// integer nanoseconds fail the YAML pass, so this exercises the JSON path
	cfg, err := Parse([]byte(`{
  "execution": {"fill_timeout": "45s", "poll_interval": 500000000},
  "loop": {"interval": "1m30s", "breaker_cooldown": 60000000000}
}`))
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Execution.FillTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Execution.PollInterval)
	assert.Equal(t, 90*time.Second, cfg.Loop.Interval)
	assert.Equal(t, time.Minute, cfg.Loop.BreakerCooldown)

	def := Default()
	assert.Equal(t, def.Execution.ExitDTE, cfg.Execution.ExitDTE)
	assert.Equal(t, def.Loop.Underlying, cfg.Loop.Underlying)

	_, err = Parse([]byte(`{"execution": {"fill_timeout": 5, "poll_interval": "soon"}}`))
	require.Error(t, err)
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()
	_, err := Parse([]byte("{regime: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tried YAML and JSON")
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	orig := Default()
	orig.Loop.Underlying = "IWM"
	orig.Loop.Interval = 15 * time.Minute
	orig.Regime.EventDates = []string{"2024-06-12"}

	for _, name := range []string{"cfg.yaml", "cfg.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, orig.SaveToFile(path))

			got, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, orig, got)
		})
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("regime:\n  chaos_confluence: 9\n"), 0644))
	_, err = LoadFromFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
	assert.Contains(t, err.Error(), "chaos_confluence")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADER_UNDERLYING", "DIA")
	t.Setenv("TRADER_COMPANIONS", "TLT, GLD ,")
	t.Setenv("TRADER_INTERVAL", "1m")
	t.Setenv("TRADER_CAPITAL", "25000")
	t.Setenv("TRADER_BASE_LOTS", "not-a-number")
	t.Setenv("TRADER_LOG_FORMAT", "json")

	cfg, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, "DIA", cfg.Loop.Underlying)
	assert.Equal(t, []string{"TLT", "GLD"}, cfg.Loop.Companions)
	assert.Equal(t, time.Minute, cfg.Loop.Interval)
	assert.Equal(t, 25000.0, cfg.Backtest.Capital)
	assert.Equal(t, Default().Risk.BaseLots, cfg.Risk.BaseLots, "unparsable values are ignored")
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestChainParams(t *testing.T) {
	t.Parallel()
	cfg := Default()
	p := cfg.ChainParams("QQQ")
	assert.Equal(t, "QQQ", p.Underlying)
	assert.Equal(t, cfg.Strategy.Rate, p.Rate)
	assert.Equal(t, cfg.Backtest.Chain.StrikeStep, p.StrikeStep)
}
