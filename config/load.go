package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadFromFile reads path (YAML first, JSON fallback) over Default, applies
// .env and TRADER_* environment overrides, then validates. An empty path
// loads the defaults plus overrides.
func LoadFromFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := parse(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	// .env is optional
	_ = godotenv.Load()
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes data over Default without touching the environment.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := parse(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parse(data []byte, cfg *Config) error {
	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	return nil
}

// SaveToFile writes the configuration as YAML for .yaml/.yml paths and as
// indented JSON otherwise.
func (c Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Log.Level, "TRADER_LOG_LEVEL")
	setStr(&cfg.Log.Format, "TRADER_LOG_FORMAT")

	setStr(&cfg.Loop.Underlying, "TRADER_UNDERLYING")
	setStrings(&cfg.Loop.Companions, "TRADER_COMPANIONS")
	setDuration(&cfg.Loop.Interval, "TRADER_INTERVAL")
	setStr(&cfg.Loop.Timezone, "TRADER_TIMEZONE")

	setStr(&cfg.Regime.ModelPath, "TRADER_MODEL_PATH")
	setInt(&cfg.Regime.ChaosConfluence, "TRADER_CHAOS_CONFLUENCE")
	setFloat(&cfg.Regime.ADXRangeMax, "TRADER_ADX_RANGE_MAX")
	setFloat(&cfg.Regime.ADXTrendMin, "TRADER_ADX_TREND_MIN")
	setFloat(&cfg.Regime.DCThreshold, "TRADER_DC_THRESHOLD")
	setStrings(&cfg.Regime.EventDates, "TRADER_EVENT_DATES")

	setInt(&cfg.Risk.BaseLots, "TRADER_BASE_LOTS")
	setFloat(&cfg.Risk.KellyFraction, "TRADER_KELLY_FRACTION")

	setFloat(&cfg.Backtest.Capital, "TRADER_CAPITAL")
	setInt(&cfg.Backtest.Parallel, "TRADER_PARALLEL")

	setStr(&cfg.Journal.DBPath, "TRADER_JOURNAL_DB")
	setStr(&cfg.Journal.TradesCSV, "TRADER_TRADES_CSV")
	setStr(&cfg.Journal.EquityCSV, "TRADER_EQUITY_CSV")
	setStr(&cfg.Journal.RegimesCSV, "TRADER_REGIMES_CSV")
	setStr(&cfg.Journal.OrgDir, "TRADER_ORG_DIR")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setStrings(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}
