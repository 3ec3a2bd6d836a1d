// Package config aggregates every tunable of the decision engine into one
// document that can be loaded from YAML or JSON and overridden from the
// environment.
package config

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/regimetrader/execution"
	"github.com/rustyeddy/regimetrader/orchestrator"
	"github.com/rustyeddy/regimetrader/pricing"
	"github.com/rustyeddy/regimetrader/regime"
	"github.com/rustyeddy/regimetrader/risk"
	"github.com/rustyeddy/regimetrader/sim"
	"github.com/rustyeddy/regimetrader/strategy"
)

// Config represents the complete engine configuration
type Config struct {
	Log       LogConfig           `json:"log" yaml:"log"`
	Regime    regime.Config       `json:"regime" yaml:"regime"`
	Strategy  strategy.Config     `json:"strategy" yaml:"strategy"`
	Risk      risk.Policy         `json:"risk" yaml:"risk"`
	Execution execution.Config    `json:"execution" yaml:"execution"`
	Loop      orchestrator.Config `json:"loop" yaml:"loop"`
	Backtest  BacktestConfig      `json:"backtest" yaml:"backtest"`
	Journal   JournalConfig       `json:"journal" yaml:"journal"`
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // trace..panic
	Format string `json:"format" yaml:"format"` // "console" or "json"
}

// BacktestConfig contains simulation parameters
type BacktestConfig struct {
	Capital   float64       `json:"capital" yaml:"capital"`
	VolWindow int           `json:"vol_window" yaml:"vol_window"` // realized vol window for chain pricing
	Parallel  int           `json:"parallel" yaml:"parallel"`     // concurrent sweep runs
	Cost      sim.CostModel `json:"cost" yaml:"cost"`
	Chain     ChainConfig   `json:"chain" yaml:"chain"`
}

// ChainConfig shapes the synthetic option chains used in simulation.
type ChainConfig struct {
	StrikeStep   float64 `json:"strike_step" yaml:"strike_step"`
	StrikeCount  int     `json:"strike_count" yaml:"strike_count"`
	MinVol       float64 `json:"min_vol" yaml:"min_vol"`
	SkewSlope    float64 `json:"skew_slope" yaml:"skew_slope"`
	SpreadFrac   float64 `json:"spread_frac" yaml:"spread_frac"`
	MinSpread    float64 `json:"min_spread" yaml:"min_spread"`
	OpenInterest float64 `json:"open_interest" yaml:"open_interest"`
	MinDTE       int     `json:"min_dte" yaml:"min_dte"`
	MaxDTE       int     `json:"max_dte" yaml:"max_dte"`
}

// JournalConfig contains journaling parameters. Empty paths disable the
// corresponding sink.
type JournalConfig struct {
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	TradesCSV  string `json:"trades_csv,omitempty" yaml:"trades_csv,omitempty"`
	EquityCSV  string `json:"equity_csv,omitempty" yaml:"equity_csv,omitempty"`
	RegimesCSV string `json:"regimes_csv,omitempty" yaml:"regimes_csv,omitempty"`
	OrgDir     string `json:"org_dir,omitempty" yaml:"org_dir,omitempty"`
}

// Default returns the shipped configuration. Every value passes Validate.
func Default() Config {
	def := pricing.DefaultChainParams("SPY")
	return Config{
		Log:       LogConfig{Level: "info", Format: "console"},
		Regime:    regime.DefaultConfig(),
		Strategy:  strategy.DefaultConfig(),
		Risk:      risk.DefaultPolicy(),
		Execution: execution.DefaultConfig(),
		Loop:      orchestrator.DefaultConfig(),
		Backtest: BacktestConfig{
			Capital:   100000,
			VolWindow: 20,
			Parallel:  4,
			Cost:      sim.DefaultCostModel(),
			Chain: ChainConfig{
				StrikeStep:   def.StrikeStep,
				StrikeCount:  def.StrikeCount,
				MinVol:       def.MinVol,
				SkewSlope:    def.SkewSlope,
				SpreadFrac:   def.SpreadFrac,
				MinSpread:    def.MinSpread,
				OpenInterest: def.OpenInterest,
				MinDTE:       14,
				MaxDTE:       70,
			},
		},
	}
}

// ChainParams builds synthetic chain parameters for underlying. The risk
// free rate follows the strategy config so selector and chain agree.
func (c Config) ChainParams(underlying string) pricing.ChainParams {
	ch := c.Backtest.Chain
	return pricing.ChainParams{
		Underlying:   underlying,
		StrikeStep:   ch.StrikeStep,
		StrikeCount:  ch.StrikeCount,
		Rate:         c.Strategy.Rate,
		MinVol:       ch.MinVol,
		SkewSlope:    ch.SkewSlope,
		SpreadFrac:   ch.SpreadFrac,
		MinSpread:    ch.MinSpread,
		OpenInterest: ch.OpenInterest,
	}
}

// Validate checks every section and the few values that must agree across
// sections. The joined error names each offending key.
func (c Config) Validate() error {
	errs := []error{
		c.Log.validate(),
		c.Regime.Validate(),
		c.Strategy.Validate(),
		c.Risk.Validate(),
		c.Execution.Validate(),
		c.Loop.Validate(),
		c.Backtest.validate(),
	}

	if c.Strategy.CautionConfluence != c.Regime.CautionConfluence {
		errs = append(errs, fmt.Errorf("strategy.caution_confluence %d differs from regime.caution_confluence %d",
			c.Strategy.CautionConfluence, c.Regime.CautionConfluence))
	}
	if c.Strategy.Multiplier != c.Backtest.Cost.Multiplier {
		errs = append(errs, fmt.Errorf("backtest.cost.multiplier %.0f differs from strategy.multiplier %.0f",
			c.Backtest.Cost.Multiplier, c.Strategy.Multiplier))
	}
	return errors.Join(errs...)
}

func (l LogConfig) validate() error {
	switch l.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format %q: want console or json", l.Format)
	}
	switch l.Level {
	case "", "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
		return nil
	}
	return fmt.Errorf("log.level %q is not a zerolog level", l.Level)
}

func (b BacktestConfig) validate() error {
	var errs []error
	if b.Capital <= 0 {
		errs = append(errs, errors.New("backtest.capital must be positive"))
	}
	if b.VolWindow < 2 {
		errs = append(errs, errors.New("backtest.vol_window must be at least 2"))
	}
	if b.Parallel < 1 {
		errs = append(errs, errors.New("backtest.parallel must be at least 1"))
	}
	if err := b.Cost.Validate(); err != nil {
		errs = append(errs, err)
	}
	ch := b.Chain
	if ch.StrikeStep <= 0 {
		errs = append(errs, errors.New("backtest.chain.strike_step must be positive"))
	}
	if ch.StrikeCount < 1 {
		errs = append(errs, errors.New("backtest.chain.strike_count must be at least 1"))
	}
	if ch.MinVol <= 0 {
		errs = append(errs, errors.New("backtest.chain.min_vol must be positive"))
	}
	if ch.SpreadFrac < 0 || ch.MinSpread < 0 {
		errs = append(errs, errors.New("backtest.chain spreads must not be negative"))
	}
	if ch.MinDTE < 1 || ch.MaxDTE < ch.MinDTE {
		errs = append(errs, fmt.Errorf("backtest.chain.min_dte %d / max_dte %d: want 1 <= min <= max", ch.MinDTE, ch.MaxDTE))
	}
	return errors.Join(errs...)
}
