package strategy

import (
	"errors"
	"fmt"
	"time"
)

// FractionRange interpolates a target or stop fraction between Low (volatility
// percentile 0) and High (percentile 100).
type FractionRange struct {
	Low   float64 `json:"low" yaml:"low"`
	High  float64 `json:"high" yaml:"high"`
	Basis Basis   `json:"basis" yaml:"basis"`
}

func (r FractionRange) At(volPercentile float64) float64 {
	v := volPercentile / 100
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return r.Low + (r.High-r.Low)*v
}

type Config struct {
	Multiplier float64 `json:"multiplier" yaml:"multiplier"` // 100 shares per contract
	Rate       float64 `json:"rate" yaml:"rate"`
	TargetDTE  int     `json:"target_dte" yaml:"target_dte"`

	// Structure geometry
	CondorShortDelta float64 `json:"condor_short_delta" yaml:"condor_short_delta"`
	WingWidth        float64 `json:"wing_width" yaml:"wing_width"`
	ButterflyWing    float64 `json:"butterfly_wing" yaml:"butterfly_wing"`
	DebitLongDelta   float64 `json:"debit_long_delta" yaml:"debit_long_delta"`
	CreditShortDelta float64 `json:"credit_short_delta" yaml:"credit_short_delta"`
	VerticalWidth    float64 `json:"vertical_width" yaml:"vertical_width"`

	// Liquidity and skew checks
	MaxRelSpread    float64 `json:"max_rel_spread" yaml:"max_rel_spread"`
	MaxAbsSpread    float64 `json:"max_abs_spread" yaml:"max_abs_spread"`
	MinOpenInterest float64 `json:"min_open_interest" yaml:"min_open_interest"`
	MaxShortSkew    float64 `json:"max_short_skew" yaml:"max_short_skew"`

	// Short-volatility gate
	ShortVolMaxAbnormal float64 `json:"short_vol_max_abnormal" yaml:"short_vol_max_abnormal"`
	CautionConfluence   int     `json:"caution_confluence" yaml:"caution_confluence"`

	ShortVolTarget    FractionRange `json:"short_vol_target" yaml:"short_vol_target"`
	ShortVolStop      FractionRange `json:"short_vol_stop" yaml:"short_vol_stop"`
	DirectionalTarget FractionRange `json:"directional_target" yaml:"directional_target"`
	DirectionalStop   FractionRange `json:"directional_stop" yaml:"directional_stop"`

	// Entry window, "HH:MM" in EntryLocation. Empty start and end disables it.
	EntryStart    string `json:"entry_start,omitempty" yaml:"entry_start,omitempty"`
	EntryEnd      string `json:"entry_end,omitempty" yaml:"entry_end,omitempty"`
	EntryLocation string `json:"entry_location,omitempty" yaml:"entry_location,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Multiplier: 100,
		Rate:       0.03,
		TargetDTE:  45,

		CondorShortDelta: 0.16,
		WingWidth:        5,
		ButterflyWing:    10,
		DebitLongDelta:   0.50,
		CreditShortDelta: 0.30,
		VerticalWidth:    5,

		MaxRelSpread:    0.10,
		MaxAbsSpread:    0.05,
		MinOpenInterest: 100,
		MaxShortSkew:    0.05,

		ShortVolMaxAbnormal: 0.3,
		CautionConfluence:   2,

		ShortVolTarget:    FractionRange{Low: 0.50, High: 0.35, Basis: BasisMaxProfit},
		ShortVolStop:      FractionRange{Low: 0.50, High: 0.35, Basis: BasisMargin},
		DirectionalTarget: FractionRange{Low: 0.80, High: 0.60, Basis: BasisMaxProfit},
		DirectionalStop:   FractionRange{Low: 0.50, High: 0.40, Basis: BasisMargin},
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Multiplier <= 0 {
		errs = append(errs, errors.New("strategy.multiplier must be positive"))
	}
	if c.TargetDTE <= 0 {
		errs = append(errs, errors.New("strategy.target_dte must be positive"))
	}
	for _, d := range []struct {
		name string
		v    float64
	}{
		{"condor_short_delta", c.CondorShortDelta},
		{"debit_long_delta", c.DebitLongDelta},
		{"credit_short_delta", c.CreditShortDelta},
	} {
		if d.v <= 0 || d.v >= 1 {
			errs = append(errs, fmt.Errorf("strategy.%s must be in (0,1)", d.name))
		}
	}
	if c.WingWidth <= 0 || c.ButterflyWing <= 0 || c.VerticalWidth <= 0 {
		errs = append(errs, errors.New("strategy wing_width, butterfly_wing and vertical_width must be positive"))
	}
	if c.CautionConfluence <= 0 {
		errs = append(errs, errors.New("strategy.caution_confluence must be positive"))
	}
	for _, fr := range []struct {
		name string
		r    FractionRange
	}{
		{"short_vol_target", c.ShortVolTarget},
		{"short_vol_stop", c.ShortVolStop},
		{"directional_target", c.DirectionalTarget},
		{"directional_stop", c.DirectionalStop},
	} {
		name, r := fr.name, fr.r
		if r.Low <= 0 || r.High <= 0 {
			errs = append(errs, fmt.Errorf("strategy.%s fractions must be positive", name))
		}
		if r.Basis != BasisMargin && r.Basis != BasisMaxProfit {
			errs = append(errs, fmt.Errorf("strategy.%s.basis must be margin or max_profit", name))
		}
	}
	if _, _, _, err := c.entryWindow(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// entryWindow returns the window in minutes after midnight.
func (c Config) entryWindow() (start, end int, loc *time.Location, err error) {
	if c.EntryStart == "" && c.EntryEnd == "" {
		return 0, 24 * 60, time.UTC, nil
	}
	loc = time.UTC
	if c.EntryLocation != "" {
		if loc, err = time.LoadLocation(c.EntryLocation); err != nil {
			return 0, 0, nil, fmt.Errorf("strategy.entry_location: %w", err)
		}
	}
	parse := func(key, s string, def int) (int, error) {
		if s == "" {
			return def, nil
		}
		t, err := time.Parse("15:04", s)
		if err != nil {
			return 0, fmt.Errorf("strategy.%s: %w", key, err)
		}
		return t.Hour()*60 + t.Minute(), nil
	}
	if start, err = parse("entry_start", c.EntryStart, 0); err != nil {
		return 0, 0, nil, err
	}
	if end, err = parse("entry_end", c.EntryEnd, 24*60); err != nil {
		return 0, 0, nil, err
	}
	return start, end, loc, nil
}

// InEntryWindow reports whether t is inside the configured entry window.
func (c Config) InEntryWindow(t time.Time) bool {
	start, end, loc, err := c.entryWindow()
	if err != nil {
		return false
	}
	lt := t.In(loc)
	m := lt.Hour()*60 + lt.Minute()
	return m >= start && m <= end
}
