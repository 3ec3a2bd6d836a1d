package risk

import (
	"errors"
	"fmt"
	"sort"
)

// Step maps a threshold to a size multiplier. A step applies once its
// threshold is reached.
type Step struct {
	Threshold  float64 `json:"threshold" yaml:"threshold"`
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
}

type Policy struct {
	// Circuit breakers, fractions of equity
	DailyLossPct          float64 `json:"daily_loss_pct" yaml:"daily_loss_pct"`                     // 0.015
	WeeklyLossPct         float64 `json:"weekly_loss_pct" yaml:"weekly_loss_pct"`                   // 0.04
	MonthlyLossPct        float64 `json:"monthly_loss_pct" yaml:"monthly_loss_pct"`                 // 0.08
	WeeklyHaltTradingDays int     `json:"weekly_halt_trading_days" yaml:"weekly_halt_trading_days"` // 3
	MonthlyHaltDays       int     `json:"monthly_halt_days" yaml:"monthly_halt_days"`               // 7 calendar days
	ConsecutiveLossLimit  int     `json:"consecutive_loss_limit" yaml:"consecutive_loss_limit"`     // 3
	PreemptiveHaltDays    int     `json:"preemptive_halt_days" yaml:"preemptive_halt_days"`         // 1 trading day
	LossStreakMultiplier  float64 `json:"loss_streak_multiplier" yaml:"loss_streak_multiplier"`     // 0.5 until a win
	AbnormalHaltAfterDays int     `json:"abnormal_halt_after_days" yaml:"abnormal_halt_after_days"` // 2
	ChaosHaltDays         int     `json:"chaos_halt_days" yaml:"chaos_halt_days"`                   // 3 trading days

	// Sizing
	BaseLots        int    `json:"base_lots" yaml:"base_lots"`
	MaxLots         int    `json:"max_lots" yaml:"max_lots"`
	DrawdownSteps   []Step `json:"drawdown_steps" yaml:"drawdown_steps"`       // drawdown fraction below HWM
	LossStreakSteps []Step `json:"loss_streak_steps" yaml:"loss_streak_steps"` // consecutive losses

	CorrelationThreshold      float64 `json:"correlation_threshold" yaml:"correlation_threshold"`
	DiversificationMultiplier float64 `json:"diversification_multiplier" yaml:"diversification_multiplier"`

	KellyFraction   float64 `json:"kelly_fraction" yaml:"kelly_fraction"`
	KellyMinTrades  int     `json:"kelly_min_trades" yaml:"kelly_min_trades"`
	KellyWindow     int     `json:"kelly_window" yaml:"kelly_window"`
	RiskPerTradePct float64 `json:"risk_per_trade_pct" yaml:"risk_per_trade_pct"` // Kelly stake that maps to 1.0

	AbnormalElevated   float64 `json:"abnormal_elevated" yaml:"abnormal_elevated"`
	AbnormalMultiplier float64 `json:"abnormal_multiplier" yaml:"abnormal_multiplier"`
	CautionMultiplier  float64 `json:"caution_multiplier" yaml:"caution_multiplier"`

	// Hard caps
	MaxPositions int     `json:"max_positions" yaml:"max_positions"`
	MaxMarginPct float64 `json:"max_margin_pct" yaml:"max_margin_pct"`
	MaxDelta     float64 `json:"max_delta" yaml:"max_delta"` // share equivalents
	MaxGamma     float64 `json:"max_gamma" yaml:"max_gamma"`
	MaxVega      float64 `json:"max_vega" yaml:"max_vega"` // dollars per vol point

	// Hedge bands, below the caps
	DeltaBand float64 `json:"delta_band" yaml:"delta_band"`
	GammaBand float64 `json:"gamma_band" yaml:"gamma_band"`
	VegaBand  float64 `json:"vega_band" yaml:"vega_band"`
}

func DefaultPolicy() Policy {
	return Policy{
		DailyLossPct:          0.015,
		WeeklyLossPct:         0.04,
		MonthlyLossPct:        0.08,
		WeeklyHaltTradingDays: 3,
		MonthlyHaltDays:       7,
		ConsecutiveLossLimit:  3,
		PreemptiveHaltDays:    1,
		LossStreakMultiplier:  0.5,
		AbnormalHaltAfterDays: 2,
		ChaosHaltDays:         3,

		BaseLots: 2,
		MaxLots:  10,
		DrawdownSteps: []Step{
			{Threshold: 0.05, Multiplier: 0.75},
			{Threshold: 0.10, Multiplier: 0.50},
			{Threshold: 0.15, Multiplier: 0.25},
			{Threshold: 0.20, Multiplier: 0},
		},
		LossStreakSteps: []Step{
			{Threshold: 2, Multiplier: 0.75},
		},

		CorrelationThreshold:      0.7,
		DiversificationMultiplier: 0.5,

		KellyFraction:   0.5,
		KellyMinTrades:  20,
		KellyWindow:     50,
		RiskPerTradePct: 0.02,

		AbnormalElevated:   0.5,
		AbnormalMultiplier: 0.3,
		CautionMultiplier:  0.5,

		MaxPositions: 5,
		MaxMarginPct: 0.50,
		MaxDelta:     500,
		MaxGamma:     100,
		MaxVega:      2000,

		DeltaBand: 250,
		GammaBand: 50,
		VegaBand:  1000,
	}
}

func (p Policy) Validate() error {
	var errs []error
	pct := func(key string, v float64) {
		if v <= 0 || v >= 1 {
			errs = append(errs, fmt.Errorf("risk.%s must be in (0,1), got %v", key, v))
		}
	}
	pct("daily_loss_pct", p.DailyLossPct)
	pct("weekly_loss_pct", p.WeeklyLossPct)
	pct("monthly_loss_pct", p.MonthlyLossPct)
	pct("max_margin_pct", p.MaxMarginPct)
	pct("kelly_fraction", p.KellyFraction)
	pct("risk_per_trade_pct", p.RiskPerTradePct)

	unit := func(key string, v float64) {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("risk.%s must be in [0,1], got %v", key, v))
		}
	}
	unit("loss_streak_multiplier", p.LossStreakMultiplier)
	unit("diversification_multiplier", p.DiversificationMultiplier)
	unit("abnormal_elevated", p.AbnormalElevated)
	unit("abnormal_multiplier", p.AbnormalMultiplier)
	unit("caution_multiplier", p.CautionMultiplier)
	unit("correlation_threshold", p.CorrelationThreshold)

	for _, d := range []struct {
		key string
		v   int
	}{
		{"weekly_halt_trading_days", p.WeeklyHaltTradingDays},
		{"monthly_halt_days", p.MonthlyHaltDays},
		{"consecutive_loss_limit", p.ConsecutiveLossLimit},
		{"preemptive_halt_days", p.PreemptiveHaltDays},
		{"abnormal_halt_after_days", p.AbnormalHaltAfterDays},
		{"chaos_halt_days", p.ChaosHaltDays},
		{"base_lots", p.BaseLots},
		{"max_positions", p.MaxPositions},
	} {
		if d.v <= 0 {
			errs = append(errs, fmt.Errorf("risk.%s must be positive", d.key))
		}
	}
	if p.MaxLots < p.BaseLots {
		errs = append(errs, errors.New("risk.max_lots must be at least base_lots"))
	}
	if p.KellyMinTrades < 2 || p.KellyWindow < p.KellyMinTrades {
		errs = append(errs, errors.New("risk.kelly_window must be at least kelly_min_trades (>= 2)"))
	}
	if p.MaxDelta <= 0 || p.MaxGamma <= 0 || p.MaxVega <= 0 {
		errs = append(errs, errors.New("risk.max_delta, max_gamma and max_vega must be positive"))
	}
	if p.DeltaBand <= 0 || p.DeltaBand > p.MaxDelta ||
		p.GammaBand <= 0 || p.GammaBand > p.MaxGamma ||
		p.VegaBand <= 0 || p.VegaBand > p.MaxVega {
		errs = append(errs, errors.New("risk hedge bands must be positive and within the caps"))
	}
	for _, s := range []struct {
		key   string
		steps []Step
	}{
		{"drawdown_steps", p.DrawdownSteps},
		{"loss_streak_steps", p.LossStreakSteps},
	} {
		if !sort.SliceIsSorted(s.steps, func(i, j int) bool { return s.steps[i].Threshold < s.steps[j].Threshold }) {
			errs = append(errs, fmt.Errorf("risk.%s thresholds must ascend", s.key))
		}
		for _, st := range s.steps {
			if st.Multiplier < 0 || st.Multiplier > 1 {
				errs = append(errs, fmt.Errorf("risk.%s multiplier %v outside [0,1]", s.key, st.Multiplier))
			}
		}
	}
	return errors.Join(errs...)
}
