package regime

import (
	"errors"
	"fmt"
)

// Weights blend the abnormal-probability components.
type Weights struct {
	HMM        float64 `json:"hmm" yaml:"hmm"`
	Threshold  float64 `json:"threshold" yaml:"threshold"`
	Classifier float64 `json:"classifier" yaml:"classifier"`
	Sentiment  float64 `json:"sentiment" yaml:"sentiment"`
}

// Config holds every classification threshold.
type Config struct {
	// Indicator windows
	ADXPeriod         int     `json:"adx_period" yaml:"adx_period"`                 // 14
	RSIPeriod         int     `json:"rsi_period" yaml:"rsi_period"`                 // 14
	ATRPeriod         int     `json:"atr_period" yaml:"atr_period"`                 // 14
	BandPeriod        int     `json:"band_period" yaml:"band_period"`               // 20
	BandK             float64 `json:"band_k" yaml:"band_k"`                         // 2
	BandAvgWindow     int     `json:"band_avg_window" yaml:"band_avg_window"`       // 50
	VolWindow         int     `json:"vol_window" yaml:"vol_window"`                 // 20
	VolLookback       int     `json:"vol_lookback" yaml:"vol_lookback"`             // 252
	PeriodsPerYear    float64 `json:"periods_per_year" yaml:"periods_per_year"`     // 252
	CorrelationWindow int     `json:"correlation_window" yaml:"correlation_window"` // 20

	// Threshold rules
	ADXRangeMax   float64 `json:"adx_range_max" yaml:"adx_range_max"` // 22
	ADXTrendMin   float64 `json:"adx_trend_min" yaml:"adx_trend_min"` // 27
	RSIOversold   float64 `json:"rsi_oversold" yaml:"rsi_oversold"`
	RSIOverbought float64 `json:"rsi_overbought" yaml:"rsi_overbought"`

	// Chaos triggers
	VolSpikePercentile float64 `json:"vol_spike_percentile" yaml:"vol_spike_percentile"`
	CorrelationSpike   float64 `json:"correlation_spike" yaml:"correlation_spike"`
	ADXSpike           float64 `json:"adx_spike" yaml:"adx_spike"`
	BandwidthExpansion float64 `json:"bandwidth_expansion" yaml:"bandwidth_expansion"`
	ChaosConfluence    int     `json:"chaos_confluence" yaml:"chaos_confluence"`     // 4 (3 in some deployments)
	CautionConfluence  int     `json:"caution_confluence" yaml:"caution_confluence"` // 2

	// Directional-change events and the two-state model
	DCThreshold      float64 `json:"dc_threshold" yaml:"dc_threshold"` // fraction, 0.01 = 1%
	HMMWindow        int     `json:"hmm_window" yaml:"hmm_window"`
	HMMMinEvents     int     `json:"hmm_min_events" yaml:"hmm_min_events"`
	HMMIterations    int     `json:"hmm_iterations" yaml:"hmm_iterations"`
	AlarmProbability float64 `json:"alarm_probability" yaml:"alarm_probability"` // 0.7
	AlarmEvents      int     `json:"alarm_events" yaml:"alarm_events"`           // 3

	// Sentiment
	SentimentWindow int     `json:"sentiment_window" yaml:"sentiment_window"`
	SentimentVeto   float64 `json:"sentiment_veto" yaml:"sentiment_veto"`

	// Trained classifier
	ModelPath           string  `json:"model_path,omitempty" yaml:"model_path,omitempty"`
	OverrideProbability float64 `json:"override_probability" yaml:"override_probability"` // 0.7

	Weights Weights `json:"weights" yaml:"weights"`

	// Event blackout
	EventDates   []string `json:"event_dates,omitempty" yaml:"event_dates,omitempty"` // YYYY-MM-DD
	BlackoutDays int      `json:"blackout_days" yaml:"blackout_days"`

	// Option-chain metrics
	SkewWingPct float64 `json:"skew_wing_pct" yaml:"skew_wing_pct"`
}

func DefaultConfig() Config {
	return Config{
		ADXPeriod:         14,
		RSIPeriod:         14,
		ATRPeriod:         14,
		BandPeriod:        20,
		BandK:             2,
		BandAvgWindow:     50,
		VolWindow:         20,
		VolLookback:       252,
		PeriodsPerYear:    252,
		CorrelationWindow: 20,

		ADXRangeMax:   22,
		ADXTrendMin:   27,
		RSIOversold:   30,
		RSIOverbought: 70,

		VolSpikePercentile: 90,
		CorrelationSpike:   0.9,
		ADXSpike:           45,
		BandwidthExpansion: 1.8,
		ChaosConfluence:    4,
		CautionConfluence:  2,

		DCThreshold:      0.01,
		HMMWindow:        60,
		HMMMinEvents:     10,
		HMMIterations:    50,
		AlarmProbability: 0.7,
		AlarmEvents:      3,

		SentimentWindow: 20,
		SentimentVeto:   -0.5,

		OverrideProbability: 0.7,

		Weights: Weights{HMM: 0.5, Threshold: 0.2, Classifier: 0.2, Sentiment: 0.1},

		BlackoutDays: 1,
		SkewWingPct:  0.05,
	}
}

// MinBars is the history needed before every indicator is ready.
func (c Config) MinBars() int {
	n := 2*c.ADXPeriod + 1
	for _, m := range []int{c.RSIPeriod + 1, c.ATRPeriod + 1, c.BandPeriod, c.VolWindow + 2} {
		if m > n {
			n = m
		}
	}
	return n
}

func (c Config) Validate() error {
	var errs []error
	positive := func(key string, v float64) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("regime.%s must be positive", key))
		}
	}
	positive("adx_period", float64(c.ADXPeriod))
	positive("rsi_period", float64(c.RSIPeriod))
	positive("atr_period", float64(c.ATRPeriod))
	positive("band_period", float64(c.BandPeriod))
	positive("band_k", c.BandK)
	positive("vol_window", float64(c.VolWindow))
	positive("periods_per_year", c.PeriodsPerYear)
	positive("adx_range_max", c.ADXRangeMax)
	positive("adx_trend_min", c.ADXTrendMin)
	positive("chaos_confluence", float64(c.ChaosConfluence))
	positive("caution_confluence", float64(c.CautionConfluence))
	positive("dc_threshold", c.DCThreshold)
	positive("hmm_window", float64(c.HMMWindow))
	positive("hmm_min_events", float64(c.HMMMinEvents))
	positive("alarm_events", float64(c.AlarmEvents))
	positive("sentiment_window", float64(c.SentimentWindow))

	if c.ADXTrendMin < c.ADXRangeMax {
		errs = append(errs, fmt.Errorf("regime.adx_trend_min %.1f below adx_range_max %.1f", c.ADXTrendMin, c.ADXRangeMax))
	}
	if c.CautionConfluence > c.ChaosConfluence {
		errs = append(errs, fmt.Errorf("regime.caution_confluence %d above chaos_confluence %d", c.CautionConfluence, c.ChaosConfluence))
	}
	if c.ChaosConfluence > 4 {
		errs = append(errs, fmt.Errorf("regime.chaos_confluence %d exceeds the 4 available triggers", c.ChaosConfluence))
	}
	if c.RSIOversold >= c.RSIOverbought {
		errs = append(errs, errors.New("regime.rsi_oversold must be below rsi_overbought"))
	}
	if c.AlarmProbability <= 0 || c.AlarmProbability > 1 {
		errs = append(errs, errors.New("regime.alarm_probability must be in (0,1]"))
	}
	if c.OverrideProbability <= 0 || c.OverrideProbability > 1 {
		errs = append(errs, errors.New("regime.override_probability must be in (0,1]"))
	}
	w := c.Weights
	if w.HMM < 0 || w.Threshold < 0 || w.Classifier < 0 || w.Sentiment < 0 || w.HMM+w.Threshold+w.Classifier+w.Sentiment == 0 {
		errs = append(errs, errors.New("regime.weights must be non-negative and not all zero"))
	}
	return errors.Join(errs...)
}
