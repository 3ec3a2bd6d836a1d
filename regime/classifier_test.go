package regime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/regimetrader/market"
)

func TestClassifyFlatSeriesIsRangeBound(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	bars := flatBars(60, 100)

	for i := 30; i <= len(bars); i++ {
		s := c.Classify(bars[:i], market.ChainMetrics{})
		require.Equal(t, RangeBound, s.Label(), "bar %d", i)
		assert.False(t, s.Alarm())
		assert.False(t, s.Degraded())
		assert.Zero(t, s.DCEvents())
		assert.Zero(t, s.Confluence())
		assert.InDelta(t, 0.0, s.AbnormalProb(), 1e-12)
	}

	s := c.Classify(bars, market.ChainMetrics{})
	assert.InDelta(t, 0.0, s.MetricOr(MetricADX, -1), 1e-12)
	assert.InDelta(t, 50.0, s.MetricOr(MetricRSI, -1), 1e-12)
	assert.InDelta(t, 1.0, s.MetricOr(MetricBBWRatio, -1), 1e-12)
	assert.True(t, s.Time().Equal(bars[59].Time))
}

func TestClassifyInsufficientHistoryDegrades(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	bars := flatBars(60, 100)

	s := c.Classify(bars[:10], market.ChainMetrics{})
	assert.Equal(t, Unknown, s.Label())
	assert.True(t, s.Degraded())

	good := c.Classify(bars, market.ChainMetrics{})
	require.Equal(t, RangeBound, good.Label())

	later := bars[59].Time.Add(24 * time.Hour)
	s = c.Classify(market.Bars{{Time: later, Close: 100}}, market.ChainMetrics{})
	assert.Equal(t, RangeBound, s.Label())
	assert.True(t, s.Degraded())
	assert.True(t, s.Time().Equal(later))

	last, ok := c.Last()
	require.True(t, ok)
	assert.False(t, last.Degraded())
}

func TestClassifyConfluence(t *testing.T) {
	spike := market.ChainMetrics{
		IVPercentile:    97,
		HasIVPercentile: true,
		Correlations:    map[string]float64{"QQQ": 0.95, "IWM": -0.2},
	}

	t.Run("two triggers is caution", func(t *testing.T) {
		s := NewClassifier(DefaultConfig()).Classify(flatBars(60, 100), spike)
		assert.Equal(t, Caution, s.Label())
		assert.Equal(t, 2, s.Confluence())
		assert.ElementsMatch(t, []string{TriggerVolSpike, TriggerCorrSpike}, s.Triggers())
		assert.InDelta(t, 0.95, s.MaxAbsCorrelation(), 1e-12)
	})

	t.Run("chaos threshold is configurable", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ChaosConfluence = 2
		s := NewClassifier(cfg).Classify(flatBars(60, 100), spike)
		assert.Equal(t, Chaos, s.Label())
		assert.True(t, s.Label().Halting())
	})
}

func TestClassifySentimentVeto(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SentimentVeto = 0
	s := NewClassifier(cfg).Classify(flatBars(60, 100), market.ChainMetrics{})
	assert.Equal(t, Caution, s.Label())
}

func TestClassifySentimentVetoOutranksModel(t *testing.T) {
	// favours RANGE_BOUND with p ~ 0.99 whatever the inputs
	m := &Model{
		Labels:   []Label{RangeBound, Trend},
		Features: []string{MetricADX},
		Mean:     []float64{0},
		Scale:    []float64{1},
		Weights:  [][]float64{{0}, {0}},
		Bias:     []float64{5, 0},
	}
	require.NoError(t, m.Validate())
	bars := flatBars(60, 100)

	s := NewClassifier(DefaultConfig(), WithModel(m)).Classify(bars, market.ChainMetrics{})
	assert.Equal(t, RangeBound, s.Label())

	cfg := DefaultConfig()
	cfg.SentimentVeto = 0
	s = NewClassifier(cfg, WithModel(m)).Classify(bars, market.ChainMetrics{})
	assert.Equal(t, Caution, s.Label())
}

func TestClassifyModelOverride(t *testing.T) {
	m, err := Fit(adxSamples(), FitOptions{Features: []string{MetricADX}})
	require.NoError(t, err)

	s := NewClassifier(DefaultConfig(), WithModel(m)).Classify(flatBars(60, 100), market.ChainMetrics{})
	assert.Equal(t, Trend, s.Label())
}

func TestClassifyAlarmForcesAbnormal(t *testing.T) {
	bars := zigzag()
	s := NewClassifier(DefaultConfig()).Classify(bars, market.ChainMetrics{})

	require.True(t, s.Alarm())
	assert.Equal(t, Abnormal, s.Label())
	assert.GreaterOrEqual(t, s.AbnormalProb(), 0.7)
	assert.GreaterOrEqual(t, s.DCEvents(), 10)

	post := s.Posteriors()
	require.GreaterOrEqual(t, len(post), 3)
	for _, p := range post[len(post)-3:] {
		assert.GreaterOrEqual(t, p, 0.7)
	}
}

func TestClassifyEventBlackout(t *testing.T) {
	bars := flatBars(60, 100)
	cfg := DefaultConfig()
	cfg.EventDates = []string{bars[59].Time.Format("2006-01-02")}
	cal, err := cfg.Calendar()
	require.NoError(t, err)

	s := NewClassifier(cfg, WithCalendar(cal)).Classify(bars, market.ChainMetrics{})
	assert.True(t, s.Blackout())
	assert.Equal(t, RangeBound, s.Label())
}

func TestSnapshotIsImmutable(t *testing.T) {
	metrics := map[string]float64{MetricADX: 10}
	s := New(Params{Label: RangeBound, Metrics: metrics, AbnormalProb: 1.7})
	metrics[MetricADX] = 99

	got := s.Metrics()
	got[MetricADX] = 55
	v, ok := s.Metric(MetricADX)
	require.True(t, ok)
	assert.Equal(t, 10.0, v)
	assert.Equal(t, 1.0, s.AbnormalProb())
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name string
		mut  func(*Config)
		key  string
	}{
		{"zero chaos confluence", func(c *Config) { c.ChaosConfluence = 0 }, "chaos_confluence"},
		{"zero adx range", func(c *Config) { c.ADXRangeMax = 0 }, "adx_range_max"},
		{"zero adx trend", func(c *Config) { c.ADXTrendMin = 0 }, "adx_trend_min"},
		{"inverted adx bounds", func(c *Config) { c.ADXTrendMin = 20 }, "adx_trend_min"},
		{"caution above chaos", func(c *Config) { c.CautionConfluence = 4; c.ChaosConfluence = 3 }, "caution_confluence"},
		{"alarm probability", func(c *Config) { c.AlarmProbability = 1.5 }, "alarm_probability"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mut(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
