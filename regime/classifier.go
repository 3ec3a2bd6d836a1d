package regime

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/regimetrader/indicators"
	"github.com/rustyeddy/regimetrader/market"
)

// Classifier turns bar history and option-chain metrics into regime
// snapshots. It remembers the last good snapshot so a cycle with too little
// history degrades instead of failing.
type Classifier struct {
	cfg      Config
	model    *Model
	calendar *market.EventCalendar
	log      zerolog.Logger

	last    Snapshot
	hasLast bool
}

type Option func(*Classifier)

// WithModel enables the trained classifier override.
func WithModel(m *Model) Option {
	return func(c *Classifier) { c.model = m }
}

func WithCalendar(cal *market.EventCalendar) Option {
	return func(c *Classifier) { c.calendar = cal }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Classifier) { c.log = l.With().Str("component", "regime").Logger() }
}

func NewClassifier(cfg Config, opts ...Option) *Classifier {
	c := &Classifier{cfg: cfg, log: zerolog.Nop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Calendar builds the event calendar from EventDates.
func (c Config) Calendar() (*market.EventCalendar, error) {
	dates := make([]time.Time, 0, len(c.EventDates))
	for _, s := range c.EventDates {
		t, err := market.ParseTime(s)
		if err != nil {
			return nil, fmt.Errorf("regime.event_dates: %w", err)
		}
		dates = append(dates, t)
	}
	return market.NewEventCalendar(dates, c.BlackoutDays), nil
}

func (c *Classifier) Config() Config { return c.cfg }

// Last returns the most recent non-degraded snapshot.
func (c *Classifier) Last() (Snapshot, bool) { return c.last, c.hasLast }

// Classify produces the snapshot for the last bar. Missing history yields the
// previous snapshot marked Degraded, or UNKNOWN when there is none.
func (c *Classifier) Classify(bars market.Bars, cm market.ChainMetrics) Snapshot {
	var now time.Time
	if b, ok := bars.Last(); ok {
		now = b.Time
	}

	s, err := c.evaluate(bars, cm)
	if err != nil {
		c.log.Warn().Err(err).Int("bars", len(bars)).Msg("classification degraded")
		blackout := c.calendar.InBlackout(now)
		if c.hasLast {
			return c.last.Degrade(now, blackout)
		}
		p := UnknownAt(now).Params()
		p.Blackout = blackout
		return New(p)
	}

	c.last, c.hasLast = s, true
	c.log.Debug().
		Str("regime", string(s.Label())).
		Float64("abnormal_prob", s.AbnormalProb()).
		Int("confluence", s.Confluence()).
		Bool("alarm", s.Alarm()).
		Msg("classified")
	return s
}

func (c *Classifier) evaluate(bars market.Bars, cm market.ChainMetrics) (Snapshot, error) {
	cfg := c.cfg
	if len(bars) < cfg.MinBars() {
		return Snapshot{}, fmt.Errorf("%w: have %d bars, need %d", ErrInsufficientData, len(bars), cfg.MinBars())
	}
	last := bars[len(bars)-1]
	now := last.Time

	adx := indicators.NewADX(cfg.ADXPeriod)
	adxV, _ := indicators.Run(adx, bars)
	rsiV, _ := indicators.Run(indicators.NewRSI(cfg.RSIPeriod), bars)
	atrV, _ := indicators.Run(indicators.NewATR(cfg.ATRPeriod), bars)
	bbw := indicators.BandWidthRatio(bars.Closes(), cfg.BandPeriod, cfg.BandK, cfg.BandAvgWindow)
	rv := indicators.RealizedVol(bars, cfg.VolWindow, cfg.PeriodsPerYear)

	volPct := cm.IVPercentile
	if !cm.HasIVPercentile {
		var ok bool
		if volPct, ok = indicators.VolPercentile(bars, cfg.VolWindow, cfg.VolLookback, cfg.PeriodsPerYear); !ok {
			return Snapshot{}, fmt.Errorf("%w: no volatility history", ErrInsufficientData)
		}
	}

	sentiment := (indicators.Accumulation(bars, cfg.SentimentWindow) + indicators.MoneyFlowCLV(bars, cfg.SentimentWindow)) / 2

	maxCorr := 0.0
	for _, v := range cm.Correlations {
		maxCorr = math.Max(maxCorr, math.Abs(v))
	}

	label := c.thresholdLabel(adxV, rsiV)

	var triggers []string
	if volPct >= cfg.VolSpikePercentile {
		triggers = append(triggers, TriggerVolSpike)
	}
	if cfg.CorrelationSpike > 0 && maxCorr >= cfg.CorrelationSpike {
		triggers = append(triggers, TriggerCorrSpike)
	}
	if adxV >= cfg.ADXSpike {
		triggers = append(triggers, TriggerADXSpike)
	}
	if bbw >= cfg.BandwidthExpansion {
		triggers = append(triggers, TriggerBandwidthExp)
	}
	confluence := len(triggers)
	switch {
	case confluence >= cfg.ChaosConfluence:
		label = Chaos
	case confluence >= cfg.CautionConfluence:
		label = Caution
	}

	metrics := map[string]float64{
		MetricADX:           adxV,
		MetricPlusDI:        adx.PlusDI(),
		MetricMinusDI:       adx.MinusDI(),
		MetricTrendDir:      float64(adx.Direction()),
		MetricRSI:           rsiV,
		MetricATR:           atrV,
		MetricVolPercentile: volPct,
		MetricRealizedVol:   rv,
		MetricSentiment:     sentiment,
		MetricBBWRatio:      bbw,
		MetricConfluence:    float64(confluence),
		MetricMaxCorr:       maxCorr,
		MetricSpot:          last.Close,
	}

	events := DetectEvents(bars, cfg.DCThreshold)
	posteriors := c.posteriors(events)
	hmmP := 0.0
	if len(posteriors) > 0 {
		hmmP = posteriors[len(posteriors)-1]
	}
	metrics[MetricHMMPosterior] = hmmP
	alarm, alarmP := Alarm(posteriors, cfg.AlarmProbability, cfg.AlarmEvents)

	var modelChaos float64
	if c.model != nil {
		p := c.model.Predict(metrics)
		modelChaos = p[Chaos]
		best, bp := Best(p)
		if best != label && best != Abnormal && label != Chaos && bp > cfg.OverrideProbability {
			c.log.Debug().Str("from", string(label)).Str("to", string(best)).Float64("p", bp).Msg("classifier override")
			label = best
		}
	}

	// negative flow vetoes RANGE_BOUND whichever rule produced it
	if label == RangeBound && sentiment <= cfg.SentimentVeto {
		label = Caution
	}

	prob := c.blend(hmmP, float64(confluence)/float64(cfg.ChaosConfluence), modelChaos, math.Max(0, -sentiment))
	if alarm {
		label = Abnormal
		prob = math.Max(prob, alarmP)
	}

	return New(Params{
		Time:         now,
		Label:        label,
		AbnormalProb: prob,
		Confluence:   confluence,
		Metrics:      metrics,
		Correlations: cm.Correlations,
		Blackout:     c.calendar.InBlackout(now),
		Alarm:        alarm,
		DCEvents:     len(events),
		Posteriors:   posteriors,
		Triggers:     triggers,
	}), nil
}

func (c *Classifier) thresholdLabel(adx, rsi float64) Label {
	cfg := c.cfg
	switch {
	case adx < cfg.ADXRangeMax:
		return RangeBound
	case adx >= cfg.ADXTrendMin:
		return Trend
	case rsi <= cfg.RSIOversold || rsi >= cfg.RSIOverbought:
		return MeanReversion
	default:
		return Trend
	}
}

// posteriors fits the two-state model on the most recent events. Too few
// events give no posteriors, which reads as probability 0.
func (c *Classifier) posteriors(events []Event) []float64 {
	if len(events) < c.cfg.HMMMinEvents {
		return nil
	}
	if len(events) > c.cfg.HMMWindow {
		events = events[len(events)-c.cfg.HMMWindow:]
	}
	obs := make([][]float64, len(events))
	for i, e := range events {
		obs[i] = e.Features()
	}
	h, err := FitHMM(obs, c.cfg.HMMIterations)
	if err != nil {
		c.log.Warn().Err(err).Msg("hmm fit failed")
		return nil
	}
	return h.Filter(obs)
}

// blend weights the abnormal-probability components. The classifier weight
// only counts when a model is configured.
func (c *Classifier) blend(hmm, threshold, model, sentiment float64) float64 {
	w := c.cfg.Weights
	num := w.HMM*clamp01(hmm) + w.Threshold*clamp01(threshold) + w.Sentiment*clamp01(sentiment)
	den := w.HMM + w.Threshold + w.Sentiment
	if c.model != nil {
		num += w.Classifier * clamp01(model)
		den += w.Classifier
	}
	if den == 0 {
		return 0
	}
	return num / den
}
