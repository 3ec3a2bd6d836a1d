package regime

import (
	"math"
	"sort"
	"time"
)

// Snapshot is the immutable result of one classification. Fields are only
// reachable through accessors that return copies.
type Snapshot struct {
	time         time.Time
	label        Label
	abnormalProb float64
	confluence   int
	metrics      map[string]float64
	correlations map[string]float64
	blackout     bool
	alarm        bool
	degraded     bool
	dcEvents     int
	posteriors   []float64
	triggers     []string
}

// Params describes a Snapshot. New copies everything it is given.
type Params struct {
	Time         time.Time
	Label        Label
	AbnormalProb float64
	Confluence   int
	Metrics      map[string]float64
	Correlations map[string]float64
	Blackout     bool
	Alarm        bool
	Degraded     bool
	DCEvents     int
	Posteriors   []float64
	Triggers     []string
}

func New(p Params) Snapshot {
	if p.Label == "" {
		p.Label = Unknown
	}
	return Snapshot{
		time:         p.Time,
		label:        p.Label,
		abnormalProb: clamp01(p.AbnormalProb),
		confluence:   p.Confluence,
		metrics:      copyMap(p.Metrics),
		correlations: copyMap(p.Correlations),
		blackout:     p.Blackout,
		alarm:        p.Alarm,
		degraded:     p.Degraded,
		dcEvents:     p.DCEvents,
		posteriors:   append([]float64(nil), p.Posteriors...),
		triggers:     append([]string(nil), p.Triggers...),
	}
}

// UnknownAt is the snapshot produced when nothing can be classified.
func UnknownAt(t time.Time) Snapshot {
	return New(Params{Time: t, Label: Unknown, Degraded: true})
}

func (s Snapshot) Time() time.Time       { return s.time }
func (s Snapshot) Label() Label          { return s.label }
func (s Snapshot) AbnormalProb() float64 { return s.abnormalProb }
func (s Snapshot) Confluence() int       { return s.confluence }
func (s Snapshot) Blackout() bool        { return s.blackout }
func (s Snapshot) Alarm() bool           { return s.alarm }
func (s Snapshot) Degraded() bool        { return s.degraded }
func (s Snapshot) DCEvents() int         { return s.dcEvents }
func (s Snapshot) IsZero() bool          { return s.label == "" }

func (s Snapshot) Metric(key string) (float64, bool) {
	v, ok := s.metrics[key]
	return v, ok
}

// MetricOr returns the metric or def when absent.
func (s Snapshot) MetricOr(key string, def float64) float64 {
	if v, ok := s.metrics[key]; ok {
		return v
	}
	return def
}

func (s Snapshot) Metrics() map[string]float64      { return copyMap(s.metrics) }
func (s Snapshot) Correlations() map[string]float64 { return copyMap(s.correlations) }
func (s Snapshot) Posteriors() []float64            { return append([]float64(nil), s.posteriors...) }
func (s Snapshot) Triggers() []string               { return append([]string(nil), s.triggers...) }

// MaxAbsCorrelation is the largest |correlation| against any companion.
func (s Snapshot) MaxAbsCorrelation() float64 {
	m := 0.0
	for _, v := range s.correlations {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

// Params returns the snapshot's contents as a fresh Params value.
func (s Snapshot) Params() Params {
	return Params{
		Time:         s.time,
		Label:        s.label,
		AbnormalProb: s.abnormalProb,
		Confluence:   s.confluence,
		Metrics:      s.Metrics(),
		Correlations: s.Correlations(),
		Blackout:     s.blackout,
		Alarm:        s.alarm,
		Degraded:     s.degraded,
		DCEvents:     s.dcEvents,
		Posteriors:   s.Posteriors(),
		Triggers:     s.Triggers(),
	}
}

// Degrade re-times s and marks it as carried over from an earlier cycle.
func (s Snapshot) Degrade(t time.Time, blackout bool) Snapshot {
	p := s.Params()
	p.Time = t
	p.Degraded = true
	p.Blackout = blackout
	return New(p)
}

// MetricKeys returns the metric names in sorted order.
func (s Snapshot) MetricKeys() []string {
	keys := make([]string, 0, len(s.metrics))
	for k := range s.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
