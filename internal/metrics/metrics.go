// Package metrics exposes the control loop's Prometheus collectors on a
// private registry. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "regimetrader"

// Regime labels in gauge order.
var regimes = []string{"RANGE_BOUND", "MEAN_REVERSION", "TREND", "CAUTION", "CHAOS", "ABNORMAL", "UNKNOWN"}

var modes = []string{"ACTIVE", "DAILY_HALT", "WEEKLY_HALT", "MONTHLY_HALT", "PREEMPTIVE_HALT", "CHAOS_HALT"}

type Metrics struct {
	reg *prometheus.Registry

	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	skipped       *prometheus.CounterVec
	regime        *prometheus.GaugeVec
	abnormalProb  prometheus.Gauge
	breakerMode   *prometheus.GaugeVec
	proposals     prometheus.Counter
	approvals     prometheus.Counter
	rejections    *prometheus.CounterVec
	executions    prometheus.Counter
	rollbacks     prometheus.Counter
	exits         *prometheus.CounterVec
	openPositions prometheus.Gauge
	equity        prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_total",
			Help: "Decision cycles completed.",
		}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "cycle_duration_seconds",
			Help:    "Wall time of one decision cycle.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_skipped_total",
			Help: "Cycles skipped, by collaborator.",
		}, []string{"cause"}),
		regime: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "regime",
			Help: "1 for the current regime label, 0 otherwise.",
		}, []string{"label"}),
		abnormalProb: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "abnormal_probability",
			Help: "Abnormal probability of the latest snapshot.",
		}),
		breakerMode: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "circuit_breaker_mode",
			Help: "1 for the current circuit-breaker mode, 0 otherwise.",
		}, []string{"mode"}),
		proposals: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "proposals_total",
			Help: "Trade proposals produced by the selector.",
		}),
		approvals: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "approvals_total",
			Help: "Proposals approved by the risk manager.",
		}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rejections_total",
			Help: "Risk rejections by violation code.",
		}, []string{"code"}),
		executions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "executions_total",
			Help: "Structures opened.",
		}),
		rollbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rollbacks_total",
			Help: "Multi-leg executions rolled back.",
		}),
		exits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "exits_total",
			Help: "Positions closed, by exit reason.",
		}, []string{"reason"}),
		openPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_positions",
			Help: "Open positions.",
		}),
		equity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "equity",
			Help: "Account equity at the last cycle.",
		}),
	}
}

// Registry exposes the private registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Cycle(d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) Skipped(cause string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(cause).Inc()
}

func (m *Metrics) Regime(label string, abnormalProb float64) {
	if m == nil {
		return
	}
	oneHot(m.regime, regimes, label)
	m.abnormalProb.Set(abnormalProb)
}

func (m *Metrics) BreakerMode(mode string) {
	if m == nil {
		return
	}
	oneHot(m.breakerMode, modes, mode)
}

func (m *Metrics) Proposed(n int) {
	if m == nil {
		return
	}
	m.proposals.Add(float64(n))
}

func (m *Metrics) Approved() {
	if m == nil {
		return
	}
	m.approvals.Inc()
}

func (m *Metrics) Rejected(codes []string) {
	if m == nil {
		return
	}
	for _, c := range codes {
		m.rejections.WithLabelValues(c).Inc()
	}
}

func (m *Metrics) Executed() {
	if m == nil {
		return
	}
	m.executions.Inc()
}

func (m *Metrics) RolledBack() {
	if m == nil {
		return
	}
	m.rollbacks.Inc()
}

func (m *Metrics) Exited(reason string) {
	if m == nil {
		return
	}
	m.exits.WithLabelValues(reason).Inc()
}

func (m *Metrics) Account(open int, equity float64) {
	if m == nil {
		return
	}
	m.openPositions.Set(float64(open))
	m.equity.Set(equity)
}

func oneHot(g *prometheus.GaugeVec, all []string, cur string) {
	for _, l := range all {
		v := 0.0
		if l == cur {
			v = 1
		}
		g.WithLabelValues(l).Set(v)
	}
}
