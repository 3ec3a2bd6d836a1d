package risk

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/regimetrader/regime"
	"github.com/rustyeddy/regimetrader/strategy"
)

// Manager approves, sizes or rejects proposals. It owns the circuit breaker
// and the rolling trade history used for Kelly sizing.
type Manager struct {
	pol     Policy
	breaker *CircuitBreaker
	history []float64
	log     zerolog.Logger
}

func NewManager(pol Policy, log zerolog.Logger) *Manager {
	log = log.With().Str("component", "risk").Logger()
	return &Manager{
		pol:     pol,
		breaker: NewCircuitBreaker(pol, log),
		log:     log,
	}
}

func (m *Manager) Policy() Policy             { return m.pol }
func (m *Manager) Breaker() *CircuitBreaker   { return m.breaker }
func (m *Manager) BreakerState() BreakerState { return m.breaker.State() }

// Observe advances the circuit breaker for a new cycle.
func (m *Manager) Observe(now time.Time, acct AccountState, snap regime.Snapshot) {
	m.breaker.Update(now, acct)
	m.breaker.ObserveRegime(now, snap)
}

// RecordOutcome feeds a closed trade's realized P&L to the loss streak and
// the Kelly history.
func (m *Manager) RecordOutcome(now time.Time, pnl float64) {
	m.breaker.RecordOutcome(now, pnl)
	m.history = append(m.history, pnl)
	if w := m.pol.KellyWindow; w > 0 && len(m.history) > w {
		m.history = append([]float64(nil), m.history[len(m.history)-w:]...)
	}
}

// Evaluate decides on p against acct. The decision time is p.CreatedAt.
func (m *Manager) Evaluate(p strategy.Proposal, acct AccountState) Decision {
	now := p.CreatedAt
	m.breaker.Update(now, acct)

	st := m.breaker.State()
	d := Decision{Approved: true, Mode: st.Mode}
	defer m.logDecision(p, &d)

	if m.breaker.Halted(now) {
		d.add("HALTED", fmt.Sprintf("%s until %s: %s", st.Mode, st.HaltUntil.Format(time.RFC3339), st.Reason))
		return d
	}
	if acct.FlatDaysRemaining > 0 {
		d.add("FLAT_DAYS", fmt.Sprintf("%d flat days remaining", acct.FlatDaysRemaining))
		return d
	}
	if acct.Equity <= 0 {
		d.add("NO_EQUITY", "equity must be positive")
		return d
	}
	if p.MaxLoss <= 0 || p.Margin <= 0 {
		d.add("UNDEFINED_RISK", "proposal has no bounded max loss")
		return d
	}

	d.Multipliers = Multipliers{
		Drawdown:        drawdownMultiplier(m.pol, acct),
		Streak:          streakMultiplier(m.pol, st),
		Diversification: diversificationMultiplier(m.pol, p, acct),
		Kelly:           kellyMultiplier(m.pol, m.history),
		Regime:          regimeMultiplier(m.pol, p),
	}
	prod := d.Multipliers.Product()
	d.Product = prod.InexactFloat64()

	lots := decimal.NewFromInt(int64(m.pol.BaseLots)).Mul(prod).Floor().IntPart()
	if lots > int64(m.pol.MaxLots) {
		lots = int64(m.pol.MaxLots)
	}
	if lots <= 0 {
		d.add("ZERO_SIZE", fmt.Sprintf("size multiplier %.3f leaves no lots", d.Product))
		return d
	}

	checkCaps(&d, m.pol, p, int(lots), acct)
	if !d.Approved {
		return d
	}

	d.Lots = int(lots)
	d.Signal = p.WithLots(d.Lots)
	d.Reason = "approved"
	return d
}

func (m *Manager) logDecision(p strategy.Proposal, d *Decision) {
	ev := m.log.Info().
		Str("proposal", p.ID).
		Str("structure", string(p.Structure)).
		Str("mode", string(d.Mode)).
		Float64("multiplier", d.Product)
	if d.Approved {
		ev.Int("lots", d.Lots).Msg("proposal approved")
		return
	}
	ev.Strs("codes", d.Codes()).Str("reason", d.Reason).Msg("proposal rejected")
}
