package execution

import (
	"math"

	"github.com/rustyeddy/regimetrader/market"
	"github.com/rustyeddy/regimetrader/regime"
)

// ExitOrder asks the caller to close a position.
type ExitOrder struct {
	PositionID string
	Reason     ExitReason
	PnL        float64
}

// Update is the new mark and trailing state for an open position. The
// caller applies it.
type Update struct {
	PositionID string
	Mark       float64
	PnL        float64
	DTE        int
	Trailing   Trailing
}

type MonitorResult struct {
	Exits   []ExitOrder
	Updates []Update
}

// Monitor decides exits for open positions. It holds only configuration:
// the same inputs always give the same result.
type Monitor struct {
	cfg Config
}

func NewMonitor(cfg Config) Monitor { return Monitor{cfg: cfg} }

// Evaluate marks every open position on chain and checks, in order, the
// regime override, stop loss, trailing floor, profit target and time exit.
// The ATR and band-width ratio come from the snapshot metrics.
func (m Monitor) Evaluate(positions []Position, chain market.OptionChain, snap regime.Snapshot) MonitorResult {
	var res MonitorResult
	forced := snap.Label().Halting()
	atr := snap.MetricOr(regime.MetricATR, 0)
	bbw := snap.MetricOr(regime.MetricBBWRatio, 1)

	for _, p := range positions {
		if p.Status != Open {
			continue
		}
		mark := p.Value(chain)
		pnl := p.pnl(mark)
		dte := int(math.Floor(market.DaysBetween(chain.AsOf, p.Proposal.Expiry)))
		tr := m.trail(p, pnl, atr, bbw)

		res.Updates = append(res.Updates, Update{PositionID: p.ID, Mark: mark, PnL: pnl, DTE: dte, Trailing: tr})

		var reason ExitReason
		switch {
		case forced:
			reason = ExitRegime
		case p.Stop > 0 && pnl <= -p.Stop:
			reason = ExitStop
		case tr.Active && (tr.Locked || !p.Proposal.ShortVol()) && pnl <= tr.Floor:
			reason = ExitTrailing
		case p.Target > 0 && pnl >= p.Target:
			reason = ExitTarget
		case dte <= m.cfg.ExitDTE:
			reason = ExitTime
		default:
			continue
		}
		res.Exits = append(res.Exits, ExitOrder{PositionID: p.ID, Reason: reason, PnL: pnl})
	}
	return res
}

// trail returns the trailing state after observing pnl. Once set, floors
// and peaks never decrease.
func (m Monitor) trail(p Position, pnl, atr, bbw float64) Trailing {
	tr := p.Trailing
	wasActive := tr.Active
	if !wasActive {
		if p.Target <= 0 || pnl < m.cfg.TrailActivation*p.Target {
			return tr
		}
		tr.Active, tr.Peak = true, pnl
	}
	tr.Peak = math.Max(tr.Peak, pnl)

	switch {
	case !p.Proposal.ShortVol():
		floor := tr.Peak - m.cfg.ATRMultiple*atr*math.Abs(p.Greeks().Delta)
		if !wasActive || floor > tr.Floor {
			tr.Floor = floor
		}
	case tr.Locked || bbw >= m.cfg.LockBandwidthRatio:
		floor := m.cfg.LockFraction * tr.Peak
		if !tr.Locked || floor > tr.Floor {
			tr.Floor = floor
		}
		tr.Locked = true
	}
	return tr
}

// Apply returns p with u applied when u is for p.
func (p Position) Apply(u Update) Position {
	if u.PositionID != p.ID {
		return p
	}
	p.Mark, p.PnL, p.DTE, p.Trailing = u.Mark, u.PnL, u.DTE, u.Trailing
	return p
}
