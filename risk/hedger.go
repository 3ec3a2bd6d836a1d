package risk

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

type HedgeAction string

const (
	HedgeDelta  HedgeAction = "HEDGE_DELTA"
	ReduceGamma HedgeAction = "REDUCE_GAMMA"
	ReduceVega  HedgeAction = "REDUCE_VEGA"
)

// Recommendation is advice only. Shares is the underlying quantity that
// neutralises delta; PositionID names the largest contributor to close.
type Recommendation struct {
	Action     HedgeAction
	Exposure   float64
	Band       float64
	Shares     float64
	PositionID string
	Reason     string
}

type HedgeReport struct {
	Recommendations []Recommendation
	CapBreaches     []Violation
}

func (r HedgeReport) Empty() bool {
	return len(r.Recommendations) == 0 && len(r.CapBreaches) == 0
}

// Hedger reviews portfolio Greeks each cycle. It never places orders.
type Hedger struct {
	pol Policy
	log zerolog.Logger
}

func NewHedger(pol Policy, log zerolog.Logger) *Hedger {
	return &Hedger{pol: pol, log: log.With().Str("component", "hedger").Logger()}
}

func (h *Hedger) Evaluate(acct AccountState) HedgeReport {
	var r HedgeReport
	g := acct.Greeks()

	if math.Abs(g.Delta) > h.pol.DeltaBand {
		r.Recommendations = append(r.Recommendations, Recommendation{
			Action:   HedgeDelta,
			Exposure: g.Delta,
			Band:     h.pol.DeltaBand,
			Shares:   -math.Round(g.Delta),
			Reason:   fmt.Sprintf("delta %.1f outside band %.1f", g.Delta, h.pol.DeltaBand),
		})
	}
	if math.Abs(g.Gamma) > h.pol.GammaBand {
		r.Recommendations = append(r.Recommendations, Recommendation{
			Action:     ReduceGamma,
			Exposure:   g.Gamma,
			Band:       h.pol.GammaBand,
			PositionID: largest(acct.OpenPositions, g.Gamma, func(e Exposure) float64 { return e.Greeks.Gamma }),
			Reason:     fmt.Sprintf("gamma %.2f outside band %.2f", g.Gamma, h.pol.GammaBand),
		})
	}
	if math.Abs(g.Vega) > h.pol.VegaBand {
		r.Recommendations = append(r.Recommendations, Recommendation{
			Action:     ReduceVega,
			Exposure:   g.Vega,
			Band:       h.pol.VegaBand,
			PositionID: largest(acct.OpenPositions, g.Vega, func(e Exposure) float64 { return e.Greeks.Vega }),
			Reason:     fmt.Sprintf("vega %.1f outside band %.1f", g.Vega, h.pol.VegaBand),
		})
	}

	var caps Decision
	if n := len(acct.OpenPositions); n > h.pol.MaxPositions {
		caps.add("MAX_POSITIONS", fmt.Sprintf("open positions %d > max %d", n, h.pol.MaxPositions))
	}
	if acct.Equity > 0 && acct.MarginUsed/acct.Equity > h.pol.MaxMarginPct {
		caps.add("MARGIN_CAP", fmt.Sprintf("margin %.2f%% of equity exceeds max %.2f%%",
			100*acct.MarginUsed/acct.Equity, 100*h.pol.MaxMarginPct))
	}
	for _, c := range []struct {
		code         string
		value, limit float64
	}{
		{"DELTA_CAP", g.Delta, h.pol.MaxDelta},
		{"GAMMA_CAP", g.Gamma, h.pol.MaxGamma},
		{"VEGA_CAP", g.Vega, h.pol.MaxVega},
	} {
		if math.Abs(c.value) > c.limit {
			caps.add(c.code, fmt.Sprintf("%.1f exceeds cap %.1f", c.value, c.limit))
		}
	}
	r.CapBreaches = caps.Violations

	for _, rec := range r.Recommendations {
		h.log.Warn().Str("action", string(rec.Action)).Float64("exposure", rec.Exposure).
			Str("position", rec.PositionID).Msg(rec.Reason)
	}
	for _, v := range r.CapBreaches {
		h.log.Error().Str("code", v.Code).Msg(v.Msg)
	}
	return r
}

// largest returns the position contributing most to an exposure of the
// given sign.
func largest(pos []Exposure, total float64, greek func(Exposure) float64) string {
	best, bestV := "", 0.0
	for _, e := range pos {
		v := greek(e) * math.Copysign(1, total)
		if v > bestV {
			best, bestV = e.ID, v
		}
	}
	return best
}
