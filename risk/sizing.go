package risk

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/regimetrader/regime"
	"github.com/rustyeddy/regimetrader/strategy"
)

// Multipliers are the independent sizing factors, each in [0,1].
type Multipliers struct {
	Drawdown        float64
	Streak          float64
	Diversification float64
	Kelly           float64
	Regime          float64
}

// Product multiplies the factors in decimal so that exact inputs give
// exact lot counts.
func (m Multipliers) Product() decimal.Decimal {
	p := decimal.NewFromInt(1)
	for _, f := range []float64{m.Drawdown, m.Streak, m.Diversification, m.Kelly, m.Regime} {
		p = p.Mul(decimal.NewFromFloat(clamp01(f)))
	}
	return p
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// stepValue returns the multiplier of the last step whose threshold x has
// reached, or 1.
func stepValue(steps []Step, x float64) float64 {
	m := 1.0
	for _, s := range steps {
		if x >= s.Threshold {
			m = s.Multiplier
		}
	}
	return clamp01(m)
}

func drawdownMultiplier(pol Policy, acct AccountState) float64 {
	return stepValue(pol.DrawdownSteps, acct.Drawdown())
}

func streakMultiplier(pol Policy, st BreakerState) float64 {
	return math.Min(stepValue(pol.LossStreakSteps, float64(st.ConsecutiveLosses)), clamp01(st.SizeMultiplier))
}

// diversificationMultiplier cuts size when an open position is on the same
// underlying or on a companion correlated beyond the threshold.
func diversificationMultiplier(pol Policy, p strategy.Proposal, acct AccountState) float64 {
	for _, e := range acct.OpenPositions {
		corr := 0.0
		if e.Underlying == p.Underlying {
			corr = 1
		} else if c, ok := p.Correlations[e.Underlying]; ok {
			corr = math.Abs(c)
		}
		if corr > pol.CorrelationThreshold {
			return clamp01(pol.DiversificationMultiplier)
		}
	}
	return 1
}

// kellyMultiplier scales the fractional Kelly stake against the per-trade
// risk budget. Short histories are neutral.
func kellyMultiplier(pol Policy, history []float64) float64 {
	if len(history) < pol.KellyMinTrades {
		return 1
	}
	var wins, losses, sumWin, sumLoss float64
	for _, pnl := range history {
		switch {
		case pnl > 0:
			wins++
			sumWin += pnl
		case pnl < 0:
			losses++
			sumLoss -= pnl
		}
	}
	if wins == 0 {
		return 0
	}
	if losses == 0 {
		return 1
	}
	p := wins / (wins + losses)
	b := (sumWin / wins) / (sumLoss / losses)
	f := p - (1-p)/b
	return clamp01(pol.KellyFraction * f / pol.RiskPerTradePct)
}

func regimeMultiplier(pol Policy, p strategy.Proposal) float64 {
	m := 1.0
	if p.Regime == regime.Caution {
		m = pol.CautionMultiplier
	}
	if p.AbnormalProb >= pol.AbnormalElevated {
		m = math.Min(m, pol.AbnormalMultiplier)
	}
	return clamp01(m)
}
