package risk

import (
	"github.com/rustyeddy/regimetrader/pricing"
	"github.com/rustyeddy/regimetrader/strategy"
)

// Exposure is an open position as the ledger reports it. Margin and Greeks
// are totals for all lots.
type Exposure struct {
	ID         string
	Underlying string
	Structure  strategy.Structure
	Lots       int
	Margin     float64
	Greeks     pricing.Greeks
}

// AccountState is the ledger snapshot for one decision cycle. The risk
// package reads it and never changes it.
type AccountState struct {
	Equity     float64
	MarginUsed float64
	HWM        float64

	DayRealized   float64
	WeekRealized  float64
	MonthRealized float64

	OpenPositions   []Exposure
	PortfolioGreeks pricing.Greeks

	// FlatDaysRemaining > 0 blocks new trades.
	FlatDaysRemaining int
}

// Greeks returns PortfolioGreeks, or the sum over open positions when the
// ledger left it empty.
func (a AccountState) Greeks() pricing.Greeks {
	if a.PortfolioGreeks != (pricing.Greeks{}) {
		return a.PortfolioGreeks
	}
	var g pricing.Greeks
	for _, e := range a.OpenPositions {
		g = g.Add(e.Greeks)
	}
	return g
}

// Drawdown is the fraction of equity below the high-water mark.
func (a AccountState) Drawdown() float64 {
	if a.HWM <= 0 || a.Equity >= a.HWM {
		return 0
	}
	return (a.HWM - a.Equity) / a.HWM
}
