// Package strategy maps regime snapshots to defined-risk option structures.
package strategy

import (
	"time"

	"github.com/rustyeddy/regimetrader/market"
	"github.com/rustyeddy/regimetrader/pricing"
	"github.com/rustyeddy/regimetrader/regime"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Sign is +1 for long legs and -1 for short legs.
func (s Side) Sign() float64 {
	if s == Sell {
		return -1
	}
	return 1
}

func (s Side) Opposite() Side {
	if s == Sell {
		return Buy
	}
	return Sell
}

type Structure string

const (
	IronCondor       Structure = "IRON_CONDOR"
	IronButterfly    Structure = "IRON_BUTTERFLY"
	CallDebitSpread  Structure = "CALL_DEBIT_SPREAD"
	PutDebitSpread   Structure = "PUT_DEBIT_SPREAD"
	CallCreditSpread Structure = "CALL_CREDIT_SPREAD"
	PutCreditSpread  Structure = "PUT_CREDIT_SPREAD"
)

type Class string

const (
	ShortVol    Class = "SHORT_VOL"
	Directional Class = "DIRECTIONAL"
)

func (s Structure) Class() Class {
	switch s {
	case IronCondor, IronButterfly:
		return ShortVol
	}
	return Directional
}

// Leg is one option contract of a structure.
type Leg struct {
	Side         Side
	Type         market.OptionType
	Strike       float64
	StrikeOffset float64 // (strike-spot)/spot at proposal time
	Expiry       time.Time
	Instrument   string
	Ratio        int

	Bid          float64
	Ask          float64
	Price        float64 // mid
	IV           float64
	OpenInterest float64
}

// Basis names what a target or stop fraction is applied to.
type Basis string

const (
	BasisMargin    Basis = "margin"
	BasisMaxProfit Basis = "max_profit"
)

// Exit is a provisional profit target or stop loss, in dollars per lot.
type Exit struct {
	Fraction float64
	Basis    Basis
	Amount   float64
}

// Proposal is a candidate trade. Money fields are per lot; EntryPrice is the
// net premium per share, positive for a debit.
type Proposal struct {
	ID         string
	CreatedAt  time.Time
	Underlying string
	Spot       float64
	Structure  Structure
	Class      Class
	Legs       []Leg
	Expiry     time.Time
	Multiplier float64

	EntryPrice float64
	MaxProfit  float64
	MaxLoss    float64
	Margin     float64
	Greeks     pricing.Greeks

	Target Exit
	Stop   Exit

	// Lots is zero until the risk manager sizes the proposal.
	Lots int

	// Regime context at proposal time.
	Regime       regime.Label
	AbnormalProb float64
	Confluence   int
	Correlations map[string]float64
	Metrics      map[string]float64
}

func (p Proposal) ShortVol() bool { return p.Class == ShortVol }

// Debit reports whether opening the structure pays premium.
func (p Proposal) Debit() bool { return p.EntryPrice > 0 }

// Direction is the sign of the structure's delta.
func (p Proposal) Direction() int {
	switch {
	case p.Greeks.Delta > 1e-9:
		return 1
	case p.Greeks.Delta < -1e-9:
		return -1
	}
	return 0
}

// Payoff is the per-lot P&L at expiry with the underlying at spot.
func (p Proposal) Payoff(spot float64) float64 {
	return payoff(p.Legs, p.EntryPrice, p.Multiplier, spot)
}

// WithLots returns a copy sized to n lots with its own leg and map storage.
func (p Proposal) WithLots(n int) Proposal {
	q := p
	q.Lots = n
	q.Legs = append([]Leg(nil), p.Legs...)
	q.Correlations = copyMap(p.Correlations)
	q.Metrics = copyMap(p.Metrics)
	return q
}

// Total margin and Greeks for the sized proposal.
func (p Proposal) TotalMargin() float64        { return p.Margin * float64(p.Lots) }
func (p Proposal) TotalGreeks() pricing.Greeks { return p.Greeks.Scale(float64(p.Lots)) }
func (p Proposal) TotalMaxLoss() float64       { return p.MaxLoss * float64(p.Lots) }

func copyMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
