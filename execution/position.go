package execution

import (
	"time"

	"github.com/rustyeddy/regimetrader/market"
	"github.com/rustyeddy/regimetrader/pricing"
	"github.com/rustyeddy/regimetrader/strategy"
)

type Status string

const (
	Open   Status = "OPEN"
	Closed Status = "CLOSED"
)

type ExitReason string

const (
	ExitRegime    ExitReason = "REGIME"
	ExitStop      ExitReason = "STOP"
	ExitTrailing  ExitReason = "TRAILING"
	ExitTarget    ExitReason = "TARGET"
	ExitTime      ExitReason = "TIME"
	ExitEndOfTest ExitReason = "END_OF_BACKTEST"
)

// Trailing is the trailing-stop state. Floor is in position dollars and
// never decreases.
type Trailing struct {
	Active bool
	Locked bool
	Peak   float64
	Floor  float64
}

// Position is an open or closed structure. It traces to exactly one
// proposal. Money fields are totals for all lots.
type Position struct {
	ID       string
	Proposal strategy.Proposal
	Lots     int
	OpenedAt time.Time
	Fills    []LegFill

	EntryPrice float64 // net premium per share, positive for a debit
	Commission float64

	Target   float64
	Stop     float64
	Trailing Trailing

	Mark   float64 // net value per share
	PnL    float64
	DTE    int
	Status Status

	ClosedAt    time.Time
	ExitReason  ExitReason
	ExitPrice   float64
	RealizedPnL float64
}

func (p Position) Underlying() string  { return p.Proposal.Underlying }
func (p Position) Multiplier() float64 { return p.Proposal.Multiplier }

// Greeks are the position totals at proposal time.
func (p Position) Greeks() pricing.Greeks { return p.Proposal.Greeks.Scale(float64(p.Lots)) }
func (p Position) Margin() float64         { return p.Proposal.Margin * float64(p.Lots) }

// pnl converts a net per-share value into position dollars.
func (p Position) pnl(value float64) float64 {
	return (value - p.EntryPrice) * p.Proposal.Multiplier * float64(p.Lots)
}

// Value is the net per-share value of the legs on chain. Legs missing from
// the chain are priced from their entry IV, or at intrinsic once expired.
func (p Position) Value(chain market.OptionChain) float64 {
	idx := chain.BySymbol()
	v := 0.0
	for _, l := range p.Proposal.Legs {
		var mid float64
		if q, ok := idx[l.Instrument]; ok && q.Ask > 0 {
			mid = q.Mid()
		} else {
			days := market.DaysBetween(chain.AsOf, l.Expiry)
			if days <= 0 {
				mid = pricing.Intrinsic(l.Type, chain.Spot, l.Strike)
			} else {
				mid = pricing.Price(l.Type, chain.Spot, l.Strike, pricing.YearFraction(days), 0, l.IV)
			}
		}
		v += l.Side.Sign() * float64(l.Ratio) * mid
	}
	return v
}
