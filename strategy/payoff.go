package strategy

import (
	"errors"
	"math"
	"sort"

	"github.com/rustyeddy/regimetrader/market"
	"github.com/rustyeddy/regimetrader/pricing"
)

// ErrInvalidStructure marks a candidate that cannot be proposed: unbounded
// loss, no defined risk, or missing contracts.
var ErrInvalidStructure = errors.New("strategy: invalid structure")

func payoff(legs []Leg, entry, multiplier, spot float64) float64 {
	v := 0.0
	for _, l := range legs {
		v += l.Side.Sign() * float64(l.Ratio) * pricing.Intrinsic(l.Type, spot, l.Strike)
	}
	return (v - entry) * multiplier
}

// Analyze returns the expiry max profit and max loss per lot. The payoff is
// piecewise linear, so it is evaluated at zero, at every strike and along
// the slope above the highest strike.
func Analyze(legs []Leg, entry, multiplier float64) (maxProfit, maxLoss float64, err error) {
	if len(legs) == 0 {
		return 0, 0, ErrInvalidStructure
	}

	points := []float64{0}
	slope := 0.0
	for _, l := range legs {
		if l.Ratio <= 0 {
			return 0, 0, ErrInvalidStructure
		}
		points = append(points, l.Strike)
		if l.Type == market.Call {
			slope += l.Side.Sign() * float64(l.Ratio)
		}
	}
	if slope < 0 {
		return 0, 0, errors.Join(ErrInvalidStructure, errors.New("unbounded loss above highest strike"))
	}
	sort.Float64s(points)

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range points {
		v := payoff(legs, entry, multiplier, s)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if slope > 0 {
		hi = math.Inf(1)
	}

	maxLoss = -lo
	if maxLoss <= 0 {
		return 0, 0, errors.Join(ErrInvalidStructure, errors.New("no defined risk"))
	}
	if hi <= 0 {
		return 0, 0, errors.Join(ErrInvalidStructure, errors.New("no profit at any price"))
	}
	return hi, maxLoss, nil
}
