// Package pricing values European options with Black-Scholes and builds
// synthetic option chains for replay.
package pricing

import (
	"math"

	"github.com/rustyeddy/regimetrader/market"
)

const (
	DaysPerYear = 365.0
)

// Greeks are option sensitivities. Theta is per calendar day and Vega per
// one volatility point (0.01).
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
}

func (g Greeks) Add(o Greeks) Greeks {
	return Greeks{
		Delta: g.Delta + o.Delta,
		Gamma: g.Gamma + o.Gamma,
		Theta: g.Theta + o.Theta,
		Vega:  g.Vega + o.Vega,
	}
}

func (g Greeks) Scale(k float64) Greeks {
	return Greeks{Delta: g.Delta * k, Gamma: g.Gamma * k, Theta: g.Theta * k, Vega: g.Vega * k}
}

// YearFraction converts a remaining duration in days to years.
func YearFraction(days float64) float64 {
	if days <= 0 {
		return 0
	}
	return days / DaysPerYear
}

// Price returns the Black-Scholes value. Expired or zero-vol options are worth
// their intrinsic value.
func Price(typ market.OptionType, spot, strike, years, rate, vol float64) float64 {
	if years <= 0 || vol <= 0 {
		return Intrinsic(typ, spot, strike)
	}
	d1, d2 := d12(spot, strike, years, rate, vol)
	df := math.Exp(-rate * years)
	if typ == market.Call {
		return spot*normCDF(d1) - strike*df*normCDF(d2)
	}
	return strike*df*normCDF(-d2) - spot*normCDF(-d1)
}

func Intrinsic(typ market.OptionType, spot, strike float64) float64 {
	if typ == market.Call {
		return math.Max(spot-strike, 0)
	}
	return math.Max(strike-spot, 0)
}

// OptionGreeks returns the Greeks of one long option on one share.
func OptionGreeks(typ market.OptionType, spot, strike, years, rate, vol float64) Greeks {
	if years <= 0 || vol <= 0 || spot <= 0 || strike <= 0 {
		g := Greeks{}
		if Intrinsic(typ, spot, strike) > 0 {
			g.Delta = 1
			if typ == market.Put {
				g.Delta = -1
			}
		}
		return g
	}

	d1, d2 := d12(spot, strike, years, rate, vol)
	df := math.Exp(-rate * years)
	sq := math.Sqrt(years)
	pdf := normPDF(d1)

	g := Greeks{
		Gamma: pdf / (spot * vol * sq),
		Vega:  spot * pdf * sq / 100,
	}
	decay := -spot * pdf * vol / (2 * sq)
	if typ == market.Call {
		g.Delta = normCDF(d1)
		g.Theta = (decay - rate*strike*df*normCDF(d2)) / DaysPerYear
	} else {
		g.Delta = normCDF(d1) - 1
		g.Theta = (decay + rate*strike*df*normCDF(-d2)) / DaysPerYear
	}
	return g
}

func d12(spot, strike, years, rate, vol float64) (float64, float64) {
	sq := vol * math.Sqrt(years)
	d1 := (math.Log(spot/strike) + (rate+0.5*vol*vol)*years) / sq
	return d1, d1 - sq
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}
