package pricing

import (
	"math"
	"time"

	"github.com/rustyeddy/regimetrader/market"
)

// ChainParams shape a synthetic chain.
type ChainParams struct {
	Underlying   string
	ExpiryDays   []int
	StrikeStep   float64
	StrikeCount  int // strikes either side of the money
	Rate         float64
	MinVol       float64
	SkewSlope    float64 // IV added per unit of log-moneyness below spot
	SpreadFrac   float64 // bid/ask spread as a fraction of mid
	MinSpread    float64
	OpenInterest float64
}

func DefaultChainParams(underlying string) ChainParams {
	return ChainParams{
		Underlying:   underlying,
		ExpiryDays:   []int{30, 45},
		StrikeStep:   1,
		StrikeCount:  30,
		Rate:         0.03,
		MinVol:       0.10,
		SkewSlope:    0.5,
		SpreadFrac:   0.04,
		MinSpread:    0.02,
		OpenInterest: 1000,
	}
}

// SyntheticChain prices a strike ladder around spot at vol (floored at
// MinVol) with a linear put skew.
func SyntheticChain(spot, vol float64, asOf time.Time, p ChainParams) market.OptionChain {
	chain := market.OptionChain{Underlying: p.Underlying, Spot: spot, AsOf: asOf}
	if spot <= 0 || p.StrikeStep <= 0 {
		return chain
	}
	vol = math.Max(vol, p.MinVol)
	center := math.Round(spot/p.StrikeStep) * p.StrikeStep

	for _, dte := range p.ExpiryDays {
		expiry := asOf.AddDate(0, 0, dte)
		years := YearFraction(market.DaysBetween(asOf, expiry))
		for i := -p.StrikeCount; i <= p.StrikeCount; i++ {
			k := center + float64(i)*p.StrikeStep
			if k <= 0 {
				continue
			}
			iv := vol + p.SkewSlope*math.Max(0, -math.Log(k/spot))
			for _, typ := range []market.OptionType{market.Put, market.Call} {
				mid := Price(typ, spot, k, years, p.Rate, iv)
				half := math.Max(mid*p.SpreadFrac, p.MinSpread) / 2
				chain.Quotes = append(chain.Quotes, market.OptionQuote{
					Underlying:   p.Underlying,
					Type:         typ,
					Strike:       k,
					Expiry:       expiry,
					Bid:          math.Max(mid-half, 0),
					Ask:          mid + half,
					OpenInterest: p.OpenInterest,
					IV:           iv,
				})
			}
		}
	}
	return chain
}
