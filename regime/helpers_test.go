package regime

import (
	"time"

	"github.com/rustyeddy/regimetrader/market"
)

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func barsFromCloses(closes []float64) market.Bars {
	out := make(market.Bars, len(closes))
	prev := closes[0]
	for i, c := range closes {
		hi, lo := c, c
		if prev > hi {
			hi = prev
		}
		if prev < lo {
			lo = prev
		}
		out[i] = market.Bar{Time: t0.AddDate(0, 0, i), Open: prev, High: hi, Low: lo, Close: c, Volume: 1000}
		prev = c
	}
	return out
}

func flatBars(n int, price float64) market.Bars {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price
	}
	return barsFromCloses(closes)
}

// zigzag is twenty slow 2% swings of ten bars each followed by eight fast
// 5% one-bar swings.
func zigzag() market.Bars {
	var closes []float64
	p := 100.0
	for leg := 0; leg < 20; leg++ {
		step := 0.2
		if leg%2 == 1 {
			step = -0.2
		}
		for i := 0; i < 10; i++ {
			p += step
			closes = append(closes, p)
		}
	}
	for leg := 0; leg < 8; leg++ {
		if leg%2 == 0 {
			p *= 1.05
		} else {
			p /= 1.05
		}
		closes = append(closes, p)
	}
	return barsFromCloses(closes)
}
