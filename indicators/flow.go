package indicators

import (
	"github.com/rustyeddy/regimetrader/market"
)

// Accumulation is the volume-weighted share of up-closes minus down-closes
// over the last window bars, in [-1,1]. Without volume every bar weighs 1.
func Accumulation(bars market.Bars, window int) float64 {
	bs := bars.Tail(window + 1)
	if len(bs) < 2 {
		return 0
	}
	hv := hasVolume(bs)
	var num, den float64
	for i := 1; i < len(bs); i++ {
		w := weight(bs[i], hv)
		switch {
		case bs[i].Close > bs[i-1].Close:
			num += w
		case bs[i].Close < bs[i-1].Close:
			num -= w
		}
		den += w
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// MoneyFlowCLV is the volume-weighted close location value over the last
// window bars, in [-1,1].
func MoneyFlowCLV(bars market.Bars, window int) float64 {
	bs := bars.Tail(window)
	hv := hasVolume(bs)
	var num, den float64
	for _, b := range bs {
		w := weight(b, hv)
		num += b.CLV() * w
		den += w
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func hasVolume(bs market.Bars) bool {
	for _, b := range bs {
		if b.Volume > 0 {
			return true
		}
	}
	return false
}

func weight(b market.Bar, hasVolume bool) float64 {
	if hasVolume {
		return b.Volume
	}
	return 1
}
