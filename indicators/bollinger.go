package indicators

import (
	"fmt"

	"github.com/rustyeddy/regimetrader/market"
)

// BandWidth is the streaming Bollinger band width (upper-lower)/middle.
type BandWidth struct {
	period int
	k      float64
	closes []float64
}

func NewBandWidth(period int, k float64) *BandWidth {
	return &BandWidth{period: period, k: k, closes: make([]float64, 0, period)}
}

func (w *BandWidth) Name() string { return fmt.Sprintf("BBW(%d,%.1f)", w.period, w.k) }
func (w *BandWidth) Warmup() int  { return w.period }
func (w *BandWidth) Ready() bool  { return len(w.closes) >= w.period }
func (w *BandWidth) Reset()       { w.closes = w.closes[:0] }

func (w *BandWidth) Update(b market.Bar) {
	w.closes = append(w.closes, b.Close)
	if len(w.closes) > w.period {
		w.closes = w.closes[1:]
	}
}

func (w *BandWidth) Value() float64 {
	if !w.Ready() {
		return 0
	}
	return bandWidth(w.closes, w.k)
}

func bandWidth(closes []float64, k float64) float64 {
	mid := Mean(closes)
	if mid == 0 {
		return 0
	}
	return 2 * k * StdDev(closes) / mid
}

// BandWidthSeries returns the band width at every bar once period closes are
// available.
func BandWidthSeries(closes []float64, period int, k float64) []float64 {
	if period <= 0 || len(closes) < period {
		return nil
	}
	out := make([]float64, 0, len(closes)-period+1)
	for i := period; i <= len(closes); i++ {
		out = append(out, bandWidth(closes[i-period:i], k))
	}
	return out
}

// BandWidthRatio is the current band width over its mean across the last
// avgWindow readings. Returns 1 when the average is zero or there is not
// enough history.
func BandWidthRatio(closes []float64, period int, k float64, avgWindow int) float64 {
	s := BandWidthSeries(closes, period, k)
	if len(s) == 0 {
		return 1
	}
	if avgWindow > 0 && len(s) > avgWindow {
		s = s[len(s)-avgWindow:]
	}
	avg := Mean(s)
	if avg <= 0 {
		return 1
	}
	return s[len(s)-1] / avg
}
