package indicators

import (
	"fmt"

	"github.com/rustyeddy/regimetrader/market"
)

// RSI is a streaming Wilder Relative Strength Index. A series with no
// movement reads 50.
type RSI struct {
	period    int
	prevClose float64
	hasPrev   bool
	count     int
	sumGain   float64
	sumLoss   float64
	avgGain   float64
	avgLoss   float64
}

func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string { return fmt.Sprintf("RSI(%d)", r.period) }
func (r *RSI) Warmup() int  { return r.period + 1 }
func (r *RSI) Ready() bool  { return r.count >= r.period }
func (r *RSI) Reset()       { *r = RSI{period: r.period} }

func (r *RSI) Update(b market.Bar) {
	if !r.hasPrev {
		r.prevClose = b.Close
		r.hasPrev = true
		return
	}
	ch := b.Close - r.prevClose
	r.prevClose = b.Close

	var gain, loss float64
	if ch > 0 {
		gain = ch
	} else {
		loss = -ch
	}

	n := float64(r.period)
	if r.count < r.period {
		r.sumGain += gain
		r.sumLoss += loss
		r.count++
		if r.count == r.period {
			r.avgGain = r.sumGain / n
			r.avgLoss = r.sumLoss / n
		}
		return
	}
	r.avgGain = (r.avgGain*(n-1) + gain) / n
	r.avgLoss = (r.avgLoss*(n-1) + loss) / n
}

func (r *RSI) Value() float64 {
	if !r.Ready() {
		return 0
	}
	switch {
	case r.avgGain == 0 && r.avgLoss == 0:
		return 50
	case r.avgLoss == 0:
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}
