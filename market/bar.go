package market

import (
	"math"
	"time"
)

// Bar is one OHLCV interval of the underlying.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Range returns High-Low.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// CLV is the close location value in [-1, 1]. A bar with no range has CLV 0.
func (b Bar) CLV() float64 {
	r := b.Range()
	if r <= 0 {
		return 0
	}
	return ((b.Close - b.Low) - (b.High - b.Close)) / r
}

// Bars is a time-ordered bar series.
type Bars []Bar

func (bs Bars) Closes() []float64 {
	out := make([]float64, len(bs))
	for i, b := range bs {
		out[i] = b.Close
	}
	return out
}

func (bs Bars) Last() (Bar, bool) {
	if len(bs) == 0 {
		return Bar{}, false
	}
	return bs[len(bs)-1], true
}

// Until returns the prefix of bars with Time <= t.
func (bs Bars) Until(t time.Time) Bars {
	i := 0
	for i < len(bs) && !bs[i].Time.After(t) {
		i++
	}
	return bs[:i]
}

// Tail returns at most the last n bars.
func (bs Bars) Tail(n int) Bars {
	if n <= 0 || n >= len(bs) {
		return bs
	}
	return bs[len(bs)-n:]
}

// Between returns bars with from <= Time <= to. Zero bounds are open.
func (bs Bars) Between(from, to time.Time) Bars {
	out := make(Bars, 0, len(bs))
	for _, b := range bs {
		if !from.IsZero() && b.Time.Before(from) {
			continue
		}
		if !to.IsZero() && b.Time.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// LogReturns returns ln(c[i]/c[i-1]) for every consecutive pair of closes.
func (bs Bars) LogReturns() []float64 {
	if len(bs) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bs)-1)
	for i := 1; i < len(bs); i++ {
		prev := bs[i-1].Close
		if prev <= 0 || bs[i].Close <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(bs[i].Close/prev))
	}
	return out
}
