package indicators

import (
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/regimetrader/market"
)

func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// StdDev is the population standard deviation.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	v := 0.0
	for _, x := range xs {
		v += (x - m) * (x - m)
	}
	return math.Sqrt(v / float64(len(xs)))
}

// RealizedVol is the annualised standard deviation of log returns over the
// last window bars.
func RealizedVol(bars market.Bars, window int, periodsPerYear float64) float64 {
	r := bars.Tail(window + 1).LogReturns()
	if len(r) < 2 {
		return 0
	}
	return StdDev(r) * math.Sqrt(periodsPerYear)
}

// RealizedVolSeries returns rolling realized vol readings for every bar that
// has a full window behind it.
func RealizedVolSeries(bars market.Bars, window int, periodsPerYear float64) []float64 {
	if window <= 1 || len(bars) <= window {
		return nil
	}
	out := make([]float64, 0, len(bars)-window)
	for i := window + 1; i <= len(bars); i++ {
		out = append(out, RealizedVol(bars[i-window-1:i], window, periodsPerYear))
	}
	return out
}

// PercentileRank returns the share of history strictly below v, in [0,100].
func PercentileRank(history []float64, v float64) float64 {
	if len(history) == 0 {
		return 0
	}
	below := 0
	for _, h := range history {
		if h < v {
			below++
		}
	}
	return 100 * float64(below) / float64(len(history))
}

// VolPercentile ranks the latest realized vol within the last lookback
// readings.
func VolPercentile(bars market.Bars, window, lookback int, periodsPerYear float64) (float64, bool) {
	s := RealizedVolSeries(bars, window, periodsPerYear)
	if len(s) == 0 {
		return 0, false
	}
	if lookback > 0 && len(s) > lookback {
		s = s[len(s)-lookback:]
	}
	return PercentileRank(s, s[len(s)-1]), true
}

// Correlation is the Pearson correlation of two equally long series. Series
// with zero variance correlate at 0.
func Correlation(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	a, b = a[len(a)-n:], b[len(b)-n:]
	ma, mb := Mean(a), Mean(b)
	var cov, va, vb float64
	for i := 0; i < n; i++ {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return 0
	}
	return cov / math.Sqrt(va*vb)
}

// CompanionCorrelations correlates log returns of primary against each
// companion over the last window bars, matching bars by timestamp.
func CompanionCorrelations(primary market.Bars, companions map[string]market.Bars, window int) map[string]float64 {
	out := make(map[string]float64, len(companions))
	names := make([]string, 0, len(companions))
	for name := range companions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		byTime := make(map[time.Time]float64, len(companions[name]))
		for _, b := range companions[name] {
			byTime[b.Time.UTC()] = b.Close
		}
		var pa, pb []float64
		for _, b := range primary {
			if c, ok := byTime[b.Time.UTC()]; ok {
				pa = append(pa, b.Close)
				pb = append(pb, c)
			}
		}
		if window > 0 && len(pa) > window+1 {
			pa, pb = pa[len(pa)-window-1:], pb[len(pb)-window-1:]
		}
		out[name] = Correlation(logReturns(pa), logReturns(pb))
	}
	return out
}

func logReturns(xs []float64) []float64 {
	if len(xs) < 2 {
		return nil
	}
	out := make([]float64, 0, len(xs)-1)
	for i := 1; i < len(xs); i++ {
		if xs[i-1] <= 0 || xs[i] <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(xs[i]/xs[i-1]))
	}
	return out
}
