package regime

import (
	"math"
	"time"

	"github.com/rustyeddy/regimetrader/market"
)

// Event is a directional-change event: a trend from one extremum to the next,
// confirmed when price reversed by more than the threshold.
type Event struct {
	Direction    int // +1 up-trend, -1 down-trend
	StartIndex   int
	ExtremeIndex int
	ConfirmIndex int
	StartTime    time.Time
	ExtremeTime  time.Time
	ConfirmTime  time.Time

	// Duration is the number of bars from the trend start to its extreme.
	Duration int
	// TimeToPeakVolume is the number of bars from the trend start to the
	// highest-volume bar of the trend.
	TimeToPeakVolume int
	// Return is the signed fractional move from start to extreme.
	Return float64
	// TimeAdjustedReturn is |Return| per bar of duration.
	TimeAdjustedReturn float64
}

// Features is the observation vector the two-state model is fitted on.
func (e Event) Features() []float64 {
	return []float64{float64(e.Duration), float64(e.TimeToPeakVolume), e.TimeAdjustedReturn}
}

// featureTAR indexes TimeAdjustedReturn in Features.
const featureTAR = 2

// DetectEvents scans closes for directional changes of at least theta. The
// first trend starts once price has moved theta from the opening extremes; a
// series that never moves theta yields no events.
func DetectEvents(bars market.Bars, theta float64) []Event {
	if len(bars) < 2 || theta <= 0 {
		return nil
	}

	var (
		events []Event
		mode   int
		start  int
		hi     = bars[0].Close
		lo     = bars[0].Close
		hiIdx  int
		loIdx  int
	)

	emit := func(dir, extIdx, confirm int) {
		s, x := bars[start].Close, bars[extIdx].Close
		ret := 0.0
		if s > 0 {
			ret = (x - s) / s
		}
		dur := extIdx - start
		ev := Event{
			Direction:          dir,
			StartIndex:         start,
			ExtremeIndex:       extIdx,
			ConfirmIndex:       confirm,
			StartTime:          bars[start].Time,
			ExtremeTime:        bars[extIdx].Time,
			ConfirmTime:        bars[confirm].Time,
			Duration:           dur,
			TimeToPeakVolume:   peakVolume(bars, start, extIdx) - start,
			Return:             ret,
			TimeAdjustedReturn: math.Abs(ret) / float64(max(dur, 1)),
		}
		events = append(events, ev)
	}

	for i := 1; i < len(bars); i++ {
		c := bars[i].Close
		switch mode {
		case 0:
			if c > hi {
				hi, hiIdx = c, i
			}
			if c < lo {
				lo, loIdx = c, i
			}
			switch {
			case c >= lo*(1+theta):
				mode, start = 1, loIdx
				hi, hiIdx = c, i
			case c <= hi*(1-theta):
				mode, start = -1, hiIdx
				lo, loIdx = c, i
			}
		case 1:
			if c > hi {
				hi, hiIdx = c, i
				continue
			}
			if c <= hi*(1-theta) {
				emit(1, hiIdx, i)
				mode, start = -1, hiIdx
				lo, loIdx = c, i
			}
		case -1:
			if c < lo {
				lo, loIdx = c, i
				continue
			}
			if c >= lo*(1+theta) {
				emit(-1, loIdx, i)
				mode, start = 1, loIdx
				hi, hiIdx = c, i
			}
		}
	}
	return events
}

func peakVolume(bars market.Bars, from, to int) int {
	best := from
	for i := from; i <= to; i++ {
		if bars[i].Volume > bars[best].Volume {
			best = i
		}
	}
	return best
}
