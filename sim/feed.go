package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/regimetrader/indicators"
	"github.com/rustyeddy/regimetrader/market"
	"github.com/rustyeddy/regimetrader/pricing"
)

// Feed serves historical bars and synthetic chains priced at realized
// volatility. It never returns data after the requested time. Chains list
// Friday expiries between MinDTE and MaxDTE days out, so a contract keeps
// its symbol from one day to the next.
type Feed struct {
	bars      map[string]market.Bars
	params    map[string]pricing.ChainParams
	volWindow int
	ppy       float64

	MinDTE int
	MaxDTE int
}

// NewFeed serves series keyed by instrument. Chains use DefaultChainParams
// unless SetChainParams overrides them.
func NewFeed(series map[string]market.Bars, volWindow int, periodsPerYear float64) *Feed {
	return &Feed{
		bars:      series,
		params:    map[string]pricing.ChainParams{},
		volWindow: volWindow,
		ppy:       periodsPerYear,
		MinDTE:    14,
		MaxDTE:    70,
	}
}

func (f *Feed) SetChainParams(p pricing.ChainParams) { f.params[p.Underlying] = p }

func (f *Feed) Bars(ctx context.Context, instrument string, end time.Time, n int) (market.Bars, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bs, ok := f.bars[instrument]
	if !ok {
		return nil, fmt.Errorf("sim feed: unknown instrument %q", instrument)
	}
	return bs.Until(end).Tail(n), nil
}

func (f *Feed) Chain(ctx context.Context, underlying string, at time.Time) (market.OptionChain, error) {
	bs, err := f.Bars(ctx, underlying, at, f.volWindow+1)
	if err != nil {
		return market.OptionChain{}, err
	}
	last, ok := bs.Last()
	if !ok {
		return market.OptionChain{}, fmt.Errorf("sim feed: no %s bars at %s", underlying, at.Format(time.RFC3339))
	}
	p, ok := f.params[underlying]
	if !ok {
		p = pricing.DefaultChainParams(underlying)
	}
	p.ExpiryDays = fridays(last.Time, f.MinDTE, f.MaxDTE)
	vol := indicators.RealizedVol(bs, f.volWindow, f.ppy)
	return pricing.SyntheticChain(last.Close, vol, last.Time, p), nil
}

// fridays returns the day offsets from t to every Friday in [lo, hi].
func fridays(t time.Time, lo, hi int) []int {
	var out []int
	for d := lo; d <= hi; d++ {
		if t.AddDate(0, 0, d).Weekday() == time.Friday {
			out = append(out, d)
		}
	}
	return out
}
