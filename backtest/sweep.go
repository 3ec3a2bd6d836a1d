package backtest

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/regimetrader/config"
	"github.com/rustyeddy/regimetrader/market"
)

// Sweep runs one isolated simulation per configuration over the same bars,
// at most parallel at a time. Results come back in cfgs order. The first
// failure cancels the remaining runs. Options are shared by every run, so
// a journal passed with WithJournal must be safe for concurrent use.
func Sweep(ctx context.Context, cfgs []config.Config, bars market.Bars, start, end time.Time, parallel int, opts ...Option) ([]Result, error) {
	if parallel < 1 {
		parallel = 1
	}
	sims := make([]*Simulator, len(cfgs))
	for i, c := range cfgs {
		s, err := New(c, opts...)
		if err != nil {
			return nil, fmt.Errorf("sweep config %d: %w", i, err)
		}
		sims[i] = s
	}

	results := make([]Result, len(cfgs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, s := range sims {
		i, s := i, s
		g.Go(func() error {
			r, err := s.Run(ctx, bars, start, end)
			if err != nil {
				return fmt.Errorf("sweep config %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
