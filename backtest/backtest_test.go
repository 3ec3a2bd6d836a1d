package backtest

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/regimetrader/config"
	"github.com/rustyeddy/regimetrader/execution"
	"github.com/rustyeddy/regimetrader/journal"
	"github.com/rustyeddy/regimetrader/market"
	"github.com/rustyeddy/regimetrader/regime"
)

var t0 = time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC)

func barsFromCloses(closes []float64) market.Bars {
	out := make(market.Bars, len(closes))
	prev := closes[0]
	for i, c := range closes {
		out[i] = market.Bar{
			Time:   t0.AddDate(0, 0, i),
			Open:   prev,
			High:   max(prev, c),
			Low:    min(prev, c),
			Close:  c,
			Volume: 1000,
		}
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

// swings is flat warmup followed by alternating 3% moves every five bars.
func swings() market.Bars {
	var closes []float64
	for i := 0; i < 40; i++ {
		closes = append(closes, 100)
	}
	p := 100.0
	for leg := 0; leg < 8; leg++ {
		step := 0.006
		if leg%2 == 1 {
			step = -0.006
		}
		for i := 0; i < 5; i++ {
			p *= 1 + step
			closes = append(closes, p)
		}
	}
	return barsFromCloses(closes)
}

func newSim(t *testing.T, opts ...Option) *Simulator {
	t.Helper()
	s, err := New(config.Default(), opts...)
	require.NoError(t, err)
	return s
}

func TestFlatSeriesRun(t *testing.T) {
	t.Parallel()
	bars := flatBars(60, 100)
	res, err := newSim(t).Run(context.Background(), bars, bars[30].Time, time.Time{})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "SPY", res.Underlying)
	assert.True(t, res.Start.Equal(bars[30].Time))
	assert.True(t, res.End.Equal(bars[59].Time))
	assert.Equal(t, 30, res.Cycles)
	assert.Zero(t, res.Errors)

	require.Len(t, res.Regimes, 30)
	for _, r := range res.Regimes {
		assert.Equal(t, string(regime.RangeBound), r.Label)
		assert.False(t, r.Alarm)
		assert.Equal(t, res.RunID, r.RunID)
	}
	assert.Zero(t, res.Summary.DCEvents)
	assert.Zero(t, res.Summary.Alarms)

	require.Len(t, res.Equity, 30)
	last := res.Equity[len(res.Equity)-1]
	assert.Zero(t, last.OpenPositions, "everything is flat after the last bar")

	realized := 0.0
	for _, tr := range res.Trades {
		assert.False(t, tr.CloseTime.IsZero())
		assert.False(t, tr.CloseTime.After(res.End))
		realized += tr.RealizedPL
	}
	assert.InDelta(t, 100000+realized, res.Summary.EndBalance, 1e-4)
	assert.Equal(t, 100000.0, res.Summary.StartBalance)
	assert.InDelta(t, realized, res.Summary.NetPL, 1e-4)
	assert.Equal(t, len(res.Trades), res.Summary.Trades)
}

func TestOpenPositionsCloseAtEnd(t *testing.T) {
	t.Parallel()
	bars := flatBars(60, 100)
	// a single cycle can open but never exit on its own
	res, err := newSim(t).Run(context.Background(), bars, bars[59].Time, bars[59].Time)
	require.NoError(t, err)
	require.Equal(t, 1, res.Cycles)

	for _, tr := range res.Trades {
		assert.Equal(t, string(execution.ExitEndOfTest), tr.Reason)
		assert.True(t, tr.CloseTime.Equal(bars[59].Time))
	}
	require.Len(t, res.Equity, 1)
	assert.Zero(t, res.Equity[0].OpenPositions)
}

func TestDirectionalChangeEventsCountedOverWindow(t *testing.T) {
	t.Parallel()
	bars := swings()
	start := bars[35].Time
	res, err := newSim(t).Run(context.Background(), bars, start, time.Time{})
	require.NoError(t, err)

	want := regime.DetectEvents(bars.Between(start, time.Time{}), config.Default().Regime.DCThreshold)
	require.NotEmpty(t, want)
	assert.Equal(t, len(want), res.Summary.DCEvents)
	assert.Len(t, res.Regimes, len(bars)-35)
}

func TestRunErrors(t *testing.T) {
	t.Parallel()
	bars := flatBars(40, 100)

	_, err := newSim(t).Run(context.Background(), bars, t0.AddDate(1, 0, 0), time.Time{})
	require.ErrorIs(t, err, ErrNoBars)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newSim(t).Run(ctx, bars, bars[30].Time, time.Time{})
	require.ErrorIs(t, err, context.Canceled)

	bad := config.Default()
	bad.Regime.ChaosConfluence = 0
	_, err = New(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "regime.chaos_confluence")
}

func TestRunWritesJournal(t *testing.T) {
	t.Parallel()
	db, err := journal.NewSQLite(filepath.Join(t.TempDir(), "bt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	bars := flatBars(45, 100)
	res, err := newSim(t, WithJournal(db)).Run(context.Background(), bars, bars[30].Time, time.Time{})
	require.NoError(t, err)

	ctx := context.Background()
	trades, err := db.ListTradesByRunID(ctx, res.RunID)
	require.NoError(t, err)
	assert.Len(t, trades, len(res.Trades))

	eq, err := db.ListEquityByRunID(ctx, res.RunID)
	require.NoError(t, err)
	assert.Len(t, eq, 15)

	regs, err := db.ListRegimesByRunID(ctx, res.RunID)
	require.NoError(t, err)
	assert.Len(t, regs, 15)

	run := res.Run("flat.csv", []byte("risk:\n  base_lots: 2\n"))
	require.NoError(t, db.RecordBacktest(ctx, run))
	got, err := db.GetBacktestRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "flat.csv", got.Dataset)
	assert.Equal(t, res.Summary.Trades, got.Trades)
}

func TestSweep(t *testing.T) {
	t.Parallel()
	bars := flatBars(50, 100)

	a := config.Default()
	b := config.Default()
	b.Risk.BaseLots = 1
	results, err := Sweep(context.Background(), []config.Config{a, b}, bars, bars[30].Time, time.Time{}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.NotEqual(t, results[0].RunID, results[1].RunID)
	for _, r := range results {
		assert.Equal(t, 20, r.Cycles)
		assert.Len(t, r.Regimes, 20)
	}

	bad := config.Default()
	bad.Backtest.Capital = 0
	_, err = Sweep(context.Background(), []config.Config{a, bad}, bars, time.Time{}, time.Time{}, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sweep config 1")
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	equity := []journal.EquitySnapshot{
		{Equity: 100}, {Equity: 110}, {Equity: 99}, {Equity: 120},
	}
	trades := []journal.TradeRecord{
		{RealizedPL: 50}, {RealizedPL: -25}, {RealizedPL: 30}, {RealizedPL: -10}, {RealizedPL: 0},
	}
	s := Summarize(trades, equity, 252)

	assert.Equal(t, 5, s.Trades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 2, s.Losses)
	assert.InDelta(t, 0.4, s.WinRate, 1e-12)
	assert.InDelta(t, 80.0/35.0, s.ProfitFactor, 1e-12)
	assert.InDelta(t, 40.0, s.AvgWin, 1e-12)
	assert.InDelta(t, -17.5, s.AvgLoss, 1e-12)

	assert.Equal(t, 100.0, s.StartBalance)
	assert.Equal(t, 120.0, s.EndBalance)
	assert.InDelta(t, 20.0, s.NetPL, 1e-12)
	assert.InDelta(t, 0.2, s.TotalReturn, 1e-12)
	assert.InDelta(t, 0.1, s.MaxDrawdown, 1e-12)
	assert.Greater(t, s.Sharpe, 0.0)
	assert.Greater(t, s.Sortino, s.Sharpe, "only one of three returns is negative")
}

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()
	s := Summarize(nil, nil, 252)
	assert.Equal(t, Summary{}, s)

	s = Summarize([]journal.TradeRecord{{RealizedPL: 5}}, []journal.EquitySnapshot{{Equity: 100}, {Equity: 100}}, 252)
	assert.Zero(t, s.ProfitFactor, "undefined without losses")
	assert.Zero(t, s.Sharpe)
	assert.Zero(t, s.Sortino)
	assert.Zero(t, s.MaxDrawdown)
}

func TestPrintBacktestRun(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	PrintBacktestRun(&buf, journal.BacktestRun{
		RunID:        "run-1",
		Underlying:   "SPY",
		Trades:       4,
		WinRate:      0.5,
		ProfitFactor: 1.5,
		DCEvents:     3,
		Notes:        []string{"quiet tape"},
	})
	out := buf.String()
	assert.Contains(t, out, "Run ID:        run-1")
	assert.Contains(t, out, "Win Rate:      50.00%")
	assert.Contains(t, out, "Profit Factor: 1.50")
	assert.Contains(t, out, "DC Events:     3")
	assert.Contains(t, out, "- quiet tape")
}
