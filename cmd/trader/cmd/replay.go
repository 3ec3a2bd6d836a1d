package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/regimetrader/execution"
	"github.com/rustyeddy/regimetrader/internal/metrics"
	"github.com/rustyeddy/regimetrader/market"
	"github.com/rustyeddy/regimetrader/orchestrator"
	"github.com/rustyeddy/regimetrader/regime"
	"github.com/rustyeddy/regimetrader/risk"
	"github.com/rustyeddy/regimetrader/sim"
	"github.com/rustyeddy/regimetrader/strategy"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay bars through the live loop",
	Long: `Replay drives the live loop with a clock that advances one bar per
tick, against a replaying feed and the simulated broker. Prometheus
metrics are served on --metrics-addr while it runs. Session hours are
ignored so every bar is a cycle.

Example:
  trader replay --bars data/spy.csv --interval 200ms --metrics-addr :9090`,
	RunE: runReplay,
}

var (
	rpBarsPath    string
	rpInterval    time.Duration
	rpMetricsAddr string
	rpCapital     float64
	rpCompanions  map[string]string
)

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVarP(&rpBarsPath, "bars", "b", "", "path to bar CSV of the underlying (required)")
	replayCmd.Flags().DurationVar(&rpInterval, "interval", time.Second, "wall-clock time between bars")
	replayCmd.Flags().StringVar(&rpMetricsAddr, "metrics-addr", "", "serve /metrics on this address")
	replayCmd.Flags().Float64Var(&rpCapital, "capital", 0, "starting capital (overrides backtest.capital)")
	replayCmd.Flags().StringToStringVar(&rpCompanions, "companion", nil, "companion bars as SYMBOL=path (repeatable)")

	replayCmd.MarkFlagRequired("bars")
}

// replayClock hands out bar times. Next advances and cancels the run once
// the bars are exhausted.
type replayClock struct {
	bars   market.Bars
	i      atomic.Int64
	cancel context.CancelFunc
}

func (c *replayClock) Now() time.Time {
	i := int(c.i.Load())
	if i <= 0 {
		return c.bars[0].Time
	}
	return c.bars[min(i, len(c.bars))-1].Time
}

func (c *replayClock) Next() time.Time {
	i := int(c.i.Add(1))
	if i > len(c.bars) {
		c.cancel()
		return time.Time{}
	}
	return c.bars[i-1].Time
}

func runReplay(cmd *cobra.Command, args []string) error {
	c := cfg
	if rpCapital > 0 {
		c.Backtest.Capital = rpCapital
	}
	bars, err := market.LoadBarsCSV(rpBarsPath)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}
	warm := c.Regime.MinBars()
	if len(bars) <= warm {
		return fmt.Errorf("need more than %d bars, have %d", warm, len(bars))
	}
	companions, err := loadCompanions(&c, rpCompanions)
	if err != nil {
		return err
	}
	model, err := loadModel(c)
	if err != nil {
		return err
	}
	cal, err := c.Regime.Calendar()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	clock := &replayClock{bars: bars, cancel: cancel}
	clock.i.Store(int64(warm - 1))

	underlying := c.Loop.Underlying
	series := map[string]market.Bars{underlying: bars}
	for sym, bs := range companions {
		series[sym] = bs
	}
	feed := sim.NewFeed(series, c.Backtest.VolWindow, c.Regime.PeriodsPerYear)
	feed.MinDTE = c.Backtest.Chain.MinDTE
	feed.MaxDTE = c.Backtest.Chain.MaxDTE
	feed.SetChainParams(c.ChainParams(underlying))
	broker := sim.NewBroker(c.Backtest.Cost, feed, clock.Now, logger)
	ledger := sim.NewLedger(c.Backtest.Capital)

	m := metrics.New()
	if rpMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: rpMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server")
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
		logger.Info().Str("addr", rpMetricsAddr).Msg("serving metrics")
	}

	loop := c.Loop
	loop.Interval = rpInterval
	loop.SessionStart, loop.SessionEnd, loop.Timezone = "", "", ""

	orch, err := orchestrator.New(orchestrator.Deps{
		Config:    loop,
		Execution: c.Execution,
		Feed:      feed,
		Ledger:    ledger,
		Transport: broker,
		Classifier: regime.NewClassifier(c.Regime,
			regime.WithModel(model),
			regime.WithCalendar(cal),
			regime.WithLogger(logger)),
		Selector:          strategy.NewSelector(c.Strategy, logger),
		Risk:              risk.NewManager(c.Risk, logger),
		CorrelationWindow: c.Regime.CorrelationWindow,
		SkewWingPct:       c.Regime.SkewWingPct,
		Metrics:           m,
		Log:               logger,
		Clock:             clock.Next,
	})
	if err != nil {
		return err
	}

	if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	// the loop context is done; flatten on a fresh one
	end := clock.Now()
	closed, err := orch.CloseAll(context.WithoutCancel(ctx), end, execution.ExitEndOfTest)
	if err != nil {
		return fmt.Errorf("close all: %w", err)
	}
	acct, err := ledger.Account(context.WithoutCancel(ctx), end)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nReplay complete!\n")
	fmt.Fprintf(out, "  Last bar:    %s\n", end.Format(time.RFC3339))
	fmt.Fprintf(out, "  Regime:      %s\n", orch.Last().Label())
	fmt.Fprintf(out, "  Breaker:     %s\n", orch.BreakerState().Mode)
	fmt.Fprintf(out, "  Flattened:   %d\n", len(closed))
	fmt.Fprintf(out, "  Equity:      $%.2f\n", acct.Equity)
	fmt.Fprintf(out, "  Profit/Loss: $%.2f\n", acct.Equity-c.Backtest.Capital)
	return nil
}
