package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/regimetrader/market"
	"github.com/rustyeddy/regimetrader/regime"
	"github.com/rustyeddy/regimetrader/sim"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify the regime of a bar series",
	Long: `Classify prints the regime snapshot at the last bar (or at --at) using
chain metrics from a synthetic chain priced at realized volatility.
With --all it prints one line per bar from the first classifiable bar.

Example:
  trader classify --bars data/spy.csv --at 2024-03-15`,
	RunE: runClassify,
}

var (
	clBarsPath string
	clAt       string
	clAll      bool
)

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().StringVarP(&clBarsPath, "bars", "b", "", "path to bar CSV (required)")
	classifyCmd.Flags().StringVar(&clAt, "at", "", "classify as of this time instead of the last bar")
	classifyCmd.Flags().BoolVar(&clAll, "all", false, "print the label of every bar")

	classifyCmd.MarkFlagRequired("bars")
}

func runClassify(cmd *cobra.Command, args []string) error {
	bars, err := market.LoadBarsCSV(clBarsPath)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}
	if clAt != "" {
		at, err := market.ParseTime(clAt)
		if err != nil {
			return fmt.Errorf("at: %w", err)
		}
		bars = bars.Until(at)
	}
	if len(bars) == 0 {
		return fmt.Errorf("no bars in %s", clBarsPath)
	}

	model, err := loadModel(cfg)
	if err != nil {
		return err
	}
	cal, err := cfg.Regime.Calendar()
	if err != nil {
		return err
	}
	c := regime.NewClassifier(cfg.Regime,
		regime.WithModel(model),
		regime.WithCalendar(cal),
		regime.WithLogger(logger))

	underlying := cfg.Loop.Underlying
	feed := sim.NewFeed(map[string]market.Bars{underlying: bars}, cfg.Backtest.VolWindow, cfg.Regime.PeriodsPerYear)
	feed.SetChainParams(cfg.ChainParams(underlying))

	classify := func(t time.Time) (regime.Snapshot, error) {
		history, err := feed.Bars(cmd.Context(), underlying, t, cfg.Loop.History)
		if err != nil {
			return regime.Snapshot{}, err
		}
		chain, err := feed.Chain(cmd.Context(), underlying, t)
		if err != nil {
			return regime.Snapshot{}, err
		}
		return c.Classify(history, chain.Metrics(cfg.Strategy.TargetDTE, cfg.Regime.SkewWingPct)), nil
	}

	out := cmd.OutOrStdout()
	if clAll {
		for i := cfg.Regime.MinBars() - 1; i < len(bars); i++ {
			s, err := classify(bars[i].Time)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s  %-12s p=%.3f conf=%d alarm=%t\n",
				bars[i].Time.Format("2006-01-02 15:04"), s.Label(), s.AbnormalProb(), s.Confluence(), s.Alarm())
		}
		return nil
	}

	last, _ := bars.Last()
	s, err := classify(last.Time)
	if err != nil {
		return err
	}
	printSnapshot(cmd, s)
	return nil
}

func printSnapshot(cmd *cobra.Command, s regime.Snapshot) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Time:          %s\n", s.Time().Format(time.RFC3339))
	fmt.Fprintf(out, "Label:         %s\n", s.Label())
	fmt.Fprintf(out, "Abnormal Prob: %.3f\n", s.AbnormalProb())
	fmt.Fprintf(out, "Confluence:    %d\n", s.Confluence())
	fmt.Fprintf(out, "DC Events:     %d\n", s.DCEvents())
	fmt.Fprintf(out, "Alarm:         %t\n", s.Alarm())
	fmt.Fprintf(out, "Blackout:      %t\n", s.Blackout())
	fmt.Fprintf(out, "Degraded:      %t\n", s.Degraded())
	if tr := s.Triggers(); len(tr) > 0 {
		fmt.Fprintf(out, "Triggers:      %s\n", strings.Join(tr, ", "))
	}
	fmt.Fprintln(out)
	for _, k := range s.MetricKeys() {
		v, _ := s.Metric(k)
		fmt.Fprintf(out, "  %-20s %.4f\n", k, v)
	}
}
