package cmd

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/regimetrader/backtest"
	"github.com/rustyeddy/regimetrader/config"
	"github.com/rustyeddy/regimetrader/journal"
	"github.com/rustyeddy/regimetrader/market"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Backtest several configurations in parallel",
	Long: `Sweep runs one isolated backtest per configuration file over the same
bars and prints a comparison table. Runs are recorded to the SQLite journal
when --db is set.

Example:
  trader sweep --bars data/spy.csv --configs base.yaml,chaos3.yaml --parallel 2`,
	RunE: runSweep,
}

var (
	swBarsPath   string
	swStart      string
	swEnd        string
	swConfigs    []string
	swParallel   int
	swDBPath     string
	swCompanions map[string]string
)

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().StringVarP(&swBarsPath, "bars", "b", "", "path to bar CSV of the underlying (required)")
	sweepCmd.Flags().StringVar(&swStart, "start", "", "first bar to trade")
	sweepCmd.Flags().StringVar(&swEnd, "end", "", "last bar to trade")
	sweepCmd.Flags().StringSliceVar(&swConfigs, "configs", nil, "comma separated config files, one run each (required)")
	sweepCmd.Flags().IntVarP(&swParallel, "parallel", "p", 0, "concurrent runs (default backtest.parallel)")
	sweepCmd.Flags().StringVarP(&swDBPath, "db", "d", "", "SQLite journal path for run summaries")
	sweepCmd.Flags().StringToStringVar(&swCompanions, "companion", nil, "companion bars as SYMBOL=path (repeatable)")

	sweepCmd.MarkFlagRequired("bars")
	sweepCmd.MarkFlagRequired("configs")
}

func runSweep(cmd *cobra.Command, args []string) error {
	bars, err := market.LoadBarsCSV(swBarsPath)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}
	start, end, err := parseWindow(swStart, swEnd)
	if err != nil {
		return err
	}

	cfgs := make([]config.Config, len(swConfigs))
	var companions map[string]market.Bars
	for i, path := range swConfigs {
		c, err := config.LoadFromFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if companions, err = loadCompanions(&c, swCompanions); err != nil {
			return err
		}
		cfgs[i] = c
	}

	parallel := swParallel
	if parallel <= 0 {
		parallel = cfg.Backtest.Parallel
	}
	results, err := backtest.Sweep(cmd.Context(), cfgs, bars, start, end, parallel,
		backtest.WithCompanions(companions),
		backtest.WithLogger(logger))
	if err != nil {
		return err
	}

	var db *journal.SQLite
	if swDBPath != "" {
		if db, err = journal.NewSQLite(swDBPath); err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONFIG\tRUN\tTRADES\tRETURN%\tMAX DD%\tSHARPE\tSORTINO\tWIN%\tPF\tDC\tALARMS")
	for i, r := range results {
		raw, _ := yaml.Marshal(cfgs[i])
		run := r.Run(filepath.Base(swBarsPath), raw)
		if db != nil {
			if err := db.RecordBacktest(cmd.Context(), run); err != nil {
				return fmt.Errorf("record run: %w", err)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.1f\t%.2f\t%d\t%d\n",
			filepath.Base(swConfigs[i]), shortRunID(run.RunID), run.Trades, run.ReturnPct, run.MaxDDPct,
			run.Sharpe, run.Sortino, run.WinRate*100, run.ProfitFactor, run.DCEvents, run.Alarms)
	}
	return w.Flush()
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
