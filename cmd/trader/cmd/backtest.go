package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/regimetrader/backtest"
	"github.com/rustyeddy/regimetrader/config"
	"github.com/rustyeddy/regimetrader/journal"
	"github.com/rustyeddy/regimetrader/market"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run the decision loop over historical bars",
	Long: `Backtest replays a bar CSV (time,open,high,low,close[,volume]) through
the full loop: regime classification, structure selection, risk gating,
simulated fills against synthetic option chains and exit monitoring.
Positions still open after the last bar close as END_OF_BACKTEST.

Example:
  trader backtest --bars data/spy.csv --start 2023-01-03 --db backtest.sqlite`,
	RunE: runBacktest,
}

var (
	btBarsPath   string
	btStart      string
	btEnd        string
	btCapital    float64
	btDBPath     string
	btTradesCSV  string
	btEquityCSV  string
	btRegimesCSV string
	btOrgDir     string
	btCompanions map[string]string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btBarsPath, "bars", "b", "", "path to bar CSV of the underlying (required)")
	backtestCmd.Flags().StringVar(&btStart, "start", "", "first bar to trade (RFC3339 or YYYY-MM-DD); earlier bars are history")
	backtestCmd.Flags().StringVar(&btEnd, "end", "", "last bar to trade")
	backtestCmd.Flags().Float64Var(&btCapital, "capital", 0, "starting capital (overrides backtest.capital)")
	backtestCmd.Flags().StringVarP(&btDBPath, "db", "d", "", "SQLite journal path (overrides journal.db_path)")
	backtestCmd.Flags().StringVar(&btTradesCSV, "trades-csv", "", "trades CSV path")
	backtestCmd.Flags().StringVar(&btEquityCSV, "equity-csv", "", "equity CSV path")
	backtestCmd.Flags().StringVar(&btRegimesCSV, "regimes-csv", "", "regime snapshots CSV path")
	backtestCmd.Flags().StringVar(&btOrgDir, "org-dir", "", "directory for the Org report")
	backtestCmd.Flags().StringToStringVar(&btCompanions, "companion", nil, "companion bars as SYMBOL=path (repeatable)")

	backtestCmd.MarkFlagRequired("bars")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	c := cfg
	if btCapital > 0 {
		c.Backtest.Capital = btCapital
	}
	setIf(&c.Journal.DBPath, btDBPath)
	setIf(&c.Journal.TradesCSV, btTradesCSV)
	setIf(&c.Journal.EquityCSV, btEquityCSV)
	setIf(&c.Journal.RegimesCSV, btRegimesCSV)
	setIf(&c.Journal.OrgDir, btOrgDir)

	bars, err := market.LoadBarsCSV(btBarsPath)
	if err != nil {
		return fmt.Errorf("load bars: %w", err)
	}
	start, end, err := parseWindow(btStart, btEnd)
	if err != nil {
		return err
	}
	companions, err := loadCompanions(&c, btCompanions)
	if err != nil {
		return err
	}
	model, err := loadModel(c)
	if err != nil {
		return err
	}

	sinks, db, err := openJournals(c.Journal)
	if err != nil {
		return err
	}
	defer sinks.Close()

	sim, err := backtest.New(c,
		backtest.WithJournal(sinks),
		backtest.WithCompanions(companions),
		backtest.WithModel(model),
		backtest.WithLogger(logger))
	if err != nil {
		return err
	}

	res, err := sim.Run(cmd.Context(), bars, start, end)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	raw, _ := yaml.Marshal(c)
	run := res.Run(filepath.Base(btBarsPath), raw)
	if c.Journal.OrgDir != "" {
		if err := os.MkdirAll(c.Journal.OrgDir, 0755); err != nil {
			return err
		}
		run.OrgPath = filepath.Join(c.Journal.OrgDir, run.RunID+".org")
		if err := run.WriteBacktestOrg(res.Trades); err != nil {
			return fmt.Errorf("org report: %w", err)
		}
	}
	if db != nil {
		if err := db.RecordBacktest(cmd.Context(), run); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
	}

	backtest.PrintBacktestRun(cmd.OutOrStdout(), run)
	return nil
}

// openJournals opens every configured sink. db is nil without a DBPath.
// The returned journal is never nil.
func openJournals(jc config.JournalConfig) (journal.Journal, *journal.SQLite, error) {
	var sinks []journal.Journal
	var db *journal.SQLite
	if jc.DBPath != "" {
		var err error
		if db, err = journal.NewSQLite(jc.DBPath); err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		sinks = append(sinks, db)
	}
	if jc.TradesCSV != "" || jc.EquityCSV != "" || jc.RegimesCSV != "" {
		csvj, err := journal.NewCSV(jc.TradesCSV, jc.EquityCSV, jc.RegimesCSV)
		if err != nil {
			if db != nil {
				_ = db.Close()
			}
			return nil, nil, fmt.Errorf("open csv journal: %w", err)
		}
		sinks = append(sinks, csvj)
	}
	return journal.Multi(sinks...), db, nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
