package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/regimetrader/config"
	"github.com/rustyeddy/regimetrader/internal/logging"
	"github.com/rustyeddy/regimetrader/market"
	"github.com/rustyeddy/regimetrader/regime"
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "Regime-driven multi-leg options decision engine",
	Long: `Trader classifies the market regime of an underlying, selects a
multi-leg options structure for it, sizes and gates it through a circuit
breaker and executes it as one unit.

It provides tools for:
  - Backtesting the full decision loop over historical bars
  - Sweeping several configurations in parallel
  - Classifying the regime of a bar series
  - Replaying bars through the live loop with Prometheus metrics
  - Querying the trade journal`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var (
	cfgFile   string
	logLevel  string
	logFormat string

	cfg    config.Config
	logger zerolog.Logger
)

// Execute adds all child commands to the root command and runs it with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); defaults apply when empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override log.format (console or json)")
}

// loadConfig reads the config file, applies the log flags and builds the
// logger shared by every command.
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.LoadFromFile(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if logFormat != "" {
		c.Log.Format = logFormat
	}
	l, err := logging.New(c.Log.Level, c.Log.Format, os.Stderr)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	return nil
}

// parseWindow parses optional start and end bounds.
func parseWindow(start, end string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if start != "" {
		if from, err = market.ParseTime(start); err != nil {
			return from, to, fmt.Errorf("start: %w", err)
		}
	}
	if end != "" {
		if to, err = market.ParseTime(end); err != nil {
			return from, to, fmt.Errorf("end: %w", err)
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, fmt.Errorf("end %s before start %s", end, start)
	}
	return from, to, nil
}

// loadCompanions reads SYMBOL=path pairs and records the symbols as loop
// companions on c.
func loadCompanions(c *config.Config, pairs map[string]string) (map[string]market.Bars, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	series := make(map[string]market.Bars, len(pairs))
	syms := make([]string, 0, len(pairs))
	for sym, path := range pairs {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		bars, err := market.LoadBarsCSV(path)
		if err != nil {
			return nil, fmt.Errorf("companion %s: %w", sym, err)
		}
		series[sym] = bars
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	c.Loop.Companions = syms
	return series, nil
}

// loadModel loads the classifier model named by the config, if any.
func loadModel(c config.Config) (*regime.Model, error) {
	if c.Regime.ModelPath == "" {
		return nil, nil
	}
	return regime.LoadModel(c.Regime.ModelPath)
}
