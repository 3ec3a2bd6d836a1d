package backtest

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/rustyeddy/regimetrader/indicators"
	"github.com/rustyeddy/regimetrader/journal"
)

// Result is everything one run produced.
type Result struct {
	RunID      string
	Underlying string
	Start      time.Time
	End        time.Time

	Trades  []journal.TradeRecord
	Equity  []journal.EquitySnapshot
	Regimes []journal.RegimeRecord

	Cycles int
	Errors int // cycles that returned an error

	Summary Summary
}

// Summary holds the run statistics. Fractions, not percentages.
type Summary struct {
	StartBalance float64
	EndBalance   float64
	NetPL        float64
	TotalReturn  float64

	Sharpe      float64 // annualised
	Sortino     float64 // annualised
	MaxDrawdown float64

	Trades       int
	Wins         int
	Losses       int
	WinRate      float64
	ProfitFactor float64 // 0 when there are no losing trades
	AvgWin       float64
	AvgLoss      float64 // negative

	DCEvents int
	Alarms   int
}

// Summarize computes trade and equity statistics. periodsPerYear
// annualises the per-point equity returns. StartBalance is the first
// equity point; callers that know the capital overwrite it.
func Summarize(trades []journal.TradeRecord, equity []journal.EquitySnapshot, periodsPerYear float64) Summary {
	var s Summary

	grossWin, grossLoss := 0.0, 0.0
	for _, t := range trades {
		s.Trades++
		switch {
		case t.RealizedPL > 0:
			s.Wins++
			grossWin += t.RealizedPL
		case t.RealizedPL < 0:
			s.Losses++
			grossLoss += t.RealizedPL
		}
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
	}
	if s.Wins > 0 {
		s.AvgWin = grossWin / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = grossLoss / float64(s.Losses)
		s.ProfitFactor = grossWin / -grossLoss
	}

	if len(equity) == 0 {
		return s
	}
	s.EndBalance = equity[len(equity)-1].Equity
	s.finish(equity[0].Equity)

	peak := equity[0].Equity
	returns := make([]float64, 0, len(equity)-1)
	for i, e := range equity {
		if e.Equity > peak {
			peak = e.Equity
		}
		if peak > 0 {
			s.MaxDrawdown = max(s.MaxDrawdown, (peak-e.Equity)/peak)
		}
		if i > 0 && equity[i-1].Equity > 0 {
			returns = append(returns, e.Equity/equity[i-1].Equity-1)
		}
	}
	s.Sharpe, s.Sortino = ratios(returns, periodsPerYear)
	return s
}

// finish fixes the balances to the known starting capital.
func (s *Summary) finish(capital float64) {
	s.StartBalance = capital
	s.NetPL = s.EndBalance - capital
	if capital > 0 {
		s.TotalReturn = s.NetPL / capital
	}
}

// ratios returns the annualised Sharpe and Sortino ratios of returns with a
// zero risk-free rate. Either is 0 when its deviation is 0.
func ratios(returns []float64, periodsPerYear float64) (sharpe, sortino float64) {
	if len(returns) < 2 {
		return 0, 0
	}
	mean := indicators.Mean(returns)
	ann := math.Sqrt(periodsPerYear)

	if sd := indicators.StdDev(returns); sd > 0 {
		sharpe = mean / sd * ann
	}
	down := 0.0
	for _, r := range returns {
		if r < 0 {
			down += r * r
		}
	}
	if dd := math.Sqrt(down / float64(len(returns))); dd > 0 {
		sortino = mean / dd * ann
	}
	return sharpe, sortino
}

// Run converts the result into a backtest_runs row.
func (r Result) Run(dataset string, cfgYAML []byte) journal.BacktestRun {
	s := r.Summary
	return journal.BacktestRun{
		RunID:        r.RunID,
		Created:      time.Now().UTC(),
		Underlying:   r.Underlying,
		Dataset:      dataset,
		Config:       cfgYAML,
		Start:        r.Start,
		End:          r.End,
		Trades:       s.Trades,
		Wins:         s.Wins,
		Losses:       s.Losses,
		StartBalance: s.StartBalance,
		EndBalance:   s.EndBalance,
		NetPL:        s.NetPL,
		ReturnPct:    s.TotalReturn * 100,
		WinRate:      s.WinRate,
		ProfitFactor: s.ProfitFactor,
		MaxDDPct:     s.MaxDrawdown * 100,
		Sharpe:       s.Sharpe,
		Sortino:      s.Sortino,
		DCEvents:     s.DCEvents,
		Alarms:       s.Alarms,
	}
}

func PrintBacktestRun(w io.Writer, r journal.BacktestRun) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Run ID:        %s\n", r.RunID)
	fmt.Fprintf(w, "Underlying:    %s\n", r.Underlying)
	if r.Dataset != "" {
		fmt.Fprintf(w, "Dataset:       %s\n", r.Dataset)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", r.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", r.End.Format(time.RFC3339))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %d\n", r.Trades)
	fmt.Fprintf(w, "Wins:          %d\n", r.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", r.Losses)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", r.WinRate*100)
	if r.ProfitFactor > 0 {
		fmt.Fprintf(w, "Profit Factor: %.2f\n", r.ProfitFactor)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Balance: %.2f\n", r.StartBalance)
	fmt.Fprintf(w, "End Balance:   %.2f\n", r.EndBalance)
	fmt.Fprintf(w, "Net P/L:       %.2f\n", r.NetPL)
	fmt.Fprintf(w, "Return:        %.2f%%\n", r.ReturnPct)
	fmt.Fprintf(w, "Max Drawdown:  %.2f%%\n", r.MaxDDPct)
	fmt.Fprintf(w, "Sharpe:        %.2f\n", r.Sharpe)
	fmt.Fprintf(w, "Sortino:       %.2f\n", r.Sortino)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Regime")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "DC Events:     %d\n", r.DCEvents)
	fmt.Fprintf(w, "Alarms:        %d\n", r.Alarms)

	if r.OrgPath != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Org Report:    %s\n", r.OrgPath)
	}

	if len(r.Notes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Observations")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, note := range r.Notes {
			fmt.Fprintf(w, "- %s\n", note)
		}
	}

	fmt.Fprintln(w)
}
