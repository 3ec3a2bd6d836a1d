package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(run_id, trade_id, proposal_id, underlying, structure, regime, lots,
		 entry_price, exit_price, open_time, close_time, commission, realized_pl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.TradeID, t.ProposalID, t.Underlying, t.Structure, t.Regime, t.Lots,
		t.EntryPrice, t.ExitPrice, t.OpenTime, t.CloseTime, t.Commission, t.RealizedPL, t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(run_id, time, equity, margin_used, hwm, drawdown, open_positions)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Time, e.Equity, e.MarginUsed, e.HWM, e.Drawdown, e.OpenPositions,
	)
	return err
}

func (j *SQLite) RecordRegime(r RegimeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO regimes
		(run_id, time, label, abnormal_prob, confluence, alarm, degraded, dc_events, breaker_mode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Time, r.Label, r.AbnormalProb, r.Confluence, r.Alarm, r.Degraded, r.DCEvents, r.BreakerMode,
	)
	return err
}

func (j *SQLite) RecordBacktest(ctx context.Context, r BacktestRun) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO backtest_runs
		(run_id, created, underlying, dataset, config, start_time, end_time,
		 trades, wins, losses, start_balance, end_balance, net_pl, return_pct,
		 win_rate, profit_factor, max_dd_pct, sharpe, sortino, dc_events, alarms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created, r.Underlying, r.Dataset, r.Config, r.Start, r.End,
		r.Trades, r.Wins, r.Losses, r.StartBalance, r.EndBalance, r.NetPL, r.ReturnPct,
		r.WinRate, r.ProfitFactor, r.MaxDDPct, r.Sharpe, r.Sortino, r.DCEvents, r.Alarms,
	)
	return err
}

func (j *SQLite) GetBacktestRun(ctx context.Context, runID string) (BacktestRun, error) {
	var r BacktestRun
	err := j.db.QueryRowContext(ctx, `
		SELECT run_id, created, underlying, dataset, config, start_time, end_time,
		       trades, wins, losses, start_balance, end_balance, net_pl, return_pct,
		       win_rate, profit_factor, max_dd_pct, sharpe, sortino, dc_events, alarms
		FROM backtest_runs WHERE run_id = ?`, runID).Scan(
		&r.RunID, &r.Created, &r.Underlying, &r.Dataset, &r.Config, &r.Start, &r.End,
		&r.Trades, &r.Wins, &r.Losses, &r.StartBalance, &r.EndBalance, &r.NetPL, &r.ReturnPct,
		&r.WinRate, &r.ProfitFactor, &r.MaxDDPct, &r.Sharpe, &r.Sortino, &r.DCEvents, &r.Alarms,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return BacktestRun{}, fmt.Errorf("backtest run %q not found", runID)
	}
	return r, err
}

// ExportBacktestOrg loads a run and its trades and renders the Org report.
func (j *SQLite) ExportBacktestOrg(ctx context.Context, runID string) (string, error) {
	r, err := j.GetBacktestRun(ctx, runID)
	if err != nil {
		return "", err
	}
	trades, err := j.ListTradesByRunID(ctx, runID)
	if err != nil {
		return "", err
	}
	return r.Org(trades)
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
