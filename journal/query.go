package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const tradeColumns = `run_id, trade_id, proposal_id, underlying, structure, regime, lots,
	entry_price, exit_price, open_time, close_time, commission, realized_pl, reason`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var rec TradeRecord
	err := s.Scan(
		&rec.RunID,
		&rec.TradeID,
		&rec.ProposalID,
		&rec.Underlying,
		&rec.Structure,
		&rec.Regime,
		&rec.Lots,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.OpenTime,
		&rec.CloseTime,
		&rec.Commission,
		&rec.RealizedPL,
		&rec.Reason,
	)
	return rec, err
}

func collectTrades(rows *sql.Rows, err error) ([]TradeRecord, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	rec, err := scanTrade(j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, tradeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q not found", tradeID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTradesClosedBetween returns trades whose close_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	return collectTrades(j.db.Query(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC`, start, end))
}

func (j *SQLite) ListTradesByRunID(ctx context.Context, runID string) ([]TradeRecord, error) {
	return collectTrades(j.db.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE run_id = ?
		ORDER BY close_time ASC, trade_id ASC`, runID))
}

// ListEquityBetween returns snapshots of every run with time in [start, end).
func (j *SQLite) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	return j.equity(context.Background(), `WHERE time >= ? AND time < ?`, start, end)
}

func (j *SQLite) ListEquityByRunID(ctx context.Context, runID string) ([]EquitySnapshot, error) {
	return j.equity(ctx, `WHERE run_id = ?`, runID)
}

func (j *SQLite) equity(ctx context.Context, where string, args ...any) ([]EquitySnapshot, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, time, equity, margin_used, hwm, drawdown, open_positions
		FROM equity `+where+`
		ORDER BY time ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.RunID, &e.Time, &e.Equity, &e.MarginUsed, &e.HWM, &e.Drawdown, &e.OpenPositions); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (j *SQLite) ListRegimesByRunID(ctx context.Context, runID string) ([]RegimeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, time, label, abnormal_prob, confluence, alarm, degraded, dc_events, breaker_mode
		FROM regimes
		WHERE run_id = ?
		ORDER BY time ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RegimeRecord
	for rows.Next() {
		var r RegimeRecord
		if err := rows.Scan(&r.RunID, &r.Time, &r.Label, &r.AbnormalProb, &r.Confluence, &r.Alarm, &r.Degraded, &r.DCEvents, &r.BreakerMode); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
