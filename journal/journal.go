// Package journal records backtest and live-loop history: closed trades,
// equity snapshots and regime snapshots, keyed by run id.
package journal

import (
	"errors"
	"time"
)

// TradeRecord is one closed position.
type TradeRecord struct {
	RunID      string
	TradeID    string // position id
	ProposalID string
	Underlying string
	Structure  string
	Regime     string // regime at entry
	Lots       int
	EntryPrice float64 // net premium per share, positive for a debit
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	Commission float64
	RealizedPL float64
	Reason     string
}

type EquitySnapshot struct {
	RunID         string
	Time          time.Time
	Equity        float64
	MarginUsed    float64
	HWM           float64
	Drawdown      float64
	OpenPositions int
}

// RegimeRecord is the classifier output for one cycle.
type RegimeRecord struct {
	RunID        string
	Time         time.Time
	Label        string
	AbnormalProb float64
	Confluence   int
	Alarm        bool
	Degraded     bool
	DCEvents     int
	BreakerMode  string
}

type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	RecordRegime(RegimeRecord) error
	Close() error
}

type multi []Journal

// Multi fans every record out to each journal in order.
func Multi(js ...Journal) Journal { return multi(js) }

func (m multi) RecordTrade(t TradeRecord) error {
	for _, j := range m {
		if err := j.RecordTrade(t); err != nil {
			return err
		}
	}
	return nil
}

func (m multi) RecordEquity(e EquitySnapshot) error {
	for _, j := range m {
		if err := j.RecordEquity(e); err != nil {
			return err
		}
	}
	return nil
}

func (m multi) RecordRegime(r RegimeRecord) error {
	for _, j := range m {
		if err := j.RecordRegime(r); err != nil {
			return err
		}
	}
	return nil
}

func (m multi) Close() error {
	var errs []error
	for _, j := range m {
		errs = append(errs, j.Close())
	}
	return errors.Join(errs...)
}
