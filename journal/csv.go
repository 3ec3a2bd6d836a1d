package journal

import (
	"encoding/csv"
	"errors"
	"os"
	"strconv"
	"time"
)

var (
	tradeHeader  = []string{"run_id", "trade_id", "proposal_id", "underlying", "structure", "regime", "lots", "entry_price", "exit_price", "open_time", "close_time", "commission", "realized_pl", "reason"}
	equityHeader = []string{"run_id", "time", "equity", "margin_used", "hwm", "drawdown", "open_positions"}
	regimeHeader = []string{"run_id", "time", "label", "abnormal_prob", "confluence", "alarm", "degraded", "dc_events", "breaker_mode"}
)

// CSVJournal writes one file per record kind. An empty path skips that
// kind.
type CSVJournal struct {
	trades, equity, regimes *csv.Writer
	files                   []*os.File
}

func NewCSV(tradesPath, equityPath, regimesPath string) (*CSVJournal, error) {
	j := &CSVJournal{}
	for _, f := range []struct {
		path   string
		header []string
		dst    **csv.Writer
	}{
		{tradesPath, tradeHeader, &j.trades},
		{equityPath, equityHeader, &j.equity},
		{regimesPath, regimeHeader, &j.regimes},
	} {
		if f.path == "" {
			continue
		}
		fh, err := os.Create(f.path)
		if err != nil {
			_ = j.Close()
			return nil, err
		}
		j.files = append(j.files, fh)
		w := csv.NewWriter(fh)
		if err := write(w, f.header); err != nil {
			_ = j.Close()
			return nil, err
		}
		*f.dst = w
	}
	return j, nil
}

func write(w *csv.Writer, row []string) error {
	if w == nil {
		return nil
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	return write(j.trades, []string{
		t.RunID,
		t.TradeID,
		t.ProposalID,
		t.Underlying,
		t.Structure,
		t.Regime,
		strconv.Itoa(t.Lots),
		f(t.EntryPrice),
		f(t.ExitPrice),
		t.OpenTime.Format(time.RFC3339),
		t.CloseTime.Format(time.RFC3339),
		f(t.Commission),
		f(t.RealizedPL),
		t.Reason,
	})
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	return write(j.equity, []string{
		e.RunID,
		e.Time.Format(time.RFC3339),
		f(e.Equity),
		f(e.MarginUsed),
		f(e.HWM),
		f(e.Drawdown),
		strconv.Itoa(e.OpenPositions),
	})
}

func (j *CSVJournal) RecordRegime(r RegimeRecord) error {
	return write(j.regimes, []string{
		r.RunID,
		r.Time.Format(time.RFC3339),
		r.Label,
		f(r.AbnormalProb),
		strconv.Itoa(r.Confluence),
		strconv.FormatBool(r.Alarm),
		strconv.FormatBool(r.Degraded),
		strconv.Itoa(r.DCEvents),
		r.BreakerMode,
	})
}

func (j *CSVJournal) Close() error {
	var errs []error
	for _, w := range []*csv.Writer{j.trades, j.equity, j.regimes} {
		if w != nil {
			w.Flush()
			errs = append(errs, w.Error())
		}
	}
	for _, fh := range j.files {
		errs = append(errs, fh.Close())
	}
	return errors.Join(errs...)
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
