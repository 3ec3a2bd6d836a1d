package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/regimetrader/execution"
	"github.com/rustyeddy/regimetrader/risk"
)

type realized struct {
	at  time.Time
	pnl decimal.Decimal
}

// Ledger keeps cash in decimal and marks open positions to the last value
// the caller reported. Premium paid or received moves cash at open and
// close; equity is cash plus the marked value of open positions.
type Ledger struct {
	mu   sync.Mutex
	cash decimal.Decimal
	hwm  decimal.Decimal
	open map[string]execution.Position
	// entry commission per open position, to split the close commission
	// out of the position total.
	entryFees map[string]float64
	history   []realized
}

func NewLedger(capital float64) *Ledger {
	c := decimal.NewFromFloat(capital)
	return &Ledger{
		cash:      c,
		hwm:       c,
		open:      make(map[string]execution.Position),
		entryFees: make(map[string]float64),
	}
}

func premium(price, multiplier float64, lots int) decimal.Decimal {
	return decimal.NewFromFloat(price).
		Mul(decimal.NewFromFloat(multiplier)).
		Mul(decimal.NewFromInt(int64(lots)))
}

// Opened books the entry premium and commission of pos.
func (l *Ledger) Opened(ctx context.Context, pos execution.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.open[pos.ID]; dup {
		return fmt.Errorf("ledger: position %s already open", pos.ID)
	}
	l.cash = l.cash.
		Sub(premium(pos.EntryPrice, pos.Multiplier(), pos.Lots)).
		Sub(decimal.NewFromFloat(pos.Commission))
	l.open[pos.ID] = pos
	l.entryFees[pos.ID] = pos.Commission
	return nil
}

// Closed books the exit premium and the close commission and records the
// realized P&L at the close time.
func (l *Ledger) Closed(ctx context.Context, pos execution.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.open[pos.ID]; !ok {
		return fmt.Errorf("ledger: position %s is not open", pos.ID)
	}
	fee := pos.Commission - l.entryFees[pos.ID]
	l.cash = l.cash.
		Add(premium(pos.ExitPrice, pos.Multiplier(), pos.Lots)).
		Sub(decimal.NewFromFloat(fee))
	l.history = append(l.history, realized{at: pos.ClosedAt, pnl: decimal.NewFromFloat(pos.RealizedPnL)})
	delete(l.open, pos.ID)
	delete(l.entryFees, pos.ID)
	l.touch()
	return nil
}

// Marked replaces the stored marks of the given open positions.
func (l *Ledger) Marked(ctx context.Context, positions []execution.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range positions {
		if _, ok := l.open[p.ID]; ok && p.Status == execution.Open {
			l.open[p.ID] = p
		}
	}
	l.touch()
	return nil
}

// Account returns the snapshot as of now. Realized P&L is summed over the
// calendar day, the Monday-based week and the month containing now.
func (l *Ledger) Account(ctx context.Context, now time.Time) (risk.AccountState, error) {
	if err := ctx.Err(); err != nil {
		return risk.AccountState{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.touch()

	eq := l.equity()
	st := risk.AccountState{
		Equity: eq.InexactFloat64(),
		HWM:    l.hwm.InexactFloat64(),
	}

	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	week := day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	var d, w, m decimal.Decimal
	for _, r := range l.history {
		if r.at.After(now) {
			continue
		}
		if !r.at.Before(day) {
			d = d.Add(r.pnl)
		}
		if !r.at.Before(week) {
			w = w.Add(r.pnl)
		}
		if !r.at.Before(month) {
			m = m.Add(r.pnl)
		}
	}
	st.DayRealized = d.InexactFloat64()
	st.WeekRealized = w.InexactFloat64()
	st.MonthRealized = m.InexactFloat64()

	for _, p := range l.sorted() {
		e := risk.Exposure{
			ID:         p.ID,
			Underlying: p.Underlying(),
			Structure:  p.Proposal.Structure,
			Lots:       p.Lots,
			Margin:     p.Margin(),
			Greeks:     p.Greeks(),
		}
		st.MarginUsed += e.Margin
		st.PortfolioGreeks = st.PortfolioGreeks.Add(e.Greeks)
		st.OpenPositions = append(st.OpenPositions, e)
	}
	return st, nil
}

// Cash is the settled balance.
func (l *Ledger) Cash() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash.InexactFloat64()
}

// Open returns the open positions in id order.
func (l *Ledger) Open() []execution.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sorted()
}

func (l *Ledger) equity() decimal.Decimal {
	eq := l.cash
	for _, p := range l.open {
		eq = eq.Add(premium(p.Mark, p.Multiplier(), p.Lots))
	}
	return eq
}

func (l *Ledger) touch() {
	if eq := l.equity(); eq.GreaterThan(l.hwm) {
		l.hwm = eq
	}
}

func (l *Ledger) sorted() []execution.Position {
	out := make([]execution.Position, 0, len(l.open))
	for _, p := range l.open {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
