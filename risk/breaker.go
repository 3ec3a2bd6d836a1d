package risk

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/regimetrader/regime"
)

type Mode string

const (
	Active         Mode = "ACTIVE"
	DailyHalt      Mode = "DAILY_HALT"
	WeeklyHalt     Mode = "WEEKLY_HALT"
	MonthlyHalt    Mode = "MONTHLY_HALT"
	PreemptiveHalt Mode = "PREEMPTIVE_HALT"
	ChaosHalt      Mode = "CHAOS_HALT"
)

// BreakerState is a copy of the circuit breaker's state.
type BreakerState struct {
	Mode              Mode
	HaltUntil         time.Time
	Reason            string
	ConsecutiveLosses int
	SizeMultiplier    float64
}

// CircuitBreaker halts new entries after loss or regime breaches. Halts only
// ever extend; a halt ends when Update is called at or after HaltUntil.
type CircuitBreaker struct {
	pol           Policy
	st            BreakerState
	abnormalSince time.Time
	marks         map[Mode]lossMark
	log           zerolog.Logger
}

// lossMark is the realized loss that last tripped a limit and the start of
// the window it was measured over.
type lossMark struct {
	window   time.Time
	realized decimal.Decimal
}

func NewCircuitBreaker(pol Policy, log zerolog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		pol: pol,
		st:    BreakerState{Mode: Active, SizeMultiplier: 1},
		marks: make(map[Mode]lossMark),
		log:   log,
	}
}

func (b *CircuitBreaker) State() BreakerState { return b.st }

// Halted reports whether new entries are blocked at now.
func (b *CircuitBreaker) Halted(now time.Time) bool {
	return b.st.Mode != Active && now.Before(b.st.HaltUntil)
}

// Update resumes an expired halt and then checks the realized loss limits.
func (b *CircuitBreaker) Update(now time.Time, acct AccountState) {
	if b.st.Mode != Active && !now.Before(b.st.HaltUntil) {
		b.log.Info().Str("from", string(b.st.Mode)).Time("at", now).Msg("circuit breaker resumed")
		b.st.Mode, b.st.HaltUntil, b.st.Reason = Active, time.Time{}, ""
	}

	equity := decimal.NewFromFloat(acct.Equity)
	if !equity.IsPositive() {
		return
	}
	day := startOfDay(now)
	week := day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	b.limit(MonthlyHalt, month, acct.MonthRealized, equity, b.pol.MonthlyLossPct,
		day.AddDate(0, 0, b.pol.MonthlyHaltDays), "month")
	b.limit(WeeklyHalt, week, acct.WeekRealized, equity, b.pol.WeeklyLossPct,
		addTradingDays(now, b.pol.WeeklyHaltTradingDays), "week")
	b.limit(DailyHalt, day, acct.DayRealized, equity, b.pol.DailyLossPct,
		addTradingDays(now, 1), "day")
}

// limit trips mode when realized breaches pct of equity. A loss that already
// tripped the limit in the same window only trips it again once it gets
// worse.
func (b *CircuitBreaker) limit(mode Mode, window time.Time, realized float64, equity decimal.Decimal, pct float64, until time.Time, name string) {
	r := decimal.NewFromFloat(realized)
	if r.GreaterThan(equity.Mul(decimal.NewFromFloat(pct)).Neg()) {
		return
	}
	if m, ok := b.marks[mode]; ok && m.window.Equal(window) && !r.LessThan(m.realized) {
		return
	}
	b.marks[mode] = lossMark{window: window, realized: r}
	b.trip(mode, until, fmt.Sprintf("%s realized %.2f breaches %.1f%% of equity", name, realized, 100*pct))
}

// ObserveRegime tracks how long the regime has been ABNORMAL. UNKNOWN and
// zero snapshots leave the count alone.
func (b *CircuitBreaker) ObserveRegime(now time.Time, snap regime.Snapshot) {
	switch {
	case snap.IsZero() || snap.Label() == regime.Unknown:
		return
	case snap.Label() != regime.Abnormal:
		b.abnormalSince = time.Time{}
		return
	}
	if b.abnormalSince.IsZero() {
		b.abnormalSince = now
	}
	if now.Sub(b.abnormalSince) >= time.Duration(b.pol.AbnormalHaltAfterDays)*24*time.Hour {
		b.trip(ChaosHalt, addTradingDays(now, b.pol.ChaosHaltDays),
			fmt.Sprintf("ABNORMAL regime since %s", b.abnormalSince.Format(time.RFC3339)))
	}
}

// RecordOutcome counts a closed trade. A loss streak at the limit halts
// entries and cuts size until the next win.
func (b *CircuitBreaker) RecordOutcome(now time.Time, pnl float64) {
	switch {
	case pnl > 0:
		if b.st.ConsecutiveLosses > 0 || b.st.SizeMultiplier < 1 {
			b.log.Info().Int("streak", b.st.ConsecutiveLosses).Msg("loss streak broken")
		}
		b.st.ConsecutiveLosses = 0
		b.st.SizeMultiplier = 1
	case pnl < 0:
		b.st.ConsecutiveLosses++
		if b.st.ConsecutiveLosses >= b.pol.ConsecutiveLossLimit {
			b.st.SizeMultiplier = b.pol.LossStreakMultiplier
			b.trip(PreemptiveHalt, addTradingDays(now, b.pol.PreemptiveHaltDays),
				fmt.Sprintf("%d consecutive losses", b.st.ConsecutiveLosses))
		}
	}
}

func (b *CircuitBreaker) trip(mode Mode, until time.Time, reason string) {
	if b.st.Mode != Active && !until.After(b.st.HaltUntil) {
		return
	}
	b.st.Mode, b.st.HaltUntil, b.st.Reason = mode, until, reason
	b.log.Warn().Str("mode", string(mode)).Time("until", until).Str("reason", reason).Msg("circuit breaker tripped")
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// addTradingDays returns the start of the n-th weekday after t's day.
func addTradingDays(t time.Time, n int) time.Time {
	d := startOfDay(t)
	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n--
		}
	}
	return d
}

// NextTradingDay is the start of the first weekday after t's day.
func NextTradingDay(t time.Time) time.Time { return addTradingDays(t, 1) }
