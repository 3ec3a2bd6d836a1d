package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/regimetrader/execution"
	"github.com/rustyeddy/regimetrader/market"
	"github.com/rustyeddy/regimetrader/strategy"
)

var day0 = time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC)

// wiggle is a daily series oscillating around 100.
func wiggle(n int) market.Bars {
	bs := make(market.Bars, n)
	prev := 100.0
	for i := range bs {
		c := 100 + 2*math.Sin(float64(i)/3)
		bs[i] = market.Bar{
			Time:   day0.AddDate(0, 0, i),
			Open:   prev,
			High:   max(prev, c) + 0.5,
			Low:    min(prev, c) - 0.5,
			Close:  c,
			Volume: 1000,
		}
		prev = c
	}
	return bs
}

func newFeed() *Feed {
	return NewFeed(map[string]market.Bars{"SPY": wiggle(60)}, 20, 252)
}

func TestFeedNeverLooksAhead(t *testing.T) {
	t.Parallel()
	f := newFeed()
	ctx := context.Background()
	at := day0.AddDate(0, 0, 30).Add(-time.Hour)

	bs, err := f.Bars(ctx, "SPY", at, 10)
	require.NoError(t, err)
	require.Len(t, bs, 10)
	last, _ := bs.Last()
	assert.False(t, last.Time.After(at))
	assert.Equal(t, day0.AddDate(0, 0, 29), last.Time)

	chain, err := f.Chain(ctx, "SPY", at)
	require.NoError(t, err)
	assert.Equal(t, last.Time, chain.AsOf)
	assert.Equal(t, last.Close, chain.Spot)

	_, err = f.Bars(ctx, "QQQ", at, 10)
	assert.Error(t, err)
	_, err = f.Chain(ctx, "SPY", day0.Add(-time.Hour))
	assert.Error(t, err)
}

func TestFeedListsFridayExpiries(t *testing.T) {
	t.Parallel()
	f := newFeed()
	ctx := context.Background()

	a, err := f.Chain(ctx, "SPY", day0.AddDate(0, 0, 30))
	require.NoError(t, err)
	b, err := f.Chain(ctx, "SPY", day0.AddDate(0, 0, 31))
	require.NoError(t, err)

	require.NotEmpty(t, a.Expiries())
	for _, e := range a.Expiries() {
		assert.Equal(t, time.Friday, e.Weekday())
		dte := market.DaysBetween(a.AsOf, e)
		assert.GreaterOrEqual(t, dte, float64(f.MinDTE))
		assert.LessOrEqual(t, dte, float64(f.MaxDTE))
	}

	// A contract listed today is still listed tomorrow unless it rolled
	// inside MinDTE.
	exp := a.Expiries()[len(a.Expiries())-1]
	atm, ok := a.ATMStrike(exp)
	require.True(t, ok)
	q, ok := a.Find(exp, market.Call, atm)
	require.True(t, ok)
	_, ok = b.BySymbol()[q.Symbol()]
	assert.True(t, ok)
}

func TestFridays(t *testing.T) {
	t.Parallel()
	// 2024-01-02 is a Tuesday.
	assert.Equal(t, []int{3, 10}, fridays(day0, 0, 10))
	assert.Empty(t, fridays(day0, 4, 9))
}

func brokerAt(t *testing.T, at time.Time) (*Broker, market.OptionChain) {
	t.Helper()
	f := newFeed()
	chain, err := f.Chain(context.Background(), "SPY", at)
	require.NoError(t, err)
	return NewBroker(DefaultCostModel(), f, func() time.Time { return at }, zerolog.Nop()), chain
}

func legFor(t *testing.T, chain market.OptionChain, side strategy.Side, qty int) (execution.LegRequest, market.OptionQuote) {
	t.Helper()
	exp := chain.Expiries()[0]
	atm, ok := chain.ATMStrike(exp)
	require.True(t, ok)
	q, ok := chain.Find(exp, market.Put, atm)
	require.True(t, ok)
	return execution.LegRequest{
		ClientID:   "c-" + string(side),
		Underlying: "SPY",
		Instrument: q.Symbol(),
		Type:       q.Type,
		Strike:     q.Strike,
		Expiry:     q.Expiry,
		Side:       side,
		Quantity:   qty,
		OrderType:  execution.MarketOrder,
	}, q
}

func TestBrokerFillsWithSlippageAndCost(t *testing.T) {
	t.Parallel()
	at := day0.AddDate(0, 0, 30)
	b, chain := brokerAt(t, at)
	buy, q := legFor(t, chain, strategy.Buy, 2)
	sell, _ := legFor(t, chain, strategy.Sell, 3)

	fills, err := b.Submit(context.Background(), []execution.LegRequest{buy, sell})
	require.NoError(t, err)
	require.Len(t, fills, 2)

	assert.Equal(t, execution.Filled, fills[0].Status)
	assert.Equal(t, 2, fills[0].Filled)
	assert.InDelta(t, q.Mid()*1.01, fills[0].Price, 1e-9)
	assert.InDelta(t, 0.65*2+0.0005*fills[0].Price*100*2, fills[0].Commission, 1e-9)

	assert.Equal(t, execution.Filled, fills[1].Status)
	assert.InDelta(t, q.Mid()*0.99, fills[1].Price, 1e-9)
	assert.NotEqual(t, fills[0].OrderID, fills[1].OrderID)

	assert.Equal(t, map[string]int{q.Symbol(): -1}, b.Net())

	polled, err := b.Poll(context.Background(), []string{fills[1].OrderID})
	require.NoError(t, err)
	assert.Equal(t, fills[1], polled[0])
}

func TestBrokerLimitOrders(t *testing.T) {
	t.Parallel()
	at := day0.AddDate(0, 0, 30)
	b, chain := brokerAt(t, at)
	leg, q := legFor(t, chain, strategy.Buy, 1)
	leg.OrderType = execution.LimitOrder

	tests := []struct {
		name   string
		limit  float64
		status execution.OrderStatus
		price  float64
	}{
		{"capped at limit", q.Mid() + 0.01, execution.Filled, math.Min(q.Mid()*1.01, q.Mid()+0.01)},
		{"below mid", q.Mid() - 0.05, execution.Rejected, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := leg
			r.LimitPrice = tt.limit
			fills, err := b.Submit(context.Background(), []execution.LegRequest{r})
			require.NoError(t, err)
			assert.Equal(t, tt.status, fills[0].Status)
			assert.InDelta(t, tt.price, fills[0].Price, 1e-9)
		})
	}
}

func TestBrokerRejects(t *testing.T) {
	t.Parallel()
	at := day0.AddDate(0, 0, 30)
	b, chain := brokerAt(t, at)
	leg, _ := legFor(t, chain, strategy.Sell, 1)

	b.RejectWhen(func(r execution.LegRequest) string {
		if r.Side == strategy.Sell {
			return "venue down"
		}
		return ""
	})
	fills, err := b.Submit(context.Background(), []execution.LegRequest{leg})
	require.NoError(t, err)
	assert.Equal(t, execution.Rejected, fills[0].Status)
	assert.Equal(t, "venue down", fills[0].Reason)
	assert.Empty(t, b.Net())

	zero := leg
	zero.Side, zero.Quantity = strategy.Buy, 0
	fills, err = b.Submit(context.Background(), []execution.LegRequest{zero})
	require.NoError(t, err)
	assert.Equal(t, execution.Rejected, fills[0].Status)
}

func TestBrokerPricesDelistedContracts(t *testing.T) {
	t.Parallel()
	at := day0.AddDate(0, 0, 30)
	b, chain := brokerAt(t, at)

	expired := execution.LegRequest{
		Underlying: "SPY",
		Instrument: "SPY-OLD",
		Type:       market.Put,
		Strike:     chain.Spot + 5,
		Expiry:     at.AddDate(0, 0, -1),
		Side:       strategy.Buy,
		Quantity:   1,
		OrderType:  execution.MarketOrder,
	}
	fills, err := b.Submit(context.Background(), []execution.LegRequest{expired})
	require.NoError(t, err)
	require.Equal(t, execution.Filled, fills[0].Status)
	assert.InDelta(t, 5*1.01, fills[0].Price, 1e-9)

	unknown := expired
	unknown.Expiry = time.Time{}
	fills, err = b.Submit(context.Background(), []execution.LegRequest{unknown})
	require.NoError(t, err)
	assert.Equal(t, "no quote", fills[0].Reason)
}

func TestBrokerCancel(t *testing.T) {
	t.Parallel()
	at := day0.AddDate(0, 0, 30)
	b, chain := brokerAt(t, at)
	leg, _ := legFor(t, chain, strategy.Buy, 1)

	fills, err := b.Submit(context.Background(), []execution.LegRequest{leg})
	require.NoError(t, err)
	require.NoError(t, b.Cancel(context.Background(), fills[0].OrderID))
	require.NoError(t, b.Cancel(context.Background(), fills[0].OrderID))

	polled, err := b.Poll(context.Background(), []string{fills[0].OrderID})
	require.NoError(t, err)
	assert.Equal(t, execution.Filled, polled[0].Status)

	assert.Error(t, b.Cancel(context.Background(), "nope"))
	_, err = b.Poll(context.Background(), []string{"nope"})
	assert.Error(t, err)
}

func position(id string, entry float64, lots int, fee float64) execution.Position {
	return execution.Position{
		ID: id,
		Proposal: strategy.Proposal{
			ID:         id,
			Underlying: "SPY",
			Structure:  strategy.IronCondor,
			Multiplier: 100,
			Margin:     400,
		},
		Lots:       lots,
		EntryPrice: entry,
		Commission: fee,
		Mark:       entry,
		Status:     execution.Open,
	}
}

func TestLedgerAccounting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := NewLedger(10000)

	// A credit of 1.00 per share on 2 lots.
	p := position("p1", -1.0, 2, 5)
	require.NoError(t, l.Opened(ctx, p))
	assert.InDelta(t, 10000+200-5, l.Cash(), 1e-9)
	assert.Error(t, l.Opened(ctx, p))

	acct, err := l.Account(ctx, day0)
	require.NoError(t, err)
	assert.InDelta(t, 9995, acct.Equity, 1e-9)
	assert.InDelta(t, 800, acct.MarginUsed, 1e-9)
	require.Len(t, acct.OpenPositions, 1)
	assert.Equal(t, "SPY", acct.OpenPositions[0].Underlying)

	// Decay to 0.40 marks equity up and lifts the high-water mark.
	p.Mark = -0.4
	require.NoError(t, l.Marked(ctx, []execution.Position{p}))
	acct, err = l.Account(ctx, day0)
	require.NoError(t, err)
	assert.InDelta(t, 10000+200-5-80, acct.Equity, 1e-9)
	assert.InDelta(t, acct.Equity, acct.HWM, 1e-9)

	p.Status = execution.Closed
	p.ClosedAt = day0
	p.ExitPrice = -0.4
	p.PnL = 120
	p.Commission = 10
	p.RealizedPnL = 110
	require.NoError(t, l.Closed(ctx, p))
	assert.InDelta(t, 10110, l.Cash(), 1e-9)
	assert.Error(t, l.Closed(ctx, p))

	acct, err = l.Account(ctx, day0)
	require.NoError(t, err)
	assert.InDelta(t, 10110, acct.Equity, 1e-9)
	assert.Empty(t, acct.OpenPositions)
	assert.InDelta(t, 110, acct.DayRealized, 1e-9)
}

func TestLedgerRealizedPeriods(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := NewLedger(10000)

	// Tue 2024-01-02, Mon 2024-01-08, Wed 2024-01-10, Thu 2024-02-01.
	closes := []struct {
		at  time.Time
		pnl float64
	}{
		{day0, -50},
		{day0.AddDate(0, 0, 6), -20},
		{day0.AddDate(0, 0, 8), 30},
		{day0.AddDate(0, 0, 30), -40},
	}
	for i, c := range closes {
		p := position(string(rune('a'+i)), 1, 1, 0)
		require.NoError(t, l.Opened(ctx, p))
		p.ClosedAt, p.ExitPrice, p.RealizedPnL = c.at, 1+c.pnl/100, c.pnl
		p.Status = execution.Closed
		require.NoError(t, l.Closed(ctx, p))
	}

	tests := []struct {
		name             string
		now              time.Time
		day, week, month float64
	}{
		{"first day", day0, -50, -50, -50},
		{"next week", day0.AddDate(0, 0, 8), 30, 10, -40},
		{"new month", day0.AddDate(0, 0, 30), -40, -40, -40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct, err := l.Account(ctx, tt.now)
			require.NoError(t, err)
			assert.InDelta(t, tt.day, acct.DayRealized, 1e-9)
			assert.InDelta(t, tt.week, acct.WeekRealized, 1e-9)
			assert.InDelta(t, tt.month, acct.MonthRealized, 1e-9)
		})
	}
}
