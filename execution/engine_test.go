package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/regimetrader/market"
	"github.com/rustyeddy/regimetrader/pricing"
	"github.com/rustyeddy/regimetrader/strategy"
)

var asOf = time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)

func testConfig() Config {
	c := DefaultConfig()
	c.FillTimeout = 20 * time.Millisecond
	c.PollInterval = time.Millisecond
	return c
}

func newEngine(tr Transport) *Engine {
	return NewEngine(testConfig(), tr, WithClock(func() time.Time { return asOf }), WithLogger(zerolog.Nop()))
}

func leg(side strategy.Side, typ market.OptionType, strike, price float64) strategy.Leg {
	exp := asOf.AddDate(0, 0, 40)
	return strategy.Leg{
		Side:       side,
		Type:       typ,
		Strike:     strike,
		Expiry:     exp,
		Instrument: market.OptionSymbol("SPY", exp, typ, strike),
		Ratio:      1,
		Price:      price,
		IV:         0.2,
	}
}

func condorSignal(lots int) strategy.Proposal {
	return strategy.Proposal{
		ID:         "prop-1",
		CreatedAt:  asOf,
		Underlying: "SPY",
		Structure:  strategy.IronCondor,
		Class:      strategy.ShortVol,
		Legs: []strategy.Leg{
			leg(strategy.Buy, market.Put, 90, 0.5),
			leg(strategy.Sell, market.Put, 95, 1.2),
			leg(strategy.Sell, market.Call, 105, 1.1),
			leg(strategy.Buy, market.Call, 110, 0.4),
		},
		Expiry:     asOf.AddDate(0, 0, 40),
		Multiplier: 100,
		EntryPrice: -1.4,
		MaxProfit:  140,
		MaxLoss:    360,
		Margin:     360,
		Greeks:     pricing.Greeks{Delta: 1, Vega: -8},
		Target:     strategy.Exit{Fraction: 0.5, Basis: strategy.BasisMaxProfit, Amount: 70},
		Stop:       strategy.Exit{Fraction: 0.5, Basis: strategy.BasisMargin, Amount: 180},
		Lots:       lots,
	}
}

func TestExecuteAllLegsFill(t *testing.T) {
	t.Parallel()
	tr := newFake(fill, fill, fill, fill)
	tr.price = 1
	pos, err := newEngine(tr).Execute(context.Background(), condorSignal(2))
	require.NoError(t, err)

	assert.NotEmpty(t, pos.ID)
	assert.Equal(t, "prop-1", pos.Proposal.ID)
	assert.Equal(t, Open, pos.Status)
	assert.Equal(t, 2, pos.Lots)
	assert.Equal(t, asOf, pos.OpenedAt)
	assert.InDelta(t, 0, pos.EntryPrice, 1e-12, "equal prices on two buys and two sells net to zero")
	assert.InDelta(t, 140, pos.Target, 1e-9)
	assert.InDelta(t, 360, pos.Stop, 1e-9)
	assert.InDelta(t, 0.65*8, pos.Commission, 1e-9)
	require.Len(t, tr.submits, 1)
	for _, r := range tr.submits[0] {
		assert.Equal(t, 2, r.Quantity)
		assert.Equal(t, LimitOrder, r.OrderType)
		assert.NotEmpty(t, r.ClientID)
	}
	assert.Equal(t, map[string]int{
		tr.submits[0][0].Instrument: 2,
		tr.submits[0][1].Instrument: -2,
		tr.submits[0][2].Instrument: -2,
		tr.submits[0][3].Instrument: 2,
	}, tr.open())
}

func TestExecuteThirdLegFailsRollsBack(t *testing.T) {
	t.Parallel()
	tr := newFake(fill, fill, reject, pending)
	pos, err := newEngine(tr).Execute(context.Background(), condorSignal(1))

	require.Error(t, err)
	assert.Zero(t, pos)
	assert.True(t, errors.Is(err, ErrPartialFill))
	assert.False(t, errors.Is(err, ErrRollbackFailed))

	var pfe *PartialFillError
	require.ErrorAs(t, err, &pfe)
	assert.Empty(t, pfe.NetOpen())
	require.Len(t, pfe.Legs, 4)
	assert.Equal(t, 1, pfe.Legs[0].RolledBack)
	assert.Equal(t, 1, pfe.Legs[1].RolledBack)
	assert.Equal(t, Rejected, pfe.Legs[2].Status)
	assert.Equal(t, Cancelled, pfe.Legs[3].Status)

	assert.Empty(t, tr.open(), "no net exposure may remain")
	assert.Equal(t, []string{"o4"}, tr.cancels)

	require.Len(t, tr.submits, 2)
	rb := tr.submits[1]
	require.Len(t, rb, 2)
	assert.Equal(t, strategy.Sell, rb[0].Side)
	assert.Equal(t, strategy.Buy, rb[1].Side)
	assert.Equal(t, MarketOrder, rb[0].OrderType)
}

func TestExecuteTimeoutCancelsAndRollsBack(t *testing.T) {
	t.Parallel()
	tr := newFake(fill, pending, pending, pending)
	_, err := newEngine(tr).Execute(context.Background(), condorSignal(1))

	require.ErrorIs(t, err, ErrPartialFill)
	assert.Contains(t, err.Error(), "fill timeout")
	assert.ElementsMatch(t, []string{"o2", "o3", "o4"}, tr.cancels)
	assert.Empty(t, tr.open())
}

func TestExecuteRollbackFailure(t *testing.T) {
	t.Parallel()
	tr := newFake(fill, fill, reject, fill)
	tr.rollback = reject
	_, err := newEngine(tr).Execute(context.Background(), condorSignal(1))

	require.ErrorIs(t, err, ErrRollbackFailed)
	var pfe *PartialFillError
	require.ErrorAs(t, err, &pfe)
	assert.Len(t, pfe.NetOpen(), 3)
	assert.Equal(t, tr.open(), pfe.NetOpen())
}

func TestExecuteSubmitFailure(t *testing.T) {
	t.Parallel()
	down := errors.New("connection refused")
	tr := newFake()
	tr.submitErr = down

	_, err := newEngine(tr).Execute(context.Background(), condorSignal(1))
	require.ErrorIs(t, err, down)
	var pfe *PartialFillError
	assert.False(t, errors.As(err, &pfe))
}

func TestExecuteInvalidSignal(t *testing.T) {
	t.Parallel()
	_, err := newEngine(newFake()).Execute(context.Background(), condorSignal(0))
	assert.ErrorIs(t, err, ErrInvalidSignal)
}

func TestClose(t *testing.T) {
	t.Parallel()
	tr := newFake(fill, fill, fill, fill)
	e := newEngine(tr)
	pos, err := e.Execute(context.Background(), condorSignal(1))
	require.NoError(t, err)
	pos.EntryPrice = -1.4

	tr.price = 0.5
	closed, err := e.Close(context.Background(), pos, ExitTarget)
	require.NoError(t, err)

	assert.Equal(t, Closed, closed.Status)
	assert.Equal(t, ExitTarget, closed.ExitReason)
	assert.InDelta(t, 0, closed.ExitPrice, 1e-12)
	assert.InDelta(t, 140, closed.PnL, 1e-9)
	assert.InDelta(t, 140-0.65*8, closed.RealizedPnL, 1e-9)
	assert.Empty(t, tr.open())

	again, err := e.Close(context.Background(), closed, ExitStop)
	require.NoError(t, err)
	assert.Equal(t, closed, again)
	assert.Len(t, tr.submits, 2)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultConfig().Validate())
	c := DefaultConfig()
	c.PollInterval = time.Minute
	c.LockFraction = 1
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution.poll_interval")
	assert.Contains(t, err.Error(), "execution.lock_fraction")
}
