package pricing

import (
	"math"
	"testing"
	"time"

	"github.com/rustyeddy/regimetrader/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutCallParity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                        string
		spot, strike, years, r, vol float64
	}{
		{"atm", 100, 100, 0.25, 0.03, 0.2},
		{"otm call", 100, 120, 0.5, 0.01, 0.35},
		{"itm call", 100, 80, 0.1, 0.05, 0.15},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := Price(market.Call, tt.spot, tt.strike, tt.years, tt.r, tt.vol)
			p := Price(market.Put, tt.spot, tt.strike, tt.years, tt.r, tt.vol)
			want := tt.spot - tt.strike*math.Exp(-tt.r*tt.years)
			assert.InDelta(t, want, c-p, 1e-9)
		})
	}
}

func TestPriceKnownValue(t *testing.T) {
	// S=100 K=100 T=1 r=5% vol=20%
	assert.InDelta(t, 10.4506, Price(market.Call, 100, 100, 1, 0.05, 0.2), 1e-4)
	assert.InDelta(t, 5.5735, Price(market.Put, 100, 100, 1, 0.05, 0.2), 1e-4)
	assert.Equal(t, 5.0, Price(market.Put, 95, 100, 0, 0.05, 0.2))
}

func TestOptionGreeks(t *testing.T) {
	c := OptionGreeks(market.Call, 100, 100, 0.25, 0.03, 0.2)
	p := OptionGreeks(market.Put, 100, 100, 0.25, 0.03, 0.2)

	assert.InDelta(t, 1.0, c.Delta-p.Delta, 1e-12)
	assert.InDelta(t, c.Gamma, p.Gamma, 1e-12)
	assert.InDelta(t, c.Vega, p.Vega, 1e-12)
	assert.Less(t, c.Theta, 0.0)
	assert.Greater(t, c.Vega, 0.0)

	sum := c.Add(p.Scale(-1))
	assert.InDelta(t, 1.0, sum.Delta, 1e-12)
	assert.InDelta(t, 0.0, sum.Gamma, 1e-12)
}

func TestSyntheticChain(t *testing.T) {
	asOf := time.Date(2024, 6, 3, 16, 0, 0, 0, time.UTC)
	p := DefaultChainParams("SPY")
	p.StrikeCount = 10

	chain := SyntheticChain(100.4, 0, asOf, p)
	require.False(t, chain.Empty())
	assert.Len(t, chain.Expiries(), 2)
	assert.Len(t, chain.Quotes, 2*21*2)

	exp, ok := chain.NearestExpiry(45)
	require.True(t, ok)
	atm, ok := chain.ATMStrike(exp)
	require.True(t, ok)
	assert.Equal(t, 100.0, atm)

	lowPut, ok := chain.Find(exp, market.Put, 90)
	require.True(t, ok)
	atmPut, ok := chain.Find(exp, market.Put, 100)
	require.True(t, ok)
	assert.Greater(t, lowPut.IV, atmPut.IV)
	assert.InDelta(t, p.MinVol, atmPut.IV, 0.005)

	for _, q := range chain.Quotes {
		assert.GreaterOrEqual(t, q.Ask, q.Bid)
		assert.GreaterOrEqual(t, q.Bid, 0.0)
	}
}
