package sim

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/regimetrader/execution"
	"github.com/rustyeddy/regimetrader/market"
	"github.com/rustyeddy/regimetrader/pricing"
	"github.com/rustyeddy/regimetrader/strategy"
)

// Broker is an execution.Transport that fills against the feed's chain at
// the simulated clock. Orders fill immediately at mid plus slippage. A limit
// order whose limit does not reach mid is rejected rather than left working.
type Broker struct {
	mu     sync.Mutex
	cost   CostModel
	feed   market.Feed
	clock  func() time.Time
	reject func(execution.LegRequest) string

	seq    int
	orders map[string]execution.LegFill
	net    map[string]int
	log    zerolog.Logger
}

func NewBroker(cost CostModel, feed market.Feed, clock func() time.Time, log zerolog.Logger) *Broker {
	return &Broker{
		cost:   cost,
		feed:   feed,
		clock:  clock,
		orders: make(map[string]execution.LegFill),
		net:    make(map[string]int),
		log:    log.With().Str("component", "sim-broker").Logger(),
	}
}

// RejectWhen installs a fault injector. A non-empty reason rejects the leg.
func (b *Broker) RejectWhen(fn func(execution.LegRequest) string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reject = fn
}

func (b *Broker) Submit(ctx context.Context, legs []execution.LegRequest) ([]execution.LegFill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := b.clock()
	chains := map[string]map[string]market.OptionQuote{}
	spots := map[string]float64{}

	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]execution.LegFill, len(legs))
	for i, r := range legs {
		b.seq++
		f := execution.LegFill{
			OrderID:    fmt.Sprintf("sim-%06d", b.seq),
			ClientID:   r.ClientID,
			Instrument: r.Instrument,
			Side:       r.Side,
			Quantity:   r.Quantity,
			Status:     execution.Rejected,
		}

		idx, ok := chains[r.Underlying]
		if !ok {
			chain, err := b.feed.Chain(ctx, r.Underlying, now)
			if err != nil {
				return nil, fmt.Errorf("sim broker: chain %s: %w", r.Underlying, err)
			}
			idx = chain.BySymbol()
			chains[r.Underlying], spots[r.Underlying] = idx, chain.Spot
		}

		mid, quoted := b.mid(idx, spots[r.Underlying], now, r)
		var injected string
		if b.reject != nil {
			injected = b.reject(r)
		}
		switch {
		case r.Quantity <= 0:
			f.Reason = "quantity must be positive"
		case injected != "":
			f.Reason = injected
		case !quoted:
			f.Reason = "no quote"
		case r.OrderType == execution.LimitOrder && !marketable(mid, r):
			f.Reason = fmt.Sprintf("limit %.2f not marketable at mid %.2f", r.LimitPrice, mid)
		default:
			px := b.fillPrice(mid, r)
			f.Status, f.Filled, f.Price = execution.Filled, r.Quantity, px
			f.Commission = b.cost.CommissionPerContract*float64(r.Quantity) +
				b.cost.FeeFraction*px*b.cost.Multiplier*float64(r.Quantity)
			b.net[r.Instrument] += int(r.Side.Sign()) * r.Quantity
		}
		if f.Status == execution.Rejected {
			b.log.Debug().Str("instrument", r.Instrument).Str("reason", f.Reason).Msg("leg rejected")
		}
		b.orders[f.OrderID] = f
		out[i] = f
	}
	return out, nil
}

func (b *Broker) Poll(ctx context.Context, orderIDs []string) ([]execution.LegFill, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]execution.LegFill, 0, len(orderIDs))
	for _, id := range orderIDs {
		f, ok := b.orders[id]
		if !ok {
			return nil, fmt.Errorf("sim broker: unknown order %q", id)
		}
		out = append(out, f)
	}
	return out, nil
}

// Cancel is a no-op for orders that are already filled, rejected or
// cancelled.
func (b *Broker) Cancel(ctx context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("sim broker: unknown order %q", orderID)
	}
	if f.Status == execution.Pending {
		f.Status = execution.Cancelled
		b.orders[orderID] = f
	}
	return nil
}

// Net returns the non-zero net contract quantity per instrument.
func (b *Broker) Net() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int)
	for k, v := range b.net {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}

// mid returns the quoted mid, or a model price when the contract is no
// longer listed: intrinsic once expired, else Black-Scholes at the IV of
// the nearest listed strike of the same type.
func (b *Broker) mid(idx map[string]market.OptionQuote, spot float64, now time.Time, r execution.LegRequest) (float64, bool) {
	if q, ok := idx[r.Instrument]; ok && q.Ask > 0 {
		return q.Mid(), true
	}
	if spot <= 0 || r.Expiry.IsZero() {
		return 0, false
	}
	days := market.DaysBetween(now, r.Expiry)
	if days <= 0 {
		return pricing.Intrinsic(r.Type, spot, r.Strike), true
	}
	iv, best := 0.0, math.MaxFloat64
	for _, q := range idx {
		if q.Type == r.Type && math.Abs(q.Strike-r.Strike) < best {
			iv, best = q.IV, math.Abs(q.Strike-r.Strike)
		}
	}
	if iv <= 0 {
		return 0, false
	}
	return pricing.Price(r.Type, spot, r.Strike, pricing.YearFraction(days), 0, iv), true
}

// fillPrice applies slippage against the order. Limit orders never fill
// through their limit.
func (b *Broker) fillPrice(mid float64, r execution.LegRequest) float64 {
	if r.Side == strategy.Buy {
		px := mid * (1 + b.cost.Slippage)
		if r.OrderType == execution.LimitOrder {
			px = min(px, r.LimitPrice)
		}
		return px
	}
	px := mid * (1 - b.cost.Slippage)
	if r.OrderType == execution.LimitOrder {
		px = max(px, r.LimitPrice)
	}
	return px
}

func marketable(mid float64, r execution.LegRequest) bool {
	if r.Side == strategy.Buy {
		return mid <= r.LimitPrice+1e-9
	}
	return mid >= r.LimitPrice-1e-9
}
