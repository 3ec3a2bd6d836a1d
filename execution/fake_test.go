package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type behavior int

const (
	fill behavior = iota
	reject
	pending
)

// fakeTransport fills, rejects or parks each leg of the first Submit by
// index. Later submits (rollbacks, closes) follow rollback.
type fakeTransport struct {
	mu        sync.Mutex
	legs      []behavior
	rollback  behavior
	submitErr error
	price     float64

	seq     int
	orders  map[string]LegFill
	submits [][]LegRequest
	cancels []string
	net     map[string]int
}

func newFake(legs ...behavior) *fakeTransport {
	return &fakeTransport{legs: legs, rollback: fill, price: 1, orders: map[string]LegFill{}, net: map[string]int{}}
}

func (f *fakeTransport) Submit(_ context.Context, reqs []LegRequest) ([]LegFill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	first := len(f.submits) == 0
	f.submits = append(f.submits, reqs)

	out := make([]LegFill, len(reqs))
	for i, r := range reqs {
		b := f.rollback
		if first && i < len(f.legs) {
			b = f.legs[i]
		}
		f.seq++
		lf := LegFill{
			OrderID:    fmt.Sprintf("o%d", f.seq),
			ClientID:   r.ClientID,
			Instrument: r.Instrument,
			Side:       r.Side,
			Quantity:   r.Quantity,
			Price:      f.price,
			Commission: 0.65 * float64(r.Quantity),
			Status:     Pending,
		}
		switch b {
		case fill:
			lf.Status, lf.Filled = Filled, r.Quantity
			f.net[r.Instrument] += int(r.Side.Sign()) * r.Quantity
		case reject:
			lf.Status, lf.Reason = Rejected, "no liquidity"
		}
		f.orders[lf.OrderID] = lf
		out[i] = lf
	}
	return out, nil
}

func (f *fakeTransport) Poll(_ context.Context, ids []string) ([]LegFill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]LegFill, 0, len(ids))
	for _, id := range ids {
		o, ok := f.orders[id]
		if !ok {
			return nil, errors.New("unknown order " + id)
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeTransport) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, id)
	if o, ok := f.orders[id]; ok && o.Status == Pending {
		o.Status = Cancelled
		f.orders[id] = o
	}
	return nil
}

// open reports the instruments with a non-zero net quantity.
func (f *fakeTransport) open() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int{}
	for k, v := range f.net {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}
