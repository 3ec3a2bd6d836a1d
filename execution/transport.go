// Package execution places multi-leg structures atomically and monitors the
// resulting positions.
package execution

import (
	"context"
	"time"

	"github.com/rustyeddy/regimetrader/market"
	"github.com/rustyeddy/regimetrader/strategy"
)

type OrderType string

const (
	MarketOrder OrderType = "MARKET"
	LimitOrder  OrderType = "LIMIT"
)

type OrderStatus string

const (
	Pending   OrderStatus = "PENDING"
	Filled    OrderStatus = "FILLED"
	Rejected  OrderStatus = "REJECTED"
	Cancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether the order can no longer fill.
func (s OrderStatus) Terminal() bool { return s != Pending }

// LegRequest is one order of a multi-leg unit.
type LegRequest struct {
	ClientID   string
	Underlying string
	Instrument string
	Type       market.OptionType
	Strike     float64
	Expiry     time.Time
	Side       strategy.Side
	Quantity   int
	OrderType  OrderType
	LimitPrice float64 // LIMIT only
}

// LegFill is the transport's view of one order.
type LegFill struct {
	OrderID    string
	ClientID   string
	Instrument string
	Side       strategy.Side
	Quantity   int
	Filled     int
	Price      float64 // average fill price per share
	Commission float64
	Status     OrderStatus
	Reason     string
}

// Transport sends orders to a venue. Submit takes all legs as one unit and
// returns one LegFill per request, in order. Cancel must be safe to call on
// filled or already cancelled orders.
type Transport interface {
	Submit(ctx context.Context, legs []LegRequest) ([]LegFill, error)
	Poll(ctx context.Context, orderIDs []string) ([]LegFill, error)
	Cancel(ctx context.Context, orderID string) error
}
