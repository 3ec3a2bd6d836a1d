package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/regimetrader/execution"
	"github.com/rustyeddy/regimetrader/market"
	"github.com/rustyeddy/regimetrader/risk"
)

// ErrCollaboratorUnavailable marks a cycle skipped because market data, the
// ledger or the order transport failed. The risk state is left as it was.
var ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

func newBreaker(name string, cfg Config, log zerolog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.BreakerFailures
		},
		// A cancelled cycle says nothing about the collaborator.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("collaborator", name).Str("from", from.String()).Str("to", to.String()).Msg("collaborator breaker")
		},
	})
}

// guarded runs fn through cb and tags every failure as collaborator
// unavailable.
func guarded[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	v, err := cb.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %s: %w", ErrCollaboratorUnavailable, cb.Name(), err)
	}
	return v.(T), nil
}

type guardedFeed struct {
	inner market.Feed
	cb    *gobreaker.CircuitBreaker
}

func (g guardedFeed) Bars(ctx context.Context, instrument string, end time.Time, n int) (market.Bars, error) {
	return guarded(g.cb, func() (market.Bars, error) { return g.inner.Bars(ctx, instrument, end, n) })
}

func (g guardedFeed) Chain(ctx context.Context, underlying string, at time.Time) (market.OptionChain, error) {
	return guarded(g.cb, func() (market.OptionChain, error) { return g.inner.Chain(ctx, underlying, at) })
}

type guardedLedger struct {
	inner Ledger
	cb    *gobreaker.CircuitBreaker
}

func (g guardedLedger) Account(ctx context.Context, now time.Time) (risk.AccountState, error) {
	return guarded(g.cb, func() (risk.AccountState, error) { return g.inner.Account(ctx, now) })
}

func (g guardedLedger) Opened(ctx context.Context, pos execution.Position) error {
	_, err := guarded(g.cb, func() (struct{}, error) { return struct{}{}, g.inner.Opened(ctx, pos) })
	return err
}

func (g guardedLedger) Closed(ctx context.Context, pos execution.Position) error {
	_, err := guarded(g.cb, func() (struct{}, error) { return struct{}{}, g.inner.Closed(ctx, pos) })
	return err
}

func (g guardedLedger) Marked(ctx context.Context, positions []execution.Position) error {
	_, err := guarded(g.cb, func() (struct{}, error) { return struct{}{}, g.inner.Marked(ctx, positions) })
	return err
}

// guardedTransport paces submissions and trips after repeated transport
// errors. Leg rejections are fills, not transport errors.
type guardedTransport struct {
	inner   execution.Transport
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func newLimiter(cfg Config) *rate.Limiter {
	if cfg.SubmitRate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(cfg.SubmitRate), cfg.SubmitBurst)
}

func (g guardedTransport) Submit(ctx context.Context, legs []execution.LegRequest) ([]execution.LegFill, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	// Keep whatever the venue accepted even when Submit fails, so the engine
	// can unwind it.
	var fills []execution.LegFill
	_, err := guarded(g.cb, func() (struct{}, error) {
		var err error
		fills, err = g.inner.Submit(ctx, legs)
		return struct{}{}, err
	})
	return fills, err
}

func (g guardedTransport) Poll(ctx context.Context, orderIDs []string) ([]execution.LegFill, error) {
	return guarded(g.cb, func() ([]execution.LegFill, error) { return g.inner.Poll(ctx, orderIDs) })
}

func (g guardedTransport) Cancel(ctx context.Context, orderID string) error {
	_, err := guarded(g.cb, func() (struct{}, error) { return struct{}{}, g.inner.Cancel(ctx, orderID) })
	return err
}
