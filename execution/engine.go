package execution

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/regimetrader/internal/id"
	"github.com/rustyeddy/regimetrader/strategy"
)

// Engine executes sized proposals as all-or-nothing units.
type Engine struct {
	cfg   Config
	tr    Transport
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	log   zerolog.Logger
}

type Option func(*Engine)

// WithClock sets the clock used to stamp positions.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func NewEngine(cfg Config, tr Transport, opts ...Option) *Engine {
	e := &Engine{
		cfg:   cfg,
		tr:    tr,
		now:   time.Now,
		sleep: sleepCtx,
		log:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.With().Str("component", "execution").Logger()
	return e
}

func (e *Engine) Config() Config { return e.cfg }

// Execute opens sig. Either every leg fills and a Position is returned, or
// unfilled legs are cancelled, filled legs are offset and a
// *PartialFillError is returned. A Submit failure with nothing accepted is
// returned as is.
func (e *Engine) Execute(ctx context.Context, sig strategy.Proposal) (Position, error) {
	if sig.Lots <= 0 || len(sig.Legs) == 0 {
		return Position{}, fmt.Errorf("%w: proposal %s has %d lots and %d legs", ErrInvalidSignal, sig.ID, sig.Lots, len(sig.Legs))
	}
	now := e.now()
	reqs := make([]LegRequest, len(sig.Legs))
	for i, l := range sig.Legs {
		reqs[i] = LegRequest{
			ClientID:   id.Derive(now, sig.ID, "open", strconv.Itoa(i)),
			Underlying: sig.Underlying,
			Instrument: l.Instrument,
			Type:       l.Type,
			Strike:     l.Strike,
			Expiry:     l.Expiry,
			Side:       l.Side,
			Quantity:   l.Ratio * sig.Lots,
			OrderType:  e.cfg.OrderType,
		}
		if e.cfg.OrderType == LimitOrder {
			reqs[i].LimitPrice = limitFor(l)
		}
	}

	fills, err := e.fillAll(ctx, sig.ID, reqs)
	if err != nil {
		return Position{}, err
	}

	pos := Position{
		ID:       id.Derive(now, sig.ID, "position"),
		Proposal: sig,
		Lots:     sig.Lots,
		OpenedAt: now,
		Fills:    fills,
		Status:   Open,
		Target:   sig.Target.Amount * float64(sig.Lots),
		Stop:     sig.Stop.Amount * float64(sig.Lots),
	}
	for i, f := range fills {
		l := sig.Legs[i]
		pos.EntryPrice += l.Side.Sign() * float64(l.Ratio) * f.Price
		pos.Commission += f.Commission
	}
	pos.Mark = pos.EntryPrice
	e.log.Info().
		Str("position", pos.ID).
		Str("proposal", sig.ID).
		Str("structure", string(sig.Structure)).
		Int("lots", pos.Lots).
		Float64("entry", pos.EntryPrice).
		Msg("position opened")
	return pos, nil
}

// Close flattens pos with offsetting market orders. On failure the
// position is still open and the caller retries next cycle.
func (e *Engine) Close(ctx context.Context, pos Position, reason ExitReason) (Position, error) {
	if pos.Status == Closed {
		return pos, nil
	}
	now := e.now()
	reqs := make([]LegRequest, len(pos.Proposal.Legs))
	for i, l := range pos.Proposal.Legs {
		reqs[i] = LegRequest{
			ClientID:   id.Derive(now, pos.ID, "close", strconv.Itoa(i)),
			Underlying: pos.Underlying(),
			Instrument: l.Instrument,
			Type:       l.Type,
			Strike:     l.Strike,
			Expiry:     l.Expiry,
			Side:       l.Side.Opposite(),
			Quantity:   l.Ratio * pos.Lots,
			OrderType:  MarketOrder,
		}
	}
	fills, err := e.fillAll(ctx, pos.Proposal.ID, reqs)
	if err != nil {
		return pos, fmt.Errorf("close %s: %w", pos.ID, err)
	}

	exit, commission := 0.0, 0.0
	for i, f := range fills {
		l := pos.Proposal.Legs[i]
		exit += l.Side.Sign() * float64(l.Ratio) * f.Price
		commission += f.Commission
	}
	pos.Commission += commission
	pos.Status = Closed
	pos.ClosedAt = now
	pos.ExitReason = reason
	pos.ExitPrice = exit
	pos.Mark = exit
	pos.PnL = pos.pnl(exit)
	pos.RealizedPnL = pos.PnL - pos.Commission
	e.log.Info().
		Str("position", pos.ID).
		Str("reason", string(reason)).
		Float64("realized", pos.RealizedPnL).
		Msg("position closed")
	return pos, nil
}

// fillAll submits reqs as one unit and waits for every leg to fill.
func (e *Engine) fillAll(ctx context.Context, proposalID string, reqs []LegRequest) ([]LegFill, error) {
	fills, err := e.tr.Submit(ctx, reqs)
	if err != nil && !anyAccepted(fills) {
		return nil, fmt.Errorf("submit: %w", err)
	}
	if err == nil && len(fills) != len(reqs) {
		err = fmt.Errorf("transport returned %d fills for %d legs", len(fills), len(reqs))
	}

	deadline := time.Now().Add(e.cfg.FillTimeout)
	for err == nil && !allFilled(fills) {
		if r := firstRejected(fills); r != nil {
			err = fmt.Errorf("%s rejected: %s", r.Instrument, r.Reason)
			break
		}
		if !time.Now().Before(deadline) {
			err = fmt.Errorf("fill timeout after %s", e.cfg.FillTimeout)
			break
		}
		if serr := e.sleep(ctx, e.cfg.PollInterval); serr != nil {
			err = serr
			break
		}
		polled, perr := e.tr.Poll(ctx, orderIDs(fills))
		if perr != nil {
			err = fmt.Errorf("poll: %w", perr)
			break
		}
		fills = merge(fills, polled)
	}
	if err == nil {
		return fills, nil
	}
	return nil, e.unwind(ctx, proposalID, reqs, fills, err)
}

// unwind cancels what is still working and offsets what filled.
func (e *Engine) unwind(ctx context.Context, proposalID string, reqs []LegRequest, fills []LegFill, cause error) error {
	ctx = context.WithoutCancel(ctx)
	pfe := &PartialFillError{ProposalID: proposalID, Kind: ErrPartialFill, Err: cause}

	var errs []error
	for _, f := range fills {
		if f.OrderID != "" && !f.Status.Terminal() {
			if err := e.tr.Cancel(ctx, f.OrderID); err != nil {
				errs = append(errs, fmt.Errorf("cancel %s: %w", f.OrderID, err))
			}
		}
	}
	if ids := orderIDs(fills); len(ids) > 0 {
		if polled, err := e.tr.Poll(ctx, ids); err == nil {
			fills = merge(fills, polled)
		}
	}

	var offsets []LegRequest
	var offsetLeg []int
	pfe.Legs = make([]LegOutcome, len(reqs))
	for i, r := range reqs {
		out := LegOutcome{Instrument: r.Instrument, Side: r.Side, Requested: r.Quantity, Status: Rejected}
		if i < len(fills) {
			out.Filled, out.Status, out.Reason = fills[i].Filled, fills[i].Status, fills[i].Reason
		}
		pfe.Legs[i] = out
		if out.Filled > 0 {
			off := r
			off.ClientID = r.ClientID + "-rb"
			off.Side = r.Side.Opposite()
			off.Quantity = out.Filled
			off.OrderType = MarketOrder
			off.LimitPrice = 0
			offsets = append(offsets, off)
			offsetLeg = append(offsetLeg, i)
		}
	}

	if len(offsets) > 0 {
		rb, err := e.tr.Submit(ctx, offsets)
		if err != nil {
			errs = append(errs, fmt.Errorf("rollback submit: %w", err))
		}
		for j, f := range rb {
			if j < len(offsetLeg) && f.Status == Filled {
				pfe.Legs[offsetLeg[j]].RolledBack = f.Filled
			}
		}
	}
	if len(pfe.NetOpen()) > 0 {
		pfe.Kind = ErrRollbackFailed
	}
	if len(errs) > 0 {
		pfe.Err = errors.Join(append([]error{cause}, errs...)...)
	}

	ev := e.log.Error().Err(pfe.Err).Str("proposal", proposalID).Int("rolled_back_legs", len(offsets))
	if errors.Is(pfe.Kind, ErrRollbackFailed) {
		ev.Interface("net_open", pfe.NetOpen()).Msg("rollback failed")
	} else {
		ev.Msg("multi-leg order unwound")
	}
	return pfe
}

// limitFor is the mid, moved one tick toward the far side for takers.
func limitFor(l strategy.Leg) float64 {
	if l.Side == strategy.Buy {
		return l.Price + 0.01
	}
	return max(l.Price-0.01, 0.01)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func anyAccepted(fills []LegFill) bool {
	for _, f := range fills {
		if f.OrderID != "" {
			return true
		}
	}
	return false
}

func allFilled(fills []LegFill) bool {
	for _, f := range fills {
		if f.Status != Filled || f.Filled < f.Quantity {
			return false
		}
	}
	return len(fills) > 0
}

func firstRejected(fills []LegFill) *LegFill {
	for i := range fills {
		if fills[i].Status == Rejected || fills[i].Status == Cancelled {
			return &fills[i]
		}
	}
	return nil
}

func orderIDs(fills []LegFill) []string {
	out := make([]string, 0, len(fills))
	for _, f := range fills {
		if f.OrderID != "" {
			out = append(out, f.OrderID)
		}
	}
	return out
}

// merge overlays polled states onto fills by order id.
func merge(fills, polled []LegFill) []LegFill {
	byID := make(map[string]LegFill, len(polled))
	for _, p := range polled {
		byID[p.OrderID] = p
	}
	out := append([]LegFill(nil), fills...)
	for i, f := range out {
		if p, ok := byID[f.OrderID]; ok {
			out[i] = p
		}
	}
	return out
}
