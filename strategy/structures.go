package strategy

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/rustyeddy/regimetrader/internal/id"
	"github.com/rustyeddy/regimetrader/market"
	"github.com/rustyeddy/regimetrader/pricing"
	"github.com/rustyeddy/regimetrader/regime"
)

// View is what the selector sees of the market besides the regime.
type View struct {
	Chain market.OptionChain
	Now   time.Time
}

type legPicker struct {
	chain  market.OptionChain
	expiry time.Time
	years  float64
	cfg    Config
}

type builder func(lp legPicker) ([]Leg, error)

var builders = map[Structure]builder{
	IronCondor:       ironCondor,
	IronButterfly:    ironButterfly,
	CallDebitSpread:  callDebitSpread,
	PutDebitSpread:   putDebitSpread,
	CallCreditSpread: callCreditSpread,
	PutCreditSpread:  putCreditSpread,
}

// Build assembles structure s from the chain at expiry and prices it.
func Build(s Structure, v View, expiry time.Time, cfg Config, snap regime.Snapshot) (Proposal, error) {
	b, ok := builders[s]
	if !ok {
		return Proposal{}, fmt.Errorf("%w: unknown structure %q", ErrInvalidStructure, s)
	}
	lp := legPicker{
		chain:  v.Chain,
		expiry: expiry,
		years:  pricing.YearFraction(market.DaysBetween(v.Chain.AsOf, expiry)),
		cfg:    cfg,
	}
	legs, err := b(lp)
	if err != nil {
		return Proposal{}, fmt.Errorf("%s: %w", s, err)
	}
	return assemble(s, legs, v, expiry, cfg, snap)
}

func ironCondor(lp legPicker) ([]Leg, error) {
	spot := lp.chain.Spot
	sp, ok := lp.byDelta(market.Put, lp.cfg.CondorShortDelta, func(k float64) bool { return k < spot })
	if !ok {
		return nil, missing("short put")
	}
	lpq, ok := lp.nearest(market.Put, sp.Strike-lp.cfg.WingWidth, func(k float64) bool { return k < sp.Strike })
	if !ok {
		return nil, missing("long put")
	}
	sc, ok := lp.byDelta(market.Call, lp.cfg.CondorShortDelta, func(k float64) bool { return k > spot })
	if !ok {
		return nil, missing("short call")
	}
	lc, ok := lp.nearest(market.Call, sc.Strike+lp.cfg.WingWidth, func(k float64) bool { return k > sc.Strike })
	if !ok {
		return nil, missing("long call")
	}
	return []Leg{lp.leg(Buy, lpq), lp.leg(Sell, sp), lp.leg(Sell, sc), lp.leg(Buy, lc)}, nil
}

func ironButterfly(lp legPicker) ([]Leg, error) {
	atm, ok := lp.chain.ATMStrike(lp.expiry)
	if !ok {
		return nil, missing("atm strike")
	}
	sp, ok1 := lp.chain.Find(lp.expiry, market.Put, atm)
	sc, ok2 := lp.chain.Find(lp.expiry, market.Call, atm)
	if !ok1 || !ok2 {
		return nil, missing("atm straddle")
	}
	lpq, ok := lp.nearest(market.Put, atm-lp.cfg.ButterflyWing, func(k float64) bool { return k < atm })
	if !ok {
		return nil, missing("long put")
	}
	lc, ok := lp.nearest(market.Call, atm+lp.cfg.ButterflyWing, func(k float64) bool { return k > atm })
	if !ok {
		return nil, missing("long call")
	}
	return []Leg{lp.leg(Buy, lpq), lp.leg(Sell, sp), lp.leg(Sell, sc), lp.leg(Buy, lc)}, nil
}

func callDebitSpread(lp legPicker) ([]Leg, error) {
	long, ok := lp.byDelta(market.Call, lp.cfg.DebitLongDelta, nil)
	if !ok {
		return nil, missing("long call")
	}
	short, ok := lp.nearest(market.Call, long.Strike+lp.cfg.VerticalWidth, func(k float64) bool { return k > long.Strike })
	if !ok {
		return nil, missing("short call")
	}
	return []Leg{lp.leg(Buy, long), lp.leg(Sell, short)}, nil
}

func putDebitSpread(lp legPicker) ([]Leg, error) {
	long, ok := lp.byDelta(market.Put, lp.cfg.DebitLongDelta, nil)
	if !ok {
		return nil, missing("long put")
	}
	short, ok := lp.nearest(market.Put, long.Strike-lp.cfg.VerticalWidth, func(k float64) bool { return k < long.Strike })
	if !ok {
		return nil, missing("short put")
	}
	return []Leg{lp.leg(Buy, long), lp.leg(Sell, short)}, nil
}

func putCreditSpread(lp legPicker) ([]Leg, error) {
	short, ok := lp.byDelta(market.Put, lp.cfg.CreditShortDelta, nil)
	if !ok {
		return nil, missing("short put")
	}
	long, ok := lp.nearest(market.Put, short.Strike-lp.cfg.VerticalWidth, func(k float64) bool { return k < short.Strike })
	if !ok {
		return nil, missing("long put")
	}
	return []Leg{lp.leg(Buy, long), lp.leg(Sell, short)}, nil
}

func callCreditSpread(lp legPicker) ([]Leg, error) {
	short, ok := lp.byDelta(market.Call, lp.cfg.CreditShortDelta, nil)
	if !ok {
		return nil, missing("short call")
	}
	long, ok := lp.nearest(market.Call, short.Strike+lp.cfg.VerticalWidth, func(k float64) bool { return k > short.Strike })
	if !ok {
		return nil, missing("long call")
	}
	return []Leg{lp.leg(Sell, short), lp.leg(Buy, long)}, nil
}

func missing(what string) error {
	return fmt.Errorf("%w: no %s", ErrInvalidStructure, what)
}

func (lp legPicker) delta(q market.OptionQuote) float64 {
	return pricing.OptionGreeks(q.Type, lp.chain.Spot, q.Strike, lp.years, lp.cfg.Rate, q.IV).Delta
}

// byDelta picks the contract whose |delta| is nearest target.
func (lp legPicker) byDelta(typ market.OptionType, target float64, keep func(k float64) bool) (market.OptionQuote, bool) {
	var best market.OptionQuote
	bestDiff, found := math.MaxFloat64, false
	for _, q := range lp.chain.Side(lp.expiry, typ) {
		if keep != nil && !keep(q.Strike) {
			continue
		}
		if d := math.Abs(math.Abs(lp.delta(q)) - target); d < bestDiff {
			best, bestDiff, found = q, d, true
		}
	}
	return best, found
}

// nearest picks the listed contract whose strike is nearest want.
func (lp legPicker) nearest(typ market.OptionType, want float64, keep func(k float64) bool) (market.OptionQuote, bool) {
	var best market.OptionQuote
	bestDiff, found := math.MaxFloat64, false
	for _, q := range lp.chain.Side(lp.expiry, typ) {
		if keep != nil && !keep(q.Strike) {
			continue
		}
		if d := math.Abs(q.Strike - want); d < bestDiff {
			best, bestDiff, found = q, d, true
		}
	}
	return best, found
}

func (lp legPicker) leg(side Side, q market.OptionQuote) Leg {
	off := 0.0
	if lp.chain.Spot > 0 {
		off = (q.Strike - lp.chain.Spot) / lp.chain.Spot
	}
	return Leg{
		Side:         side,
		Type:         q.Type,
		Strike:       q.Strike,
		StrikeOffset: off,
		Expiry:       q.Expiry,
		Instrument:   q.Symbol(),
		Ratio:        1,
		Bid:          q.Bid,
		Ask:          q.Ask,
		Price:        q.Mid(),
		IV:           q.IV,
		OpenInterest: q.OpenInterest,
	}
}

func assemble(s Structure, legs []Leg, v View, expiry time.Time, cfg Config, snap regime.Snapshot) (Proposal, error) {
	chain := v.Chain
	years := pricing.YearFraction(market.DaysBetween(chain.AsOf, expiry))

	entry := 0.0
	var g pricing.Greeks
	parts := []string{chain.Underlying, string(s), expiry.Format("20060102")}
	for _, l := range legs {
		k := l.Side.Sign() * float64(l.Ratio)
		entry += k * l.Price
		g = g.Add(pricing.OptionGreeks(l.Type, chain.Spot, l.Strike, years, cfg.Rate, l.IV).Scale(k))
		parts = append(parts, string(l.Side), l.Instrument)
	}
	maxProfit, maxLoss, err := Analyze(legs, entry, cfg.Multiplier)
	if err != nil {
		return Proposal{}, fmt.Errorf("%s: %w", s, err)
	}

	now := v.Now
	if now.IsZero() {
		now = chain.AsOf
	}
	p := Proposal{
		ID:           id.Derive(now, append(parts, strconv.FormatInt(now.UnixNano(), 10))...),
		CreatedAt:    now,
		Underlying:   chain.Underlying,
		Spot:         chain.Spot,
		Structure:    s,
		Class:        s.Class(),
		Legs:         legs,
		Expiry:       expiry,
		Multiplier:   cfg.Multiplier,
		EntryPrice:   entry,
		MaxProfit:    maxProfit,
		MaxLoss:      maxLoss,
		Margin:       maxLoss,
		Greeks:       g.Scale(cfg.Multiplier),
		Regime:       snap.Label(),
		AbnormalProb: snap.AbnormalProb(),
		Confluence:   snap.Confluence(),
		Correlations: snap.Correlations(),
		Metrics:      snap.Metrics(),
	}

	volPct := snap.MetricOr(regime.MetricVolPercentile, 50)
	target, stop := cfg.DirectionalTarget, cfg.DirectionalStop
	if p.ShortVol() {
		target, stop = cfg.ShortVolTarget, cfg.ShortVolStop
	}
	p.Target = exitFor(target, volPct, p)
	p.Stop = exitFor(stop, volPct, p)
	return p, nil
}

func exitFor(r FractionRange, volPct float64, p Proposal) Exit {
	f := r.At(volPct)
	base := p.Margin
	if r.Basis == BasisMaxProfit && !math.IsInf(p.MaxProfit, 1) {
		base = p.MaxProfit
	}
	return Exit{Fraction: f, Basis: r.Basis, Amount: f * base}
}

// checkLiquidity requires open interest and a tight enough quote on every leg.
func (c Config) checkLiquidity(p Proposal) error {
	for _, l := range p.Legs {
		if l.OpenInterest < c.MinOpenInterest {
			return fmt.Errorf("%s open interest %.0f below %.0f", l.Instrument, l.OpenInterest, c.MinOpenInterest)
		}
		if l.Side == Sell && l.Bid <= 0 {
			return fmt.Errorf("%s has no bid", l.Instrument)
		}
		spread := l.Ask - l.Bid
		if spread < 0 || spread > math.Max(c.MaxRelSpread*l.Price, c.MaxAbsSpread) {
			return fmt.Errorf("%s spread %.2f too wide", l.Instrument, spread)
		}
	}
	return nil
}

// checkSkew bounds the IV gap between the short put and short call.
func (c Config) checkSkew(p Proposal) error {
	if c.MaxShortSkew <= 0 || !p.ShortVol() {
		return nil
	}
	var putIV, callIV float64
	var hasPut, hasCall bool
	for _, l := range p.Legs {
		if l.Side != Sell {
			continue
		}
		if l.Type == market.Put {
			putIV, hasPut = l.IV, true
		} else {
			callIV, hasCall = l.IV, true
		}
	}
	if hasPut && hasCall && math.Abs(putIV-callIV) > c.MaxShortSkew {
		return fmt.Errorf("short skew %.3f exceeds %.3f", putIV-callIV, c.MaxShortSkew)
	}
	return nil
}
