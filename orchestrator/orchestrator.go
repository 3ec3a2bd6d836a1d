// Package orchestrator runs the decision loop. One Orchestrator owns the
// open positions, the risk manager and the last regime snapshot; every stage
// receives immutable inputs from it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/regimetrader/execution"
	"github.com/rustyeddy/regimetrader/indicators"
	"github.com/rustyeddy/regimetrader/internal/metrics"
	"github.com/rustyeddy/regimetrader/market"
	"github.com/rustyeddy/regimetrader/regime"
	"github.com/rustyeddy/regimetrader/risk"
	"github.com/rustyeddy/regimetrader/strategy"
)

// Ledger is the account collaborator.
type Ledger interface {
	Account(ctx context.Context, now time.Time) (risk.AccountState, error)
	Opened(ctx context.Context, pos execution.Position) error
	Closed(ctx context.Context, pos execution.Position) error
	Marked(ctx context.Context, positions []execution.Position) error
}

// Classifier labels the market. *regime.Classifier implements it.
type Classifier interface {
	Classify(bars market.Bars, cm market.ChainMetrics) regime.Snapshot
}

// Deps are the constructed components the loop wires together.
type Deps struct {
	Config    Config
	Execution execution.Config

	Feed      market.Feed
	Ledger    Ledger
	Transport execution.Transport

	Classifier Classifier
	Selector   *strategy.Selector
	Risk       *risk.Manager
	Hedger     *risk.Hedger

	// CorrelationWindow and SkewWingPct come from the regime config.
	CorrelationWindow int
	SkewWingPct       float64

	Metrics *metrics.Metrics
	Log     zerolog.Logger
	// Clock drives Run; RunCycle takes its time explicitly.
	Clock func() time.Time
}

// CycleReport is everything one cycle saw and did.
type CycleReport struct {
	Time      time.Time
	Snapshot  regime.Snapshot
	Breaker   risk.BreakerState
	Account   risk.AccountState
	Closed    []execution.Position
	Hedges    risk.HedgeReport
	Proposals []strategy.Proposal
	Decisions []risk.Decision
	Opened    []execution.Position
}

type Orchestrator struct {
	mu sync.Mutex

	cfg        Config
	feed       guardedFeed
	ledger     guardedLedger
	engine     *execution.Engine
	monitor    execution.Monitor
	classifier Classifier
	selector   *strategy.Selector
	risk       *risk.Manager
	hedger     *risk.Hedger

	corrWindow int
	wingPct    float64

	metrics *metrics.Metrics
	log     zerolog.Logger
	clock   func() time.Time

	positions []execution.Position
	last      regime.Snapshot
	ivs       []float64
	now       time.Time
}

func New(d Deps) (*Orchestrator, error) {
	switch {
	case d.Feed == nil, d.Ledger == nil, d.Transport == nil:
		return nil, errors.New("orchestrator: feed, ledger and transport are required")
	case d.Classifier == nil, d.Selector == nil, d.Risk == nil:
		return nil, errors.New("orchestrator: classifier, selector and risk manager are required")
	}
	if err := d.Config.Validate(); err != nil {
		return nil, err
	}
	if err := d.Execution.Validate(); err != nil {
		return nil, err
	}
	if d.Hedger == nil {
		d.Hedger = risk.NewHedger(d.Risk.Policy(), d.Log)
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}

	log := d.Log.With().Str("component", "orchestrator").Logger()
	o := &Orchestrator{
		cfg:        d.Config,
		feed:       guardedFeed{inner: d.Feed, cb: newBreaker("feed", d.Config, log)},
		ledger:     guardedLedger{inner: d.Ledger, cb: newBreaker("ledger", d.Config, log)},
		monitor:    execution.NewMonitor(d.Execution),
		classifier: d.Classifier,
		selector:   d.Selector,
		risk:       d.Risk,
		hedger:     d.Hedger,
		corrWindow: d.CorrelationWindow,
		wingPct:    d.SkewWingPct,
		metrics:    d.Metrics,
		log:        log,
		clock:      d.Clock,
	}
	tr := guardedTransport{
		inner:   d.Transport,
		cb:      newBreaker("transport", d.Config, log),
		limiter: newLimiter(d.Config),
	}
	o.engine = execution.NewEngine(d.Execution, tr,
		execution.WithClock(func() time.Time { return o.now }),
		execution.WithLogger(d.Log))
	return o, nil
}

// Positions returns a copy of the open positions.
func (o *Orchestrator) Positions() []execution.Position {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]execution.Position(nil), o.positions...)
}

// Last returns the most recent snapshot, zero before the first cycle.
func (o *Orchestrator) Last() regime.Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

func (o *Orchestrator) BreakerState() risk.BreakerState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.risk.BreakerState()
}

// RunCycle runs classify, monitor, hedge, propose, evaluate and execute for
// time now. It opens at most one position. A collaborator failure before
// classification skips the cycle with ErrCollaboratorUnavailable and leaves
// the risk state untouched.
func (o *Orchestrator) RunCycle(ctx context.Context, now time.Time) (CycleReport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	defer func() { o.metrics.Cycle(time.Since(start)) }()

	o.now = now
	rep := CycleReport{Time: now}

	bars, chain, cm, acct, err := o.gather(ctx, now)
	if err != nil {
		o.log.Warn().Err(err).Time("at", now).Msg("cycle skipped")
		return rep, err
	}

	snap := o.classifier.Classify(bars, cm)
	o.last = snap
	rep.Snapshot = snap
	o.metrics.Regime(string(snap.Label()), snap.AbnormalProb())
	o.risk.Observe(now, acct, snap)

	var errs []error
	if err := o.manage(ctx, now, chain, snap, &rep); err != nil {
		errs = append(errs, err)
	}

	if len(rep.Closed) > 0 {
		if acct, err = o.ledger.Account(ctx, now); err != nil {
			errs = append(errs, err)
			rep.Breaker = o.risk.BreakerState()
			return rep, errors.Join(errs...)
		}
	}
	rep.Hedges = o.hedger.Evaluate(acct)
	for _, r := range rep.Hedges.Recommendations {
		o.log.Info().Str("action", string(r.Action)).Float64("exposure", r.Exposure).Str("reason", r.Reason).Msg("hedge recommended")
	}

	if err := o.enter(ctx, now, chain, snap, acct, &rep); err != nil {
		errs = append(errs, err)
	}

	rep.Account = acct
	rep.Breaker = o.risk.BreakerState()
	o.metrics.BreakerMode(string(rep.Breaker.Mode))
	o.metrics.Account(len(o.positions), acct.Equity)
	return rep, errors.Join(errs...)
}

// gather reads every collaborator input of a cycle.
func (o *Orchestrator) gather(ctx context.Context, now time.Time) (market.Bars, market.OptionChain, market.ChainMetrics, risk.AccountState, error) {
	var (
		chain market.OptionChain
		cm    market.ChainMetrics
		acct  risk.AccountState
	)
	bars, err := o.feed.Bars(ctx, o.cfg.Underlying, now, o.cfg.History)
	if err != nil {
		o.metrics.Skipped("feed")
		return nil, chain, cm, acct, err
	}
	companions := make(map[string]market.Bars, len(o.cfg.Companions))
	for _, c := range o.cfg.Companions {
		bs, err := o.feed.Bars(ctx, c, now, o.cfg.History)
		if err != nil {
			o.metrics.Skipped("feed")
			return nil, chain, cm, acct, err
		}
		companions[c] = bs
	}
	if chain, err = o.feed.Chain(ctx, o.cfg.Underlying, now); err != nil {
		o.metrics.Skipped("feed")
		return nil, chain, cm, acct, err
	}
	if acct, err = o.ledger.Account(ctx, now); err != nil {
		o.metrics.Skipped("ledger")
		return nil, chain, cm, acct, err
	}

	cm = chain.Metrics(o.selector.Config().TargetDTE, o.wingPct)
	if len(companions) > 0 {
		cm.Correlations = indicators.CompanionCorrelations(bars, companions, o.corrWindow)
	}
	if o.cfg.IVHistory > 0 && cm.ATMIV > 0 {
		o.ivs = append(o.ivs, cm.ATMIV)
		if len(o.ivs) > o.cfg.IVHistory {
			o.ivs = o.ivs[len(o.ivs)-o.cfg.IVHistory:]
		}
		if len(o.ivs) == o.cfg.IVHistory {
			cm.IVPercentile = indicators.PercentileRank(o.ivs, cm.ATMIV)
			cm.HasIVPercentile = true
		}
	}
	return bars, chain, cm, acct, nil
}

// manage marks open positions and closes the ones the monitor exits.
func (o *Orchestrator) manage(ctx context.Context, now time.Time, chain market.OptionChain, snap regime.Snapshot, rep *CycleReport) error {
	if len(o.positions) == 0 {
		return nil
	}
	res := o.monitor.Evaluate(o.positions, chain, snap)
	byID := make(map[string]execution.Update, len(res.Updates))
	for _, u := range res.Updates {
		byID[u.PositionID] = u
	}
	for i, p := range o.positions {
		if u, ok := byID[p.ID]; ok {
			o.positions[i] = p.Apply(u)
		}
	}

	var errs []error
	if err := o.ledger.Marked(ctx, o.positions); err != nil {
		errs = append(errs, err)
	}
	for _, x := range res.Exits {
		if err := o.close(ctx, now, x.PositionID, x.Reason, rep); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) close(ctx context.Context, now time.Time, positionID string, reason execution.ExitReason, rep *CycleReport) error {
	i := o.index(positionID)
	if i < 0 {
		return nil
	}
	closed, err := o.engine.Close(ctx, o.positions[i], reason)
	if err != nil {
		o.log.Error().Err(err).Str("position", positionID).Str("reason", string(reason)).Msg("close failed")
		return err
	}
	o.positions = append(o.positions[:i], o.positions[i+1:]...)
	rep.Closed = append(rep.Closed, closed)
	o.risk.RecordOutcome(now, closed.RealizedPnL)
	o.metrics.Exited(string(reason))
	if err := o.ledger.Closed(ctx, closed); err != nil {
		return err
	}
	return nil
}

// enter proposes, sizes and executes at most one new position.
func (o *Orchestrator) enter(ctx context.Context, now time.Time, chain market.OptionChain, snap regime.Snapshot, acct risk.AccountState, rep *CycleReport) error {
	props := o.selector.Propose(snap, strategy.View{Chain: chain, Now: now})
	rep.Proposals = props
	o.metrics.Proposed(len(props))

	for _, p := range props {
		d := o.risk.Evaluate(p, acct)
		rep.Decisions = append(rep.Decisions, d)
		if !d.Approved {
			o.metrics.Rejected(d.Codes())
			continue
		}
		o.metrics.Approved()

		pos, err := o.engine.Execute(ctx, d.Signal)
		if err != nil {
			if errors.Is(err, execution.ErrPartialFill) {
				o.metrics.RolledBack()
			}
			o.log.Error().Err(err).Str("proposal", p.ID).Msg("execution failed")
			return err
		}
		o.positions = append(o.positions, pos)
		rep.Opened = append(rep.Opened, pos)
		o.metrics.Executed()
		if err := o.ledger.Opened(ctx, pos); err != nil {
			return fmt.Errorf("record %s: %w", pos.ID, err)
		}
		return nil
	}
	return nil
}

// CloseAll flattens every open position with reason, at time now.
func (o *Orchestrator) CloseAll(ctx context.Context, now time.Time, reason execution.ExitReason) ([]execution.Position, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = now
	rep := CycleReport{Time: now}
	var errs []error
	for _, p := range append([]execution.Position(nil), o.positions...) {
		if err := o.close(ctx, now, p.ID, reason, &rep); err != nil {
			errs = append(errs, err)
		}
	}
	return rep.Closed, errors.Join(errs...)
}

// Run ticks every Interval and runs a cycle whenever the clock is inside
// the session. A zero clock reading skips the tick. Cycle errors are logged
// and the loop waits for the next tick. It returns when ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	t := time.NewTicker(o.cfg.Interval)
	defer t.Stop()
	o.log.Info().Str("underlying", o.cfg.Underlying).Dur("interval", o.cfg.Interval).Msg("loop started")
	for {
		now := o.clock()
		if !now.IsZero() && o.cfg.InSession(now) {
			if _, err := o.RunCycle(ctx, now); err != nil && ctx.Err() == nil {
				o.log.Warn().Err(err).Msg("cycle failed")
			}
		}
		select {
		case <-ctx.Done():
			o.log.Info().Msg("loop stopped")
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (o *Orchestrator) index(positionID string) int {
	for i, p := range o.positions {
		if p.ID == positionID {
			return i
		}
	}
	return -1
}
