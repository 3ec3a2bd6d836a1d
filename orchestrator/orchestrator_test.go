package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/regimetrader/execution"
	"github.com/rustyeddy/regimetrader/market"
	"github.com/rustyeddy/regimetrader/pricing"
	"github.com/rustyeddy/regimetrader/regime"
	"github.com/rustyeddy/regimetrader/risk"
	"github.com/rustyeddy/regimetrader/sim"
	"github.com/rustyeddy/regimetrader/strategy"
)

// Monday 2024-06-03, 11:00 in New York.
var t0 = time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)

type fakeFeed struct {
	mu   sync.Mutex
	spot float64
	err  error
}

func (f *fakeFeed) Bars(ctx context.Context, instrument string, end time.Time, n int) (market.Bars, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return market.Bars{{Time: end, Open: f.spot, High: f.spot, Low: f.spot, Close: f.spot}}, nil
}

func (f *fakeFeed) Chain(ctx context.Context, underlying string, at time.Time) (market.OptionChain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return market.OptionChain{}, f.err
	}
	return pricing.SyntheticChain(f.spot, 0.2, at, pricing.DefaultChainParams(underlying)), nil
}

func (f *fakeFeed) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeClassifier struct {
	mu    sync.Mutex
	label regime.Label
	mut   func(*regime.Params)
	calls int
}

func (c *fakeClassifier) Classify(bars market.Bars, cm market.ChainMetrics) regime.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	last, _ := bars.Last()
	p := regime.Params{
		Time:       last.Time,
		Label:      c.label,
		Confluence: 1,
		Metrics: map[string]float64{
			regime.MetricADX:           10,
			regime.MetricVolPercentile: 30,
			regime.MetricRSI:           50,
			regime.MetricTrendDir:      0,
		},
	}
	if c.mut != nil {
		c.mut(&p)
	}
	return regime.New(p)
}

func (c *fakeClassifier) set(label regime.Label) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.label = label
}

func (c *fakeClassifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type rig struct {
	o      *Orchestrator
	feed   *fakeFeed
	cls    *fakeClassifier
	ledger *sim.Ledger
	broker *sim.Broker
	now    time.Time
}

func newRig(t *testing.T, label regime.Label, tweak ...func(*Deps)) *rig {
	t.Helper()
	r := &rig{
		feed:   &fakeFeed{spot: 100},
		cls:    &fakeClassifier{label: label},
		ledger: sim.NewLedger(100000),
		now:    t0,
	}
	r.broker = sim.NewBroker(sim.DefaultCostModel(), r.feed, func() time.Time { return r.now }, zerolog.Nop())

	cfg := DefaultConfig()
	cfg.SubmitRate = 0
	d := Deps{
		Config:     cfg,
		Execution:  execution.DefaultConfig(),
		Feed:       r.feed,
		Ledger:     r.ledger,
		Transport:  r.broker,
		Classifier: r.cls,
		Selector:   strategy.NewSelector(strategy.DefaultConfig(), zerolog.Nop()),
		Risk:       risk.NewManager(risk.DefaultPolicy(), zerolog.Nop()),
		Log:        zerolog.Nop(),
		Clock:      func() time.Time { return t0 },
	}
	for _, f := range tweak {
		f(&d)
	}
	o, err := New(d)
	require.NoError(t, err)
	r.o = o
	return r
}

func (r *rig) cycle(t *testing.T, at time.Time) (CycleReport, error) {
	t.Helper()
	r.now = at
	return r.o.RunCycle(context.Background(), at)
}

func TestRangeBoundCycleOpensOneBaseSizedPosition(t *testing.T) {
	t.Parallel()
	r := newRig(t, regime.RangeBound)

	rep, err := r.cycle(t, t0)
	require.NoError(t, err)

	assert.Equal(t, regime.RangeBound, rep.Snapshot.Label())
	require.Len(t, rep.Proposals, 1)
	assert.True(t, rep.Proposals[0].ShortVol())
	require.Len(t, rep.Decisions, 1)
	d := rep.Decisions[0]
	require.True(t, d.Approved, d.Reason)
	assert.Equal(t, risk.DefaultPolicy().BaseLots, d.Lots)
	assert.InDelta(t, 1.0, d.Product, 1e-12)

	require.Len(t, rep.Opened, 1)
	pos := rep.Opened[0]
	assert.Equal(t, d.Signal.ID, pos.Proposal.ID)
	assert.Equal(t, d.Lots, pos.Lots)
	assert.Equal(t, execution.Open, pos.Status)

	assert.Len(t, r.o.Positions(), 1)
	assert.Len(t, r.ledger.Open(), 1)
	assert.Equal(t, risk.Active, rep.Breaker.Mode)
}

func TestHaltingRegimeProposesNothingAndExits(t *testing.T) {
	t.Parallel()
	r := newRig(t, regime.RangeBound)
	_, err := r.cycle(t, t0)
	require.NoError(t, err)
	require.Len(t, r.o.Positions(), 1)

	r.cls.set(regime.Abnormal)
	rep, err := r.cycle(t, t0.Add(time.Hour))
	require.NoError(t, err)

	assert.Empty(t, rep.Proposals)
	assert.Empty(t, rep.Opened)
	require.Len(t, rep.Closed, 1)
	closed := rep.Closed[0]
	assert.Equal(t, execution.ExitRegime, closed.ExitReason)
	assert.Equal(t, execution.Closed, closed.Status)
	assert.Less(t, closed.RealizedPnL, 0.0, "round trip pays spread and commission")

	assert.Empty(t, r.o.Positions())
	assert.Empty(t, r.ledger.Open())
	assert.Empty(t, r.broker.Net())
	assert.Equal(t, 1, r.o.BreakerState().ConsecutiveLosses)

	acct, err := r.ledger.Account(context.Background(), t0.Add(time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 100000+closed.RealizedPnL, acct.Equity, 1e-6)
	assert.InDelta(t, closed.RealizedPnL, acct.DayRealized, 1e-6)
}

func TestGatedSnapshotsProposeNothing(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		label regime.Label
		mut   func(*regime.Params)
	}{
		{"abnormal", regime.Abnormal, nil},
		{"chaos", regime.Chaos, nil},
		{"unknown", regime.Unknown, nil},
		{"alarm", regime.RangeBound, func(p *regime.Params) { p.Alarm = true }},
		{"abnormal probability", regime.RangeBound, func(p *regime.Params) { p.AbnormalProb = 0.5 }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newRig(t, tt.label)
			r.cls.mut = tt.mut
			rep, err := r.cycle(t, t0)
			require.NoError(t, err)
			assert.Empty(t, rep.Proposals)
			assert.Empty(t, rep.Opened)
			assert.Empty(t, r.o.Positions())
		})
	}
}

type downLedger struct{ *sim.Ledger }

func (downLedger) Account(context.Context, time.Time) (risk.AccountState, error) {
	return risk.AccountState{}, errors.New("ledger offline")
}

func TestCollaboratorOutageSkipsCycle(t *testing.T) {
	t.Parallel()

	t.Run("feed", func(t *testing.T) {
		t.Parallel()
		r := newRig(t, regime.RangeBound)
		before := r.o.BreakerState()
		r.feed.fail(errors.New("connection refused"))

		rep, err := r.cycle(t, t0)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
		assert.True(t, rep.Snapshot.IsZero())
		assert.Zero(t, r.cls.count())
		assert.Equal(t, before, r.o.BreakerState())
		assert.Empty(t, r.o.Positions())
	})

	t.Run("ledger", func(t *testing.T) {
		t.Parallel()
		r := newRig(t, regime.RangeBound, func(d *Deps) {
			d.Ledger = downLedger{sim.NewLedger(100000)}
		})
		_, err := r.cycle(t, t0)
		assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
		assert.Zero(t, r.cls.count())
		assert.Equal(t, risk.Active, r.o.BreakerState().Mode)
	})

	t.Run("breaker opens after repeated failures", func(t *testing.T) {
		t.Parallel()
		r := newRig(t, regime.RangeBound)
		r.feed.fail(errors.New("timeout"))
		for i := 0; i < int(DefaultConfig().BreakerFailures); i++ {
			_, err := r.cycle(t, t0)
			require.ErrorIs(t, err, ErrCollaboratorUnavailable)
		}

		r.feed.fail(nil)
		_, err := r.cycle(t, t0)
		assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
		assert.Zero(t, r.cls.count())
	})
}

func TestRejectedLegsRollBackWithoutTouchingRiskState(t *testing.T) {
	t.Parallel()
	r := newRig(t, regime.RangeBound)
	// Entry orders are limits and rollbacks are market orders, so only the
	// entry's long legs fail.
	r.broker.RejectWhen(func(l execution.LegRequest) string {
		if l.Side == strategy.Buy && l.OrderType == execution.LimitOrder {
			return "no liquidity"
		}
		return ""
	})

	rep, err := r.cycle(t, t0)
	require.Error(t, err)
	assert.ErrorIs(t, err, execution.ErrPartialFill)
	var pf *execution.PartialFillError
	require.ErrorAs(t, err, &pf)
	assert.Empty(t, pf.NetOpen())

	require.Len(t, rep.Decisions, 1)
	assert.True(t, rep.Decisions[0].Approved)
	assert.Empty(t, rep.Opened)
	assert.Empty(t, r.o.Positions())
	assert.Empty(t, r.ledger.Open())
	assert.Empty(t, r.broker.Net())
	assert.Zero(t, r.o.BreakerState().ConsecutiveLosses)
}

func TestRunTicksInsideSession(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		clock time.Time
		want  bool
	}{
		{"in session", t0, true},
		{"saturday", time.Date(2024, 6, 8, 15, 0, 0, 0, time.UTC), false},
		{"before open", time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newRig(t, regime.Unknown, func(d *Deps) {
				d.Config.Interval = 5 * time.Millisecond
				d.Clock = func() time.Time { return tt.clock }
			})
			r.now = tt.clock
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()

			err := r.o.Run(ctx)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			if tt.want {
				assert.Positive(t, r.cls.count())
			} else {
				assert.Zero(t, r.cls.count())
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Underlying = ""
	bad.Interval = 0
	bad.SessionStart = "16:00"
	bad.SubmitBurst = 0
	err := bad.Validate()
	require.Error(t, err)
	for _, key := range []string{"loop.underlying", "loop.interval", "loop.session_start", "loop.submit_burst"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()
	_, err := New(Deps{Config: DefaultConfig(), Execution: execution.DefaultConfig()})
	assert.Error(t, err)
}
