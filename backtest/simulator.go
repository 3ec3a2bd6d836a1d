// Package backtest replays historical bars through the decision loop with
// simulated collaborators and summarises the outcome.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/regimetrader/config"
	"github.com/rustyeddy/regimetrader/execution"
	"github.com/rustyeddy/regimetrader/internal/metrics"
	"github.com/rustyeddy/regimetrader/journal"
	"github.com/rustyeddy/regimetrader/market"
	"github.com/rustyeddy/regimetrader/orchestrator"
	"github.com/rustyeddy/regimetrader/regime"
	"github.com/rustyeddy/regimetrader/risk"
	"github.com/rustyeddy/regimetrader/sim"
	"github.com/rustyeddy/regimetrader/strategy"
)

// ErrNoBars is returned when no bar falls inside the tested window.
var ErrNoBars = errors.New("backtest: no bars in window")

// Simulator runs one configuration over historical bars.
type Simulator struct {
	cfg        config.Config
	journal    journal.Journal
	companions map[string]market.Bars
	model      *regime.Model
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

type Option func(*Simulator)

// WithJournal streams trades, equity and regime records to j as they occur.
func WithJournal(j journal.Journal) Option {
	return func(s *Simulator) { s.journal = j }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Simulator) { s.log = l }
}

// WithCompanions adds bar series for the loop's companion instruments.
func WithCompanions(series map[string]market.Bars) Option {
	return func(s *Simulator) { s.companions = series }
}

func WithModel(m *regime.Model) Option {
	return func(s *Simulator) { s.model = m }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Simulator) { s.metrics = m }
}

func New(cfg config.Config, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}
	s := &Simulator{cfg: cfg, log: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Simulator) Config() config.Config { return s.cfg }

// Run replays bars with one cycle per bar whose time lies in [start, end]
// (zero bounds are open). Bars before start serve as indicator history.
// Positions still open after the last bar are closed with
// execution.ExitEndOfTest.
func (s *Simulator) Run(ctx context.Context, bars market.Bars, start, end time.Time) (Result, error) {
	window := bars.Between(start, end)
	if len(window) == 0 {
		return Result{}, ErrNoBars
	}

	cfg := s.cfg
	underlying := cfg.Loop.Underlying
	res := Result{
		RunID:      uuid.NewString(),
		Underlying: underlying,
		Start:      window[0].Time,
		End:        window[len(window)-1].Time,
	}
	log := s.log.With().Str("component", "backtest").Str("run", res.RunID).Logger()

	series := map[string]market.Bars{underlying: bars}
	for sym, bs := range s.companions {
		if sym != underlying {
			series[sym] = bs
		}
	}
	feed := sim.NewFeed(series, cfg.Backtest.VolWindow, cfg.Regime.PeriodsPerYear)
	feed.MinDTE = cfg.Backtest.Chain.MinDTE
	feed.MaxDTE = cfg.Backtest.Chain.MaxDTE
	feed.SetChainParams(cfg.ChainParams(underlying))

	var now time.Time
	clock := func() time.Time { return now }
	broker := sim.NewBroker(cfg.Backtest.Cost, feed, clock, log)
	ledger := sim.NewLedger(cfg.Backtest.Capital)

	cal, err := cfg.Regime.Calendar()
	if err != nil {
		return Result{}, err
	}
	classifier := regime.NewClassifier(cfg.Regime,
		regime.WithModel(s.model),
		regime.WithCalendar(cal),
		regime.WithLogger(log))

	loop := cfg.Loop
	// simulated time must not wait on a wall-clock limiter
	loop.SubmitRate = 0

	orch, err := orchestrator.New(orchestrator.Deps{
		Config:            loop,
		Execution:         cfg.Execution,
		Feed:              feed,
		Ledger:            ledger,
		Transport:         broker,
		Classifier:        classifier,
		Selector:          strategy.NewSelector(cfg.Strategy, log),
		Risk:              risk.NewManager(cfg.Risk, log),
		CorrelationWindow: cfg.Regime.CorrelationWindow,
		SkewWingPct:       cfg.Regime.SkewWingPct,
		Metrics:           s.metrics,
		Log:               log,
		Clock:             clock,
	})
	if err != nil {
		return Result{}, err
	}

	log.Info().
		Str("underlying", underlying).
		Time("start", res.Start).
		Time("end", res.End).
		Int("bars", len(window)).
		Msg("backtest started")

	for i, b := range window {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		now = b.Time
		res.Cycles++

		rep, err := orch.RunCycle(ctx, now)
		if err != nil {
			res.Errors++
			log.Warn().Err(err).Time("at", now).Msg("cycle error")
		}
		if !rep.Snapshot.IsZero() {
			if err := s.regime(&res, rep); err != nil {
				return Result{}, err
			}
		}
		closed := rep.Closed
		if i == len(window)-1 {
			flat, err := orch.CloseAll(ctx, now, execution.ExitEndOfTest)
			if err != nil {
				res.Errors++
				log.Warn().Err(err).Msg("end of test close failed")
			}
			closed = append(closed, flat...)
		}
		if err := s.trades(&res, closed); err != nil {
			return Result{}, err
		}
		if err := s.equity(ctx, &res, ledger, now); err != nil {
			return Result{}, err
		}
	}

	res.Summary = Summarize(res.Trades, res.Equity, cfg.Regime.PeriodsPerYear)
	res.Summary.finish(cfg.Backtest.Capital)
	res.Summary.DCEvents = len(regime.DetectEvents(window, cfg.Regime.DCThreshold))
	for _, r := range res.Regimes {
		if r.Alarm {
			res.Summary.Alarms++
		}
	}

	log.Info().
		Int("trades", res.Summary.Trades).
		Float64("return", res.Summary.TotalReturn).
		Float64("max_dd", res.Summary.MaxDrawdown).
		Int("dc_events", res.Summary.DCEvents).
		Int("alarms", res.Summary.Alarms).
		Msg("backtest finished")
	return res, nil
}

func (s *Simulator) regime(res *Result, rep orchestrator.CycleReport) error {
	snap := rep.Snapshot
	rec := journal.RegimeRecord{
		RunID:        res.RunID,
		Time:         rep.Time,
		Label:        string(snap.Label()),
		AbnormalProb: snap.AbnormalProb(),
		Confluence:   snap.Confluence(),
		Alarm:        snap.Alarm(),
		Degraded:     snap.Degraded(),
		DCEvents:     snap.DCEvents(),
		BreakerMode:  string(rep.Breaker.Mode),
	}
	res.Regimes = append(res.Regimes, rec)
	if s.journal == nil {
		return nil
	}
	if err := s.journal.RecordRegime(rec); err != nil {
		return fmt.Errorf("journal regime: %w", err)
	}
	return nil
}

func (s *Simulator) trades(res *Result, closed []execution.Position) error {
	for _, p := range closed {
		rec := journal.TradeRecord{
			RunID:      res.RunID,
			TradeID:    p.ID,
			ProposalID: p.Proposal.ID,
			Underlying: p.Underlying(),
			Structure:  string(p.Proposal.Structure),
			Regime:     string(p.Proposal.Regime),
			Lots:       p.Lots,
			EntryPrice: p.EntryPrice,
			ExitPrice:  p.ExitPrice,
			OpenTime:   p.OpenedAt,
			CloseTime:  p.ClosedAt,
			Commission: p.Commission,
			RealizedPL: p.RealizedPnL,
			Reason:     string(p.ExitReason),
		}
		res.Trades = append(res.Trades, rec)
		if s.journal == nil {
			continue
		}
		if err := s.journal.RecordTrade(rec); err != nil {
			return fmt.Errorf("journal trade: %w", err)
		}
	}
	return nil
}

func (s *Simulator) equity(ctx context.Context, res *Result, ledger *sim.Ledger, now time.Time) error {
	acct, err := ledger.Account(ctx, now)
	if err != nil {
		return err
	}
	snap := journal.EquitySnapshot{
		RunID:         res.RunID,
		Time:          now,
		Equity:        acct.Equity,
		MarginUsed:    acct.MarginUsed,
		HWM:           acct.HWM,
		OpenPositions: len(acct.OpenPositions),
	}
	if acct.HWM > 0 {
		snap.Drawdown = (acct.HWM - acct.Equity) / acct.HWM
	}
	res.Equity = append(res.Equity, snap)
	if s.journal == nil {
		return nil
	}
	if err := s.journal.RecordEquity(snap); err != nil {
		return fmt.Errorf("journal equity: %w", err)
	}
	return nil
}
