package strategy

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/regimetrader/regime"
)

// Selector proposes structures for a regime. It has no side effects and
// identical inputs give identical proposals.
type Selector struct {
	cfg Config
	log zerolog.Logger
}

func NewSelector(cfg Config, log zerolog.Logger) *Selector {
	return &Selector{cfg: cfg, log: log.With().Str("component", "strategy").Logger()}
}

func (s *Selector) Config() Config { return s.cfg }

// ShortVolAllowed reports whether the snapshot permits selling volatility.
func (s *Selector) ShortVolAllowed(snap regime.Snapshot) bool {
	return !snap.Alarm() &&
		snap.AbnormalProb() < s.cfg.ShortVolMaxAbnormal &&
		snap.Confluence() < s.cfg.CautionConfluence
}

// Propose returns at most one proposal: the first eligible structure for the
// regime that builds and passes liquidity and skew checks.
func (s *Selector) Propose(snap regime.Snapshot, v View) []Proposal {
	if reason := s.gate(snap, v); reason != "" {
		s.log.Debug().Str("regime", string(snap.Label())).Str("reason", reason).Msg("no proposal")
		return nil
	}
	expiry, ok := v.Chain.NearestExpiry(s.cfg.TargetDTE)
	if !ok {
		return nil
	}

	var cands []Structure
	sortByMargin := false
	dir := int(snap.MetricOr(regime.MetricTrendDir, 0))

	switch snap.Label() {
	case regime.RangeBound:
		if !s.ShortVolAllowed(snap) {
			s.log.Debug().Float64("abnormal_prob", snap.AbnormalProb()).Int("confluence", snap.Confluence()).Msg("short vol gated")
			return nil
		}
		cands = []Structure{IronCondor, IronButterfly}
		sortByMargin = true
	case regime.Trend:
		if dir == 0 {
			return nil
		}
		cands = []Structure{debitFor(dir), creditFor(dir)}
	case regime.MeanReversion:
		// fade the momentum extreme
		fade := -1
		if snap.MetricOr(regime.MetricRSI, 50) < 50 {
			fade = 1
		}
		cands = []Structure{creditFor(fade)}
	case regime.Caution:
		if dir == 0 {
			return nil
		}
		cands = []Structure{debitFor(dir)}
	default:
		return nil
	}

	built := make([]Proposal, 0, len(cands))
	for _, st := range cands {
		p, err := Build(st, v, expiry, s.cfg, snap)
		if err != nil {
			s.log.Debug().Err(err).Str("structure", string(st)).Msg("candidate omitted")
			continue
		}
		built = append(built, p)
	}
	if sortByMargin {
		sort.SliceStable(built, func(i, j int) bool { return built[i].Margin < built[j].Margin })
	}

	for _, p := range built {
		if err := s.cfg.checkLiquidity(p); err != nil {
			s.log.Debug().Err(err).Str("structure", string(p.Structure)).Msg("liquidity check failed")
			continue
		}
		if err := s.cfg.checkSkew(p); err != nil {
			s.log.Debug().Err(err).Str("structure", string(p.Structure)).Msg("skew check failed")
			continue
		}
		return []Proposal{p}
	}
	return nil
}

func (s *Selector) gate(snap regime.Snapshot, v View) string {
	switch {
	case snap.Label().Halting(), snap.Label() == regime.Unknown, snap.IsZero():
		return "regime"
	case snap.Alarm():
		return "alarm"
	case snap.Blackout():
		return "event blackout"
	case !s.cfg.InEntryWindow(v.Now):
		return "outside entry window"
	case v.Chain.Empty():
		return "empty chain"
	}
	return ""
}

func debitFor(dir int) Structure {
	if dir > 0 {
		return CallDebitSpread
	}
	return PutDebitSpread
}

func creditFor(dir int) Structure {
	if dir > 0 {
		return PutCreditSpread
	}
	return CallCreditSpread
}
