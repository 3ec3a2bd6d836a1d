package market

import (
	"fmt"
	"math"
	"sort"
	"time"
)

type OptionType string

const (
	Call OptionType = "C"
	Put  OptionType = "P"
)

// OptionQuote is one contract in an option-chain snapshot.
type OptionQuote struct {
	Underlying   string
	Type         OptionType
	Strike       float64
	Expiry       time.Time
	Bid          float64
	Ask          float64
	OpenInterest float64
	IV           float64
}

func (q OptionQuote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// RelSpread is the bid/ask spread as a fraction of mid. Untradeable quotes
// report +Inf.
func (q OptionQuote) RelSpread() float64 {
	m := q.Mid()
	if m <= 0 || q.Ask < q.Bid {
		return math.Inf(1)
	}
	return (q.Ask - q.Bid) / m
}

// Symbol is the contract identifier used on leg requests.
func (q OptionQuote) Symbol() string {
	return OptionSymbol(q.Underlying, q.Expiry, q.Type, q.Strike)
}

// OptionSymbol formats an OCC-style contract symbol: SPY240315P00450000.
func OptionSymbol(underlying string, expiry time.Time, typ OptionType, strike float64) string {
	return fmt.Sprintf("%s%s%s%08d", underlying, expiry.Format("060102"), typ, int64(math.Round(strike*1000)))
}

// OptionChain is a snapshot of quotes for one underlying, possibly spanning
// several expiries.
type OptionChain struct {
	Underlying string
	Spot       float64
	AsOf       time.Time
	Quotes     []OptionQuote
}

func (c OptionChain) Empty() bool {
	return len(c.Quotes) == 0 || c.Spot <= 0
}

// Expiries returns the distinct expiries in ascending order.
func (c OptionChain) Expiries() []time.Time {
	seen := map[int64]time.Time{}
	for _, q := range c.Quotes {
		seen[q.Expiry.Unix()] = q.Expiry
	}
	out := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// NearestExpiry returns the expiry whose days-to-expiry is closest to
// targetDTE, preferring the later one on ties.
func (c OptionChain) NearestExpiry(targetDTE int) (time.Time, bool) {
	exps := c.Expiries()
	if len(exps) == 0 {
		return time.Time{}, false
	}
	best := exps[0]
	bestDiff := math.MaxFloat64
	for _, e := range exps {
		d := math.Abs(DaysBetween(c.AsOf, e) - float64(targetDTE))
		if d <= bestDiff {
			best, bestDiff = e, d
		}
	}
	return best, true
}

// Side returns the quotes of one type and expiry sorted by strike.
func (c OptionChain) Side(expiry time.Time, typ OptionType) []OptionQuote {
	out := make([]OptionQuote, 0)
	for _, q := range c.Quotes {
		if q.Type == typ && q.Expiry.Equal(expiry) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out
}

// Find looks up a contract by type, expiry and strike.
func (c OptionChain) Find(expiry time.Time, typ OptionType, strike float64) (OptionQuote, bool) {
	for _, q := range c.Quotes {
		if q.Type == typ && q.Expiry.Equal(expiry) && math.Abs(q.Strike-strike) < 1e-9 {
			return q, true
		}
	}
	return OptionQuote{}, false
}

// BySymbol indexes quotes by contract symbol.
func (c OptionChain) BySymbol() map[string]OptionQuote {
	out := make(map[string]OptionQuote, len(c.Quotes))
	for _, q := range c.Quotes {
		out[q.Symbol()] = q
	}
	return out
}

// ATMStrike returns the listed strike closest to spot for an expiry.
func (c OptionChain) ATMStrike(expiry time.Time) (float64, bool) {
	calls := c.Side(expiry, Call)
	if len(calls) == 0 {
		return 0, false
	}
	best := calls[0].Strike
	for _, q := range calls {
		if math.Abs(q.Strike-c.Spot) < math.Abs(best-c.Spot) {
			best = q.Strike
		}
	}
	return best, true
}

// ChainMetrics are the option-chain derived inputs to regime classification.
type ChainMetrics struct {
	ATMIV float64
	// IVPercentile in [0,100]; only used when HasIVPercentile is set.
	IVPercentile    float64
	HasIVPercentile bool
	// PutCallSkew is OTM put IV minus OTM call IV at comparable distance.
	PutCallSkew float64
	// Correlations of the underlying against companion instruments.
	Correlations map[string]float64
}

// Metrics derives ATM IV and skew from the expiry nearest targetDTE.
func (c OptionChain) Metrics(targetDTE int, wingPct float64) ChainMetrics {
	m := ChainMetrics{}
	exp, ok := c.NearestExpiry(targetDTE)
	if !ok {
		return m
	}
	if atm, ok := c.ATMStrike(exp); ok {
		if q, ok := c.Find(exp, Call, atm); ok {
			m.ATMIV = q.IV
		}
	}
	put := nearestStrike(c.Side(exp, Put), c.Spot*(1-wingPct))
	call := nearestStrike(c.Side(exp, Call), c.Spot*(1+wingPct))
	if put != nil && call != nil {
		m.PutCallSkew = put.IV - call.IV
	}
	return m
}

func nearestStrike(qs []OptionQuote, target float64) *OptionQuote {
	var best *OptionQuote
	for i := range qs {
		if best == nil || math.Abs(qs[i].Strike-target) < math.Abs(best.Strike-target) {
			best = &qs[i]
		}
	}
	return best
}

// DaysBetween returns fractional calendar days from a to b.
func DaysBetween(a, b time.Time) float64 {
	return b.Sub(a).Hours() / 24
}
