package risk

import (
	"fmt"
	"math"

	"github.com/rustyeddy/regimetrader/strategy"
)

type Violation struct {
	Code string
	Msg  string
}

// Decision is the outcome of evaluating one proposal. A rejection is an
// expected outcome, not an error.
type Decision struct {
	Approved   bool
	Signal     strategy.Proposal // sized proposal, set only when approved
	Lots       int
	Reason     string
	Violations []Violation

	Multipliers Multipliers
	Product     float64
	Mode        Mode
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Approved = false
	if d.Reason == "" {
		d.Reason = msg
	}
}

// Codes returns the violation codes in order.
func (d Decision) Codes() []string {
	out := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		out[i] = v.Code
	}
	return out
}

// checkCaps enforces the hard caps for the proposal sized at lots. Any
// breach rejects.
func checkCaps(d *Decision, pol Policy, p strategy.Proposal, lots int, acct AccountState) {
	if n := len(acct.OpenPositions); n >= pol.MaxPositions {
		d.add("MAX_POSITIONS", fmt.Sprintf("open positions %d >= max %d", n, pol.MaxPositions))
	}

	margin := acct.MarginUsed + p.Margin*float64(lots)
	if acct.Equity > 0 && margin/acct.Equity > pol.MaxMarginPct {
		d.add("MARGIN_CAP", fmt.Sprintf("margin %.2f%% of equity exceeds max %.2f%%",
			100*margin/acct.Equity, 100*pol.MaxMarginPct))
	}

	g := acct.Greeks().Add(p.Greeks.Scale(float64(lots)))
	for _, c := range []struct {
		code  string
		name  string
		value float64
		limit float64
	}{
		{"DELTA_CAP", "delta", g.Delta, pol.MaxDelta},
		{"GAMMA_CAP", "gamma", g.Gamma, pol.MaxGamma},
		{"VEGA_CAP", "vega", g.Vega, pol.MaxVega},
	} {
		if math.Abs(c.value) > c.limit {
			d.add(c.code, fmt.Sprintf("portfolio %s %.1f exceeds cap %.1f", c.name, c.value, c.limit))
		}
	}
}
