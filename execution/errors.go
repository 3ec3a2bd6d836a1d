package execution

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rustyeddy/regimetrader/strategy"
)

var (
	// ErrPartialFill means the unit did not fully fill and filled legs were
	// rolled back.
	ErrPartialFill = errors.New("execution: partial fill")
	// ErrRollbackFailed means offsetting orders did not flatten every filled
	// leg. Manual action is required.
	ErrRollbackFailed = errors.New("execution: rollback failed")
	ErrInvalidSignal  = errors.New("execution: invalid signal")
)

// LegOutcome is the per-leg detail of a failed unit.
type LegOutcome struct {
	Instrument string
	Side       strategy.Side
	Requested  int
	Filled     int
	RolledBack int
	Status     OrderStatus
	Reason     string
}

// PartialFillError reports a unit that did not fully fill. Kind is
// ErrPartialFill or ErrRollbackFailed.
type PartialFillError struct {
	ProposalID string
	Kind       error
	Legs       []LegOutcome
	Err        error
}

func (e *PartialFillError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v: proposal %s", e.Kind, e.ProposalID)
	for _, l := range e.Legs {
		fmt.Fprintf(&b, "; %s %s filled %d/%d rolled back %d", l.Instrument, l.Status, l.Filled, l.Requested, l.RolledBack)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *PartialFillError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NetOpen is the signed quantity per instrument still open after rollback.
func (e *PartialFillError) NetOpen() map[string]int {
	out := make(map[string]int)
	for _, l := range e.Legs {
		if n := l.Filled - l.RolledBack; n != 0 {
			out[l.Instrument] += n * int(l.Side.Sign())
		}
	}
	return out
}
