package market

import (
	"context"
	"time"
)

// Feed is the market-data collaborator.
type Feed interface {
	// Bars returns up to n bars of instrument ending at or before end.
	Bars(ctx context.Context, instrument string, end time.Time, n int) (Bars, error)
	// Chain returns the option-chain snapshot of underlying as of at.
	Chain(ctx context.Context, underlying string, at time.Time) (OptionChain, error)
}
