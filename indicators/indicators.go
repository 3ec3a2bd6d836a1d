// Package indicators provides technical analysis indicators over market bars.
//
// Streaming indicators consume one closed bar at a time and are safe to use
// in live, replay and backtests. Batch helpers operate on whole series.
package indicators

import "github.com/rustyeddy/regimetrader/market"

// Indicator computes a single streaming value from bars.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)" or "RSI(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next closed bar.
	Update(b market.Bar)

	// Ready reports whether Value() is meaningful.
	Ready() bool

	// Value returns the current value, 0 before warmup completes.
	Value() float64
}

// Run feeds every bar to ind and returns the final value.
func Run(ind Indicator, bars market.Bars) (float64, bool) {
	ind.Reset()
	for _, b := range bars {
		ind.Update(b)
	}
	return ind.Value(), ind.Ready()
}
