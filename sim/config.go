// Package sim provides simulated collaborators: a historical feed with
// synthetic option chains, a fill-simulating broker and a cash ledger.
package sim

import (
	"errors"
)

// CostModel prices simulated fills.
type CostModel struct {
	// Slippage moves the fill away from mid by this fraction of mid.
	Slippage float64 `json:"slippage" yaml:"slippage"`
	// CommissionPerContract is charged per contract filled.
	CommissionPerContract float64 `json:"commission_per_contract" yaml:"commission_per_contract"`
	// FeeFraction is charged on premium notional.
	FeeFraction float64 `json:"fee_fraction" yaml:"fee_fraction"`
	Multiplier  float64 `json:"multiplier" yaml:"multiplier"`
}

func DefaultCostModel() CostModel {
	return CostModel{
		Slippage:              0.01,
		CommissionPerContract: 0.65,
		FeeFraction:           0.0005,
		Multiplier:            100,
	}
}

func (c CostModel) Validate() error {
	var errs []error
	if c.Slippage < 0 || c.Slippage >= 1 {
		errs = append(errs, errors.New("sim.slippage must be in [0,1)"))
	}
	if c.CommissionPerContract < 0 {
		errs = append(errs, errors.New("sim.commission_per_contract must not be negative"))
	}
	if c.FeeFraction < 0 || c.FeeFraction >= 1 {
		errs = append(errs, errors.New("sim.fee_fraction must be in [0,1)"))
	}
	if c.Multiplier <= 0 {
		errs = append(errs, errors.New("sim.multiplier must be positive"))
	}
	return errors.Join(errs...)
}
