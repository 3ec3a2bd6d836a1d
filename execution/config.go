package execution

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rustyeddy/regimetrader/internal/duration"
)

type Config struct {
	FillTimeout  time.Duration `json:"fill_timeout" yaml:"fill_timeout"`
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
	OrderType    OrderType     `json:"order_type" yaml:"order_type"`

	// Trailing and exits
	TrailActivation    float64 `json:"trail_activation" yaml:"trail_activation"`         // fraction of target
	ATRMultiple        float64 `json:"atr_multiple" yaml:"atr_multiple"`                 // directional trail distance
	LockFraction       float64 `json:"lock_fraction" yaml:"lock_fraction"`               // short-vol locked share of peak P&L
	LockBandwidthRatio float64 `json:"lock_bandwidth_ratio" yaml:"lock_bandwidth_ratio"` // band-width ratio that locks
	ExitDTE            int     `json:"exit_dte" yaml:"exit_dte"`
}

func DefaultConfig() Config {
	return Config{
		FillTimeout:        30 * time.Second,
		PollInterval:       time.Second,
		OrderType:          LimitOrder,
		TrailActivation:    0.5,
		ATRMultiple:        2,
		LockFraction:       0.5,
		LockBandwidthRatio: 1.5,
		ExitDTE:            21,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.FillTimeout <= 0 {
		errs = append(errs, errors.New("execution.fill_timeout must be positive"))
	}
	if c.PollInterval <= 0 || c.PollInterval > c.FillTimeout {
		errs = append(errs, errors.New("execution.poll_interval must be positive and at most fill_timeout"))
	}
	if c.OrderType != MarketOrder && c.OrderType != LimitOrder {
		errs = append(errs, errors.New("execution.order_type must be MARKET or LIMIT"))
	}
	if c.TrailActivation <= 0 || c.TrailActivation > 1 {
		errs = append(errs, errors.New("execution.trail_activation must be in (0,1]"))
	}
	if c.ATRMultiple <= 0 {
		errs = append(errs, errors.New("execution.atr_multiple must be positive"))
	}
	if c.LockFraction <= 0 || c.LockFraction >= 1 {
		errs = append(errs, errors.New("execution.lock_fraction must be in (0,1)"))
	}
	if c.LockBandwidthRatio <= 0 {
		errs = append(errs, errors.New("execution.lock_bandwidth_ratio must be positive"))
	}
	if c.ExitDTE < 0 {
		errs = append(errs, errors.New("execution.exit_dte must not be negative"))
	}
	return errors.Join(errs...)
}

type plainConfig Config

type jsonConfig struct {
	plainConfig
	FillTimeout  duration.Duration `json:"fill_timeout"`
	PollInterval duration.Duration `json:"poll_interval"`
}

// MarshalJSON writes durations as strings such as "30s".
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonConfig{
		plainConfig:  plainConfig(c),
		FillTimeout:  duration.Duration(c.FillTimeout),
		PollInterval: duration.Duration(c.PollInterval),
	})
}

// UnmarshalJSON accepts durations as strings or integer nanoseconds. Absent
// keys keep their current values.
func (c *Config) UnmarshalJSON(data []byte) error {
	aux := jsonConfig{
		plainConfig:  plainConfig(*c),
		FillTimeout:  duration.Duration(c.FillTimeout),
		PollInterval: duration.Duration(c.PollInterval),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Config(aux.plainConfig)
	c.FillTimeout = time.Duration(aux.FillTimeout)
	c.PollInterval = time.Duration(aux.PollInterval)
	return nil
}
