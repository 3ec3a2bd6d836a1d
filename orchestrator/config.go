package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/regimetrader/internal/duration"
)

type Config struct {
	Underlying string   `json:"underlying" yaml:"underlying"`
	Companions []string `json:"companions,omitempty" yaml:"companions,omitempty"`
	// History is the number of bars requested per cycle.
	History int `json:"history" yaml:"history"`
	// IVHistory > 0 ranks ATM IV over that many cycles instead of letting the
	// classifier rank realized volatility.
	IVHistory int `json:"iv_history" yaml:"iv_history"`

	Interval     time.Duration `json:"interval" yaml:"interval"`
	SessionStart string        `json:"session_start,omitempty" yaml:"session_start,omitempty"` // "HH:MM"
	SessionEnd   string        `json:"session_end,omitempty" yaml:"session_end,omitempty"`
	Timezone     string        `json:"timezone,omitempty" yaml:"timezone,omitempty"`

	// Collaborator circuit breakers
	BreakerFailures uint32        `json:"breaker_failures" yaml:"breaker_failures"`
	BreakerCooldown time.Duration `json:"breaker_cooldown" yaml:"breaker_cooldown"`

	// Order pacing; SubmitRate 0 disables it.
	SubmitRate  float64 `json:"submit_rate" yaml:"submit_rate"` // submissions per second
	SubmitBurst int     `json:"submit_burst" yaml:"submit_burst"`
}

func DefaultConfig() Config {
	return Config{
		Underlying:      "SPY",
		History:         300,
		Interval:        5 * time.Minute,
		SessionStart:    "09:30",
		SessionEnd:      "16:00",
		Timezone:        "America/New_York",
		BreakerFailures: 3,
		BreakerCooldown: time.Minute,
		SubmitRate:      2,
		SubmitBurst:     4,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Underlying == "" {
		errs = append(errs, errors.New("loop.underlying is required"))
	}
	if c.History <= 0 {
		errs = append(errs, errors.New("loop.history must be positive"))
	}
	if c.IVHistory < 0 {
		errs = append(errs, errors.New("loop.iv_history must not be negative"))
	}
	if c.Interval <= 0 {
		errs = append(errs, errors.New("loop.interval must be positive"))
	}
	if _, err := c.session(); err != nil {
		errs = append(errs, err)
	}
	if c.BreakerFailures == 0 {
		errs = append(errs, errors.New("loop.breaker_failures must be positive"))
	}
	if c.BreakerCooldown <= 0 {
		errs = append(errs, errors.New("loop.breaker_cooldown must be positive"))
	}
	if c.SubmitRate < 0 {
		errs = append(errs, errors.New("loop.submit_rate must not be negative"))
	}
	if c.SubmitRate > 0 && c.SubmitBurst <= 0 {
		errs = append(errs, errors.New("loop.submit_burst must be positive when submit_rate is set"))
	}
	return errors.Join(errs...)
}

type session struct {
	start, end int // minutes after midnight
	loc        *time.Location
}

func (c Config) session() (session, error) {
	s := session{start: 0, end: 24 * 60, loc: time.UTC}
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return s, fmt.Errorf("loop.timezone: %w", err)
		}
		s.loc = loc
	}
	for _, f := range []struct {
		key string
		val string
		dst *int
	}{
		{"session_start", c.SessionStart, &s.start},
		{"session_end", c.SessionEnd, &s.end},
	} {
		if f.val == "" {
			continue
		}
		t, err := time.Parse("15:04", f.val)
		if err != nil {
			return s, fmt.Errorf("loop.%s: %w", f.key, err)
		}
		*f.dst = t.Hour()*60 + t.Minute()
	}
	if s.start >= s.end {
		return s, errors.New("loop.session_start must be before session_end")
	}
	return s, nil
}

// InSession reports whether t falls on a weekday inside the session hours.
func (c Config) InSession(t time.Time) bool {
	s, err := c.session()
	if err != nil {
		return false
	}
	lt := t.In(s.loc)
	if wd := lt.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	m := lt.Hour()*60 + lt.Minute()
	return m >= s.start && m < s.end
}

type plainConfig Config

type jsonConfig struct {
	plainConfig
	Interval        duration.Duration `json:"interval"`
	BreakerCooldown duration.Duration `json:"breaker_cooldown"`
}

// MarshalJSON writes durations as strings such as "5m0s".
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonConfig{
		plainConfig:     plainConfig(c),
		Interval:        duration.Duration(c.Interval),
		BreakerCooldown: duration.Duration(c.BreakerCooldown),
	})
}

// UnmarshalJSON accepts durations as strings or integer nanoseconds. Absent
// keys keep their current values.
func (c *Config) UnmarshalJSON(data []byte) error {
	aux := jsonConfig{
		plainConfig:     plainConfig(*c),
		Interval:        duration.Duration(c.Interval),
		BreakerCooldown: duration.Duration(c.BreakerCooldown),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Config(aux.plainConfig)
	c.Interval = time.Duration(aux.Interval)
	c.BreakerCooldown = time.Duration(aux.BreakerCooldown)
	return nil
}
