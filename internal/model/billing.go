package model

import "fmt"

// BillingConfig is the hot-reloadable billing policy. It lives in the
// billing_settings table and is read fresh at the start of every cycle,
// so rate or interval changes take effect without a restart.
type BillingConfig struct {
	Enabled           bool
	IntervalMinutes   int64
	RatePerUnitMinute int64
	AutoSuspend       bool
	AutoResume        bool
	GraceDays         int64
}

// DefaultBillingConfig documents the defaults applied when the settings
// row is missing or a field is out of range.
func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Enabled:           true,
		IntervalMinutes:   10,
		RatePerUnitMinute: 1,
		AutoSuspend:       true,
		AutoResume:        true,
		GraceDays:         7,
	}
}

// Validate rejects configs that would make the cycle misbehave
// (zero interval, negative rate, negative grace).
func (c BillingConfig) Validate() error {
	if c.IntervalMinutes <= 0 {
		return fmt.Errorf("billing config: interval_minutes must be positive, got %d", c.IntervalMinutes)
	}
	if c.RatePerUnitMinute < 0 {
		return fmt.Errorf("billing config: rate_per_unit_minute must not be negative, got %d", c.RatePerUnitMinute)
	}
	if c.GraceDays < 0 {
		return fmt.Errorf("billing config: grace_days must not be negative, got %d", c.GraceDays)
	}
	return nil
}

// ChargeFor computes the coin cost of one interval for a resource of the
// given size. Integer math: units, rate and interval are all whole numbers.
func (c BillingConfig) ChargeFor(units int64) int64 {
	return units * c.RatePerUnitMinute * c.IntervalMinutes
}
