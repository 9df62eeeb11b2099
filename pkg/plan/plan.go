package plan

import (
	"time"
)

const (
	// Unlimited indicates no cap for traffic or devices (-1 chosen for SQL compatibility).
	Unlimited int64 = -1
)

// Money represents a monetary amount in the smallest currency unit.
// For example, $5.00 USD would be Amount: 500, Currency: "USD".
type Money struct {
	Amount   int64  `json:"amount" yaml:"amount"`
	Currency string `json:"currency" yaml:"currency"` // ISO 4217 code, or "XTR" for Telegram Stars
}

// Plan describes a purchasable VPN subscription plan. The ID is the value
// payment events carry in their planId field, so it must be stable across
// catalog reloads.
type Plan struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// DurationDays is the subscription length granted per purchase or renewal.
	DurationDays int `json:"duration_days" yaml:"duration_days"`

	// TrafficGB is the traffic allowance in gigabytes, Unlimited for no cap.
	TrafficGB int64 `json:"traffic_gb" yaml:"traffic_gb"`

	// DeviceLimit caps concurrent devices on the provisioned credential,
	// Unlimited for no cap.
	DeviceLimit int64 `json:"device_limit" yaml:"device_limit"`

	Price     Money `json:"price" yaml:"price"`
	TrialDays int   `json:"trial_days,omitempty" yaml:"trial_days,omitempty"`
	Public    bool  `json:"public" yaml:"public"`
}

// Duration returns the plan duration as a time.Duration.
func (p Plan) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}

// TrialDuration returns the trial length, zero when the plan has no trial.
func (p Plan) TrialDuration() time.Duration {
	if p.TrialDays <= 0 {
		return 0
	}
	return time.Duration(p.TrialDays) * 24 * time.Hour
}

// TrafficBytes returns the traffic allowance in bytes, Unlimited when uncapped.
// The remote panel expresses limits in bytes while the catalog uses gigabytes.
func (p Plan) TrafficBytes() int64 {
	if p.TrafficGB == Unlimited {
		return Unlimited
	}
	return p.TrafficGB * 1024 * 1024 * 1024
}

// HasTrial reports whether the plan grants a free trial period.
func (p Plan) HasTrial() bool {
	return p.TrialDays > 0
}
