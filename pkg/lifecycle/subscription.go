package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/vpnlab/subkit/pkg/panel"
)

// Status represents the current state of a subscription.
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusProvisioning   Status = "provisioning"
	StatusActive         Status = "active"
	StatusSuspended      Status = "suspended"
	StatusExpired        Status = "expired"
	StatusCancelled      Status = "cancelled"
)

// Valid reports whether the status is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusProvisioning, StatusActive,
		StatusSuspended, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the subscription can no longer serve traffic
// without a new billing event.
func (s Status) Terminal() bool {
	return s == StatusCancelled
}

// DesiredState is the provisioning target the remote panel should converge to.
type DesiredState string

const (
	DesiredActive    DesiredState = "active"
	DesiredSuspended DesiredState = "suspended"
	DesiredRemoved   DesiredState = "removed"
)

// ProvisioningRecord tracks the single outstanding provisioning intent for a
// subscription. Attempt and LastError surface exhausted retries to operators
// without introducing an extra top-level subscription state.
type ProvisioningRecord struct {
	Desired   DesiredState `json:"desired"`
	Attempt   int          `json:"attempt"`
	LastError string       `json:"last_error,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Subscription is the authoritative local record of a sold VPN subscription.
// All mutations go through the store's compare-and-swap keyed on Version.
type Subscription struct {
	ID      uuid.UUID `json:"id"`
	OwnerID string    `json:"owner_id"`
	PlanID  string    `json:"plan_id"`
	Status  Status    `json:"status"`

	// StartAt and EndAt are unset until the first successful provisioning.
	StartAt *time.Time `json:"start_at,omitempty"`
	EndAt   *time.Time `json:"end_at,omitempty"`

	// Panel references the provisioned credential. Once set it is only
	// cleared by an explicit removal, never by expiry or cancellation alone.
	Panel *panel.CredentialRef `json:"panel,omitempty"`

	// Version increases by one on every committed mutation and anchors the
	// optimistic-concurrency check.
	Version int64 `json:"version"`

	Provisioning ProvisioningRecord `json:"provisioning"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CredentialID returns the deterministic panel credential ID for this
// subscription. Reusing the subscription ID keeps repeated create attempts
// convergent on the panel even when an earlier response was lost.
func (s *Subscription) CredentialID() uuid.UUID {
	return s.ID
}

// IsActive reports whether the subscription currently entitles access.
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// ExpiredBy reports whether the subscription's paid period ended at or before
// the given time.
func (s *Subscription) ExpiredBy(now time.Time) bool {
	return s.EndAt != nil && !s.EndAt.After(now)
}

// Clone returns a deep copy so store snapshots cannot be mutated by callers.
func (s *Subscription) Clone() *Subscription {
	out := *s
	if s.StartAt != nil {
		t := *s.StartAt
		out.StartAt = &t
	}
	if s.EndAt != nil {
		t := *s.EndAt
		out.EndAt = &t
	}
	if s.Panel != nil {
		ref := *s.Panel
		out.Panel = &ref
	}
	return &out
}
