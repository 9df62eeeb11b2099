package lifecycle

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the externally visible result of applying one event. It is
// persisted under the event's idempotency key; redeliveries return the stored
// outcome instead of re-executing side effects.
type Outcome struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	Status         Status    `json:"status"`
	Version        int64     `json:"version"`

	// Duplicate marks a replayed idempotency key: the stored outcome was
	// returned and nothing was re-executed.
	Duplicate bool `json:"duplicate,omitempty"`

	// NoOp marks an event that was accepted but had no applicable transition
	// from the subscription's state at apply time, e.g. a stale expiry tick
	// after a renewal.
	NoOp bool `json:"no_op,omitempty"`

	AppliedAt time.Time `json:"applied_at"`
}

// asDuplicate returns a copy flagged as a replay.
func (o Outcome) asDuplicate() Outcome {
	o.Duplicate = true
	return o
}
