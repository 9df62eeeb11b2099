package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventKind is the closed set of billing and time events the engine accepts.
// Unknown kinds are rejected at ingress as structural errors.
type EventKind string

const (
	EventPaymentConfirmed EventKind = "payment_confirmed"
	EventTrialGranted     EventKind = "trial_granted"
	EventRenewed          EventKind = "renewed"
	EventExpiredTick      EventKind = "expired_tick"
	EventCancelled        EventKind = "cancelled"
)

// Valid reports whether the kind is known.
func (k EventKind) Valid() bool {
	switch k {
	case EventPaymentConfirmed, EventTrialGranted, EventRenewed,
		EventExpiredTick, EventCancelled:
		return true
	}
	return false
}

// creates reports whether the kind may create a subscription that does not
// exist yet.
func (k EventKind) creates() bool {
	return k == EventPaymentConfirmed || k == EventTrialGranted
}

// Event is a normalized billing or time occurrence delivered to the engine.
// Delivery is at-least-once and unordered; the IdempotencyKey identifies the
// real-world occurrence so duplicates collapse to a single applied effect.
type Event struct {
	Kind EventKind `json:"kind"`

	// SubscriptionID addresses an existing subscription. For creating kinds
	// it may be zero, in which case OwnerID and PlanID identify the target.
	SubscriptionID uuid.UUID `json:"subscription_id,omitzero"`
	OwnerID        string    `json:"owner_id,omitempty"`
	PlanID         string    `json:"plan_id,omitempty"`

	IdempotencyKey string `json:"idempotency_key"`

	// OccurredAt is assigned by the source and breaks ties between racing
	// events for one subscription.
	OccurredAt time.Time `json:"occurred_at"`
}

// Validate checks the event's structure. A failing event is rejected outright
// and never reaches the state machine.
func (e Event) Validate() error {
	if !e.Kind.Valid() {
		return errors.Join(ErrMalformedEvent, fmt.Errorf("unknown event kind %q", e.Kind))
	}
	if e.IdempotencyKey == "" {
		return errors.Join(ErrMalformedEvent, errors.New("idempotency key is required"))
	}
	if e.OccurredAt.IsZero() {
		return errors.Join(ErrMalformedEvent, errors.New("occurred_at is required"))
	}
	if e.SubscriptionID == uuid.Nil {
		if !e.Kind.creates() {
			return errors.Join(ErrMalformedEvent,
				fmt.Errorf("%s event requires a subscription ID", e.Kind))
		}
		if e.OwnerID == "" || e.PlanID == "" {
			return errors.Join(ErrMalformedEvent,
				errors.New("owner ID and plan ID are required to create a subscription"))
		}
	}
	return nil
}

// ExpiryKey derives the deterministic idempotency key for a synthetic expiry
// event, so repeated sweeps over the same (subscription, endAt) pair collapse
// into one occurrence.
func ExpiryKey(subscriptionID uuid.UUID, endAt time.Time) string {
	return fmt.Sprintf("expire:%s:%d", subscriptionID, endAt.Unix())
}
