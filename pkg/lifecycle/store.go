package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the durable repository for subscriptions and applied-event
// outcomes. It is the single source of truth: the engine never mutates a
// record except through Create or CompareAndSwap, and both must persist the
// event outcome atomically with the subscription so a crash cannot separate
// an applied effect from its idempotency record.
type Store interface {
	// Load returns the subscription with the given ID or
	// ErrSubscriptionNotFound.
	Load(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// LoadByOwnerPlan returns the subscription for an (owner, plan) pair or
	// ErrSubscriptionNotFound. At most one subscription exists per pair.
	LoadByOwnerPlan(ctx context.Context, ownerID, planID string) (*Subscription, error)

	// Create persists a new subscription with Version 1 and records the
	// outcome under the idempotency key. Returns ErrSubscriptionExists when
	// the ID or the (owner, plan) pair is already taken.
	Create(ctx context.Context, sub *Subscription, idempotencyKey string, outcome Outcome) error

	// CompareAndSwap persists the mutated subscription if its stored version
	// still equals expectedVersion, bumping Version by one. Returns
	// ErrVersionConflict on mismatch. When idempotencyKey is non-empty the
	// outcome is recorded in the same atomic step; internal mutations such
	// as provisioning finalization pass an empty key.
	CompareAndSwap(ctx context.Context, sub *Subscription, expectedVersion int64, idempotencyKey string, outcome Outcome) error

	// LoadOutcome returns the outcome recorded for an idempotency key, or
	// ErrOutcomeNotFound when the occurrence has not been applied.
	LoadOutcome(ctx context.Context, idempotencyKey string) (*Outcome, error)

	// SaveOutcome records an outcome that mutated nothing, such as a stale
	// expiry tick applied as a no-op. Overwriting an existing key with the
	// same occurrence's outcome is harmless.
	SaveOutcome(ctx context.Context, idempotencyKey string, outcome Outcome) error

	// ListActiveBefore returns IDs of Active subscriptions whose endAt is at
	// or before the cutoff, for the expiry sweeper.
	ListActiveBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)

	// ListByOwner returns all subscriptions for an owner, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*Subscription, error)

	// ListByStatus returns up to limit subscriptions in the given status,
	// newest first. A non-positive limit means no limit.
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Subscription, error)
}

// OutcomeCache is an optional read-through cache in front of the store's
// outcome lookup, used to answer replays without a store round trip. Misses
// are harmless; the store remains authoritative.
type OutcomeCache interface {
	Get(ctx context.Context, idempotencyKey string) (*Outcome, bool)
	Set(ctx context.Context, idempotencyKey string, outcome Outcome)
}
