// Package lifecycle reconciles sold VPN subscriptions against a remote panel.
//
// The package is built around three cooperating pieces:
//
//   - Engine applies normalized billing and time events (payment, trial,
//     renewal, expiry, cancel) to subscription records through optimistic
//     compare-and-swap, recording each event's outcome under its idempotency
//     key so at-least-once delivery collapses to exactly-once effects.
//   - Provisioner executes panel actions with a single-slot mailbox per
//     subscription, bounded parallelism, and retry with backoff. Queued
//     actions coalesce to the latest desired state; finished actions feed
//     back into the engine for state finalization.
//   - Sweeper scans for subscriptions past their paid period and injects
//     synthetic expiry events with deterministic idempotency keys.
//
// Usage:
//
//	prov := lifecycle.NewProvisioner(panelClient, pool)
//	defer prov.Close()
//
//	engine := lifecycle.NewEngine(store, prov, catalog)
//
//	out, err := engine.Apply(ctx, lifecycle.Event{
//		Kind:           lifecycle.EventPaymentConfirmed,
//		OwnerID:        "tg:42",
//		PlanID:         "monthly-100gb",
//		IdempotencyKey: "pay_9f3b",
//		OccurredAt:     time.Now(),
//	})
//
// Subscription state only changes inside the store's atomic operations, so any
// number of engine instances can share one store; conflicting writers retry on
// version conflicts rather than lock.
package lifecycle
