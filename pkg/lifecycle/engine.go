package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vpnlab/subkit/pkg/panel"
	"github.com/vpnlab/subkit/pkg/plan"
)

const (
	defaultConflictBudget = 5
	defaultCredentialFlow = "xtls-rprx-vision"
)

// Engine applies billing and time events to subscriptions. Every mutation goes
// through the store's compare-and-swap; on a version conflict the engine
// reloads and re-evaluates the event against fresh state, so concurrent events
// for one subscription serialize without locks. Each applied event records its
// outcome under the event's idempotency key in the same atomic step, which
// makes redelivery return the stored outcome instead of repeating effects.
type Engine struct {
	store Store
	prov  *Provisioner
	plans *plan.Catalog

	cache          OutcomeCache
	now            func() time.Time
	log            *slog.Logger
	conflictBudget int
	flow           string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithOutcomeCache adds a read-through cache in front of the store's outcome
// lookup.
func WithOutcomeCache(c OutcomeCache) EngineOption {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithEngineLogger sets the logger.
func WithEngineLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithConflictBudget bounds compare-and-swap retries per applied event.
func WithConflictBudget(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.conflictBudget = n
		}
	}
}

// WithCredentialFlow sets the xray flow written into provisioned credentials.
func WithCredentialFlow(flow string) EngineOption {
	return func(e *Engine) {
		if flow != "" {
			e.flow = flow
		}
	}
}

// NewEngine creates the reconciliation engine and wires itself as the
// provisioner's result handler, so finished panel actions finalize
// subscription state through the same compare-and-swap path events use.
func NewEngine(store Store, prov *Provisioner, plans *plan.Catalog, opts ...EngineOption) *Engine {
	if store == nil {
		panic("lifecycle: Store is required")
	}
	if prov == nil {
		panic("lifecycle: Provisioner is required")
	}
	if plans == nil {
		panic("lifecycle: plan.Catalog is required")
	}

	e := &Engine{
		store:          store,
		prov:           prov,
		plans:          plans,
		now:            time.Now,
		log:            slog.Default(),
		conflictBudget: defaultConflictBudget,
		flow:           defaultCredentialFlow,
	}
	for _, opt := range opts {
		opt(e)
	}
	prov.setResultHandler(e.completeProvisioning)
	return e
}

// Apply processes one event and returns its outcome. Structural failures
// (malformed event, unknown plan) reject the event without recording anything;
// a redelivered idempotency key returns the stored outcome with Duplicate set.
func (e *Engine) Apply(ctx context.Context, ev Event) (Outcome, error) {
	if err := ev.Validate(); err != nil {
		return Outcome{}, err
	}

	if out, ok := e.lookupOutcome(ctx, ev.IdempotencyKey); ok {
		return out.asDuplicate(), nil
	}

	for i := 0; i < e.conflictBudget; i++ {
		out, err := e.applyOnce(ctx, ev)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return Outcome{}, err
		}
		e.cacheOutcome(ctx, ev.IdempotencyKey, out)
		return out, nil
	}
	return Outcome{}, ErrTooManyConflicts
}

// applyOnce evaluates the event against a fresh load of the subscription and
// attempts a single commit. ErrVersionConflict tells the caller to retry.
func (e *Engine) applyOnce(ctx context.Context, ev Event) (Outcome, error) {
	// A concurrent delivery of the same key may have committed after the
	// caller's initial lookup.
	if out, ok := e.lookupOutcome(ctx, ev.IdempotencyKey); ok {
		return out.asDuplicate(), nil
	}

	sub, err := e.resolve(ctx, ev)
	if err != nil {
		return Outcome{}, err
	}

	if sub == nil {
		if ev.Kind.creates() && ev.SubscriptionID == uuid.Nil {
			return e.create(ctx, ev)
		}
		return Outcome{}, errors.Join(ErrSubscriptionNotFound,
			fmt.Errorf("%s event addresses no known subscription", ev.Kind))
	}

	switch ev.Kind {
	case EventPaymentConfirmed, EventRenewed:
		return e.renew(ctx, ev, sub)
	case EventTrialGranted:
		// Trials are only granted to owners with no subscription on the plan.
		return e.recordNoOp(ctx, ev, sub)
	case EventExpiredTick:
		return e.expire(ctx, ev, sub)
	case EventCancelled:
		return e.cancel(ctx, ev, sub)
	default:
		return Outcome{}, errors.Join(ErrMalformedEvent,
			fmt.Errorf("unhandled event kind %q", ev.Kind))
	}
}

// resolve loads the event's target subscription, or nil when none exists yet.
func (e *Engine) resolve(ctx context.Context, ev Event) (*Subscription, error) {
	var (
		sub *Subscription
		err error
	)
	if ev.SubscriptionID != uuid.Nil {
		sub, err = e.store.Load(ctx, ev.SubscriptionID)
	} else {
		sub, err = e.store.LoadByOwnerPlan(ctx, ev.OwnerID, ev.PlanID)
	}
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// create starts a brand-new subscription in Provisioning and queues the panel
// activation. The entitlement period is anchored here, when the event commits;
// persisting endAt up front keeps the paid period durable even if the process
// dies before the activation finishes.
func (e *Engine) create(ctx context.Context, ev Event) (Outcome, error) {
	p, err := e.plans.Get(ev.PlanID)
	if err != nil {
		return Outcome{}, errors.Join(ErrUnknownPlan, err)
	}

	duration := p.Duration()
	if ev.Kind == EventTrialGranted {
		if !p.HasTrial() {
			return Outcome{}, errors.Join(ErrTrialNotAvailable,
				fmt.Errorf("plan %q", p.ID))
		}
		duration = p.TrialDuration()
	}

	now := e.now()
	end := now.Add(duration)
	sub := &Subscription{
		ID:      uuid.New(),
		OwnerID: ev.OwnerID,
		PlanID:  ev.PlanID,
		Status:  StatusProvisioning,
		EndAt:   &end,
		Version: 1,
		Provisioning: ProvisioningRecord{
			Desired:   DesiredActive,
			UpdatedAt: now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	out := Outcome{
		SubscriptionID: sub.ID,
		Status:         sub.Status,
		Version:        sub.Version,
		AppliedAt:      now,
	}
	if err := e.store.Create(ctx, sub, ev.IdempotencyKey, out); err != nil {
		if errors.Is(err, ErrSubscriptionExists) {
			// Lost a race with a concurrent create for the same owner and
			// plan; the retry loop resolves the winner's record.
			return Outcome{}, ErrVersionConflict
		}
		return Outcome{}, err
	}

	e.enqueueActivate(sub, p, end)
	return out, nil
}

// renew applies a payment to an existing subscription. An active or still
// provisioning subscription extends additively on top of its remaining period;
// a suspended or expired one re-enters Provisioning with a fresh period
// starting now.
func (e *Engine) renew(ctx context.Context, ev Event, sub *Subscription) (Outcome, error) {
	p, err := e.plans.Get(sub.PlanID)
	if err != nil {
		return Outcome{}, errors.Join(ErrUnknownPlan, err)
	}
	now := e.now()

	switch {
	case sub.Status == StatusActive && CanTransition(sub.Status, StatusActive):
		base := now
		if sub.EndAt != nil && sub.EndAt.After(now) {
			base = *sub.EndAt
		}
		end := base.Add(p.Duration())
		sub.EndAt = &end
		sub.UpdatedAt = now

		out, err := e.commit(ctx, sub, ev.IdempotencyKey, now)
		if err != nil {
			return Outcome{}, err
		}
		// Push the new expiry to the panel. The subscription stays Active
		// regardless of how the push goes; the store is authoritative.
		if sub.Panel != nil {
			e.enqueueActivate(sub, p, end)
		}
		return out, nil

	case sub.Status == StatusProvisioning:
		// A distinct key is a distinct purchase even before the first
		// activation lands; stack it on the pending period and re-push the
		// activation so the panel converges on the extended expiry.
		base := now
		if sub.EndAt != nil && sub.EndAt.After(now) {
			base = *sub.EndAt
		}
		end := base.Add(p.Duration())
		sub.EndAt = &end
		sub.UpdatedAt = now

		out, err := e.commit(ctx, sub, ev.IdempotencyKey, now)
		if err != nil {
			return Outcome{}, err
		}
		e.enqueueActivate(sub, p, end)
		return out, nil

	case CanTransition(sub.Status, StatusProvisioning):
		end := now.Add(p.Duration())
		sub.Status = StatusProvisioning
		sub.EndAt = &end
		sub.Provisioning = ProvisioningRecord{Desired: DesiredActive, UpdatedAt: now}
		sub.UpdatedAt = now

		out, err := e.commit(ctx, sub, ev.IdempotencyKey, now)
		if err != nil {
			return Outcome{}, err
		}
		e.enqueueActivate(sub, p, end)
		return out, nil

	default:
		return e.recordNoOp(ctx, ev, sub)
	}
}

// expire moves an active subscription past its paid period to Expired and
// queues a panel suspension. Ticks made stale by a renewal land as no-ops.
func (e *Engine) expire(ctx context.Context, ev Event, sub *Subscription) (Outcome, error) {
	if !CanTransition(sub.Status, StatusExpired) {
		return e.recordNoOp(ctx, ev, sub)
	}
	if sub.EndAt == nil || sub.EndAt.After(ev.OccurredAt) {
		return e.recordNoOp(ctx, ev, sub)
	}

	now := e.now()
	sub.Status = StatusExpired
	sub.Provisioning = ProvisioningRecord{Desired: DesiredSuspended, UpdatedAt: now}
	sub.UpdatedAt = now

	out, err := e.commit(ctx, sub, ev.IdempotencyKey, now)
	if err != nil {
		return Outcome{}, err
	}
	if sub.Panel != nil {
		e.prov.Enqueue(ProvisionJob{
			SubscriptionID: sub.ID,
			Desired:        DesiredSuspended,
			Ref:            *sub.Panel,
		})
	}
	return out, nil
}

// cancel terminates the subscription and queues credential removal. A cancel
// racing an in-flight activation commits immediately; the activation's
// finalizer sees the Cancelled status and queues the removal itself.
func (e *Engine) cancel(ctx context.Context, ev Event, sub *Subscription) (Outcome, error) {
	if !CanTransition(sub.Status, StatusCancelled) {
		return e.recordNoOp(ctx, ev, sub)
	}

	now := e.now()
	sub.Status = StatusCancelled
	sub.Provisioning = ProvisioningRecord{Desired: DesiredRemoved, UpdatedAt: now}
	sub.UpdatedAt = now

	out, err := e.commit(ctx, sub, ev.IdempotencyKey, now)
	if err != nil {
		return Outcome{}, err
	}
	if sub.Panel != nil {
		e.prov.Enqueue(ProvisionJob{
			SubscriptionID: sub.ID,
			Desired:        DesiredRemoved,
			Ref:            *sub.Panel,
		})
	}
	return out, nil
}

// commit persists the mutated subscription and its outcome atomically.
func (e *Engine) commit(ctx context.Context, sub *Subscription, key string, now time.Time) (Outcome, error) {
	out := Outcome{
		SubscriptionID: sub.ID,
		Status:         sub.Status,
		Version:        sub.Version + 1,
		AppliedAt:      now,
	}
	if err := e.store.CompareAndSwap(ctx, sub, sub.Version, key, out); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// recordNoOp records the event as applied without touching the subscription,
// so redeliveries of the same occurrence still collapse to one outcome.
func (e *Engine) recordNoOp(ctx context.Context, ev Event, sub *Subscription) (Outcome, error) {
	out := Outcome{
		SubscriptionID: sub.ID,
		Status:         sub.Status,
		Version:        sub.Version,
		NoOp:           true,
		AppliedAt:      e.now(),
	}
	if err := e.store.SaveOutcome(ctx, ev.IdempotencyKey, out); err != nil {
		return Outcome{}, err
	}
	e.log.Debug("event applied as no-op",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("status", string(sub.Status)))
	return out, nil
}

func (e *Engine) lookupOutcome(ctx context.Context, key string) (Outcome, bool) {
	if e.cache != nil {
		if out, ok := e.cache.Get(ctx, key); ok {
			return *out, true
		}
	}
	out, err := e.store.LoadOutcome(ctx, key)
	if errors.Is(err, ErrOutcomeNotFound) {
		return Outcome{}, false
	}
	if err != nil {
		e.log.Warn("outcome lookup failed, treating as miss", slog.String("error", err.Error()))
		return Outcome{}, false
	}
	e.cacheOutcome(ctx, key, *out)
	return *out, true
}

func (e *Engine) cacheOutcome(ctx context.Context, key string, out Outcome) {
	if e.cache != nil {
		e.cache.Set(ctx, key, out)
	}
}

// enqueueActivate queues a panel converge toward an enabled credential shaped
// by the plan. The email doubles as the panel-side lookup key, so it must be
// unique per owner and plan.
func (e *Engine) enqueueActivate(sub *Subscription, p plan.Plan, expiresAt time.Time) {
	var ref panel.CredentialRef
	if sub.Panel != nil {
		ref = *sub.Panel
	}
	e.prov.Enqueue(ProvisionJob{
		SubscriptionID: sub.ID,
		Desired:        DesiredActive,
		Spec: panel.CredentialSpec{
			CredentialID: sub.CredentialID(),
			Email:        sub.OwnerID + "-" + sub.PlanID,
			Enabled:      true,
			TrafficBytes: p.TrafficBytes(),
			DeviceLimit:  p.DeviceLimit,
			ExpiresAt:    expiresAt,
			Flow:         e.flow,
			SubID:        sub.CredentialID().String(),
		},
		Ref: ref,
	})
}

// completeProvisioning folds a finished panel action back into the
// subscription. It runs on the provisioner's worker goroutine with a fresh
// context, and retries version conflicts like any other mutation.
func (e *Engine) completeProvisioning(ctx context.Context, res ProvisionResult) {
	for i := 0; i < e.conflictBudget; i++ {
		sub, err := e.store.Load(ctx, res.SubscriptionID)
		if err != nil {
			e.log.Error("load for provisioning finalization failed",
				slog.String("subscription_id", res.SubscriptionID.String()),
				slog.String("error", err.Error()))
			return
		}

		followUp, changed := e.finalize(sub, res)
		if !changed {
			return
		}

		err = e.store.CompareAndSwap(ctx, sub, sub.Version, "", Outcome{})
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			e.log.Error("provisioning finalization commit failed",
				slog.String("subscription_id", res.SubscriptionID.String()),
				slog.String("error", err.Error()))
			return
		}

		if followUp != nil {
			e.prov.Enqueue(*followUp)
		}
		return
	}
	e.log.Error("provisioning finalization gave up on version conflicts",
		slog.String("subscription_id", res.SubscriptionID.String()))
}

// finalize mutates the loaded subscription to reflect the provisioning result
// and reports whether anything changed. A follow-up job is returned when the
// result reveals work the current status still needs, such as removing a
// credential that was created after the subscription was cancelled.
func (e *Engine) finalize(sub *Subscription, res ProvisionResult) (*ProvisionJob, bool) {
	if errors.Is(res.Err, ErrSuperseded) || errors.Is(res.Err, ErrProvisionerClosed) {
		return nil, false
	}

	now := e.now()

	if res.Err != nil {
		sub.Provisioning.Attempt = res.Attempts
		sub.Provisioning.LastError = res.Err.Error()
		sub.Provisioning.UpdatedAt = now
		if panel.IsPermanent(res.Err) && res.Desired == DesiredActive &&
			sub.Status == StatusProvisioning && sub.Panel == nil {
			// The panel rejected the very first activation outright; there is
			// no credential to keep reconciling toward.
			sub.Status = StatusCancelled
		}
		sub.UpdatedAt = now
		return nil, true
	}

	switch res.Desired {
	case DesiredActive:
		switch sub.Status {
		case StatusProvisioning:
			ref := res.Ref
			sub.Status = StatusActive
			sub.Panel = &ref
			if sub.StartAt == nil {
				t := now
				sub.StartAt = &t
			}
			if sub.EndAt == nil {
				t := res.ExpiresAt
				sub.EndAt = &t
			}
			sub.Provisioning = ProvisioningRecord{Desired: DesiredActive, UpdatedAt: now}
		case StatusActive:
			// A renewal push converged; clear stale attempt bookkeeping. The
			// stored endAt stays authoritative in case a newer renewal landed
			// while this push was in flight.
			sub.Provisioning = ProvisioningRecord{Desired: DesiredActive, UpdatedAt: now}
		case StatusCancelled:
			ref := res.Ref
			sub.Panel = &ref
			sub.Provisioning = ProvisioningRecord{Desired: DesiredRemoved, UpdatedAt: now}
			sub.UpdatedAt = now
			return &ProvisionJob{
				SubscriptionID: sub.ID,
				Desired:        DesiredRemoved,
				Ref:            ref,
			}, true
		default:
			// Expired or Suspended landed while the activation was in flight;
			// the action queued by that transition converges the panel.
			return nil, false
		}
	case DesiredSuspended:
		sub.Provisioning = ProvisioningRecord{Desired: DesiredSuspended, UpdatedAt: now}
		if sub.Status == StatusCancelled && sub.Panel != nil {
			sub.Provisioning.Desired = DesiredRemoved
			sub.UpdatedAt = now
			return &ProvisionJob{
				SubscriptionID: sub.ID,
				Desired:        DesiredRemoved,
				Ref:            *sub.Panel,
			}, true
		}
	case DesiredRemoved:
		sub.Panel = nil
		sub.Provisioning = ProvisioningRecord{Desired: DesiredRemoved, UpdatedAt: now}
	}

	sub.UpdatedAt = now
	return nil, true
}
