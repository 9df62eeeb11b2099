package lifecycle

import (
	"context"
	"errors"
	"log/slog"
)

// Recover re-enqueues provisioning work that was committed to the store but
// lost from the in-memory queue, typically across a process restart. It scans
// for subscriptions whose persisted desired state has not converged and pushes
// the recorded action again; every panel operation is convergent, so replaying
// an action that in fact finished is harmless.
//
// Call it once at startup, after the engine is wired. It returns the number of
// actions re-enqueued.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	requeued := 0
	var errs []error

	subs, err := e.store.ListByStatus(ctx, StatusProvisioning, 0)
	if err != nil {
		return requeued, err
	}
	for _, sub := range subs {
		p, err := e.plans.Get(sub.PlanID)
		if err != nil {
			errs = append(errs, errors.Join(ErrUnknownPlan, err))
			continue
		}
		expiry := e.now().Add(p.Duration())
		if sub.EndAt != nil {
			expiry = *sub.EndAt
		}
		e.enqueueActivate(sub, p, expiry)
		requeued++
	}

	subs, err = e.store.ListByStatus(ctx, StatusActive, 0)
	if err != nil {
		return requeued, errors.Join(append(errs, err)...)
	}
	for _, sub := range subs {
		// An active subscription with attempt bookkeeping still set means a
		// renewal push never converged.
		if sub.Provisioning.Attempt == 0 && sub.Provisioning.LastError == "" {
			continue
		}
		if sub.Panel == nil || sub.EndAt == nil {
			continue
		}
		p, err := e.plans.Get(sub.PlanID)
		if err != nil {
			errs = append(errs, errors.Join(ErrUnknownPlan, err))
			continue
		}
		e.enqueueActivate(sub, p, *sub.EndAt)
		requeued++
	}

	for _, target := range []struct {
		status  Status
		desired DesiredState
	}{
		{StatusExpired, DesiredSuspended},
		{StatusCancelled, DesiredRemoved},
	} {
		subs, err = e.store.ListByStatus(ctx, target.status, 0)
		if err != nil {
			return requeued, errors.Join(append(errs, err)...)
		}
		for _, sub := range subs {
			if sub.Panel == nil || sub.Provisioning.Desired != target.desired {
				continue
			}
			e.prov.Enqueue(ProvisionJob{
				SubscriptionID: sub.ID,
				Desired:        target.desired,
				Ref:            *sub.Panel,
			})
			requeued++
		}
	}

	if requeued > 0 {
		e.log.Info("recovered unconverged provisioning actions",
			slog.Int("requeued", requeued))
	}
	return requeued, errors.Join(errs...)
}
