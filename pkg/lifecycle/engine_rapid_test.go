package lifecycle_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/vpnlab/subkit/pkg/lifecycle"
	"github.com/vpnlab/subkit/pkg/panel"
	"github.com/vpnlab/subkit/pkg/plan"
)

// TestEngine_RandomEventStreamInvariants drives the engine with arbitrary
// interleavings of billing events, redeliveries, and clock jumps, then checks
// the invariants that must hold no matter the ordering.
func TestEngine_RandomEventStreamInvariants(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		catalog, err := plan.NewCatalog(ctx, plan.NewStaticSource(monthlyPlan()))
		require.NoError(rt, err)

		store := lifecycle.NewMemoryStore()
		client := &fakePanelClient{}
		prov := lifecycle.NewProvisioner(client, panel.StaticSelector("fra-1"),
			lifecycle.WithBackoff(lifecycle.FixedBackoff{}))
		clock := newFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
		engine := lifecycle.NewEngine(store, prov, catalog,
			lifecycle.WithClock(clock.Now))

		kinds := []lifecycle.EventKind{
			lifecycle.EventPaymentConfirmed,
			lifecycle.EventTrialGranted,
			lifecycle.EventRenewed,
			lifecycle.EventExpiredTick,
			lifecycle.EventCancelled,
		}

		type applied struct {
			out lifecycle.Outcome
		}
		outcomes := make(map[string]applied)
		var keys []string

		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(rt, "jump") {
				hours := rapid.IntRange(1, 24*40).Draw(rt, "hours")
				clock.Advance(time.Duration(hours) * time.Hour)
			}

			key := fmt.Sprintf("k-%d", i)
			if len(keys) > 0 && rapid.Bool().Draw(rt, "redeliver") {
				key = rapid.SampledFrom(keys).Draw(rt, "key")
			}

			ev := lifecycle.Event{
				Kind:           rapid.SampledFrom(kinds).Draw(rt, "kind"),
				IdempotencyKey: key,
				OccurredAt:     clock.Now(),
			}
			if ev.Kind == lifecycle.EventPaymentConfirmed || ev.Kind == lifecycle.EventTrialGranted {
				ev.OwnerID = "tg:1"
				ev.PlanID = "monthly"
			} else {
				sub, err := store.LoadByOwnerPlan(ctx, "tg:1", "monthly")
				if err != nil {
					continue
				}
				ev.SubscriptionID = sub.ID
			}

			out, err := engine.Apply(ctx, ev)
			require.NoError(rt, err)

			if prev, seen := outcomes[key]; seen {
				require.True(rt, out.Duplicate, "redelivered key must replay")
				require.Equal(rt, prev.out.SubscriptionID, out.SubscriptionID)
				require.Equal(rt, prev.out.Status, out.Status)
				require.Equal(rt, prev.out.Version, out.Version)
			} else {
				outcomes[key] = applied{out: out}
				keys = append(keys, key)
			}
		}

		prov.Close()

		sub, err := store.LoadByOwnerPlan(ctx, "tg:1", "monthly")
		if err == nil {
			require.True(rt, sub.Status.Valid())
			require.GreaterOrEqual(rt, sub.Version, int64(1))
			if sub.Status == lifecycle.StatusActive {
				require.NotNil(rt, sub.Panel, "active subscriptions must hold a credential")
				require.NotNil(rt, sub.StartAt)
				require.NotNil(rt, sub.EndAt)
			}
		}

		// Every applied key replays to the same outcome after quiescence.
		for key, prev := range outcomes {
			got, err := store.LoadOutcome(ctx, key)
			require.NoError(rt, err)
			require.Equal(rt, prev.out.SubscriptionID, got.SubscriptionID)
			require.Equal(rt, prev.out.Status, got.Status)
			require.Equal(rt, prev.out.Version, got.Version)
		}
	})
}
