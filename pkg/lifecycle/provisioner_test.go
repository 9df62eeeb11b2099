package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vpnlab/subkit/pkg/async"
	"github.com/vpnlab/subkit/pkg/lifecycle"
	"github.com/vpnlab/subkit/pkg/panel"
)

func newProvisioner(t *testing.T, client *fakePanelClient, opts ...lifecycle.ProvisionerOption) *lifecycle.Provisioner {
	t.Helper()
	base := []lifecycle.ProvisionerOption{
		lifecycle.WithBackoff(lifecycle.FixedBackoff{}),
		lifecycle.WithCallTimeout(time.Second),
	}
	prov := lifecycle.NewProvisioner(client, panel.StaticSelector("fra-1"), append(base, opts...)...)
	return prov
}

func activateJob(subID uuid.UUID) lifecycle.ProvisionJob {
	return lifecycle.ProvisionJob{
		SubscriptionID: subID,
		Desired:        lifecycle.DesiredActive,
		Spec: panel.CredentialSpec{
			CredentialID: subID,
			Email:        "tg:1-monthly",
			Enabled:      true,
			ExpiresAt:    time.Now().Add(24 * time.Hour),
		},
	}
}

func TestProvisioner_AssignsPanelOnFirstActivation(t *testing.T) {
	t.Parallel()

	client := &fakePanelClient{}
	prov := newProvisioner(t, client)
	defer prov.Close()

	subID := uuid.New()
	res, err := prov.Enqueue(activateJob(subID)).AwaitWithTimeout(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "fra-1", res.Ref.PanelID)
	require.Equal(t, subID, res.Ref.CredentialID)
	require.Equal(t, 1, res.Attempts)
}

func TestProvisioner_CoalescesPendingActions(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	client := &fakePanelClient{createGate: gate}
	prov := newProvisioner(t, client)
	defer prov.Close()

	subID := uuid.New()
	ref := panel.CredentialRef{PanelID: "fra-1", CredentialID: subID}

	first := prov.Enqueue(activateJob(subID))
	require.Eventually(t, func() bool { return client.started() == 1 },
		2*time.Second, 5*time.Millisecond)

	// While the activation runs, a suspend queues behind it and a remove
	// replaces the suspend before it ever starts.
	suspend := prov.Enqueue(lifecycle.ProvisionJob{
		SubscriptionID: subID,
		Desired:        lifecycle.DesiredSuspended,
		Ref:            ref,
	})
	remove := prov.Enqueue(lifecycle.ProvisionJob{
		SubscriptionID: subID,
		Desired:        lifecycle.DesiredRemoved,
		Ref:            ref,
	})

	susRes, err := suspend.AwaitWithTimeout(2 * time.Second)
	require.ErrorIs(t, err, lifecycle.ErrSuperseded)
	require.True(t, susRes.Superseded)

	close(gate)

	_, err = first.AwaitWithTimeout(2 * time.Second)
	require.NoError(t, err)
	remRes, err := remove.AwaitWithTimeout(2 * time.Second)
	require.NoError(t, err)
	require.False(t, remRes.Superseded)

	creates, suspends, removes := client.counts()
	require.Equal(t, 1, creates)
	require.Zero(t, suspends, "superseded action must never reach the panel")
	require.Equal(t, 1, removes)
}

func TestProvisioner_BoundsParallelismAcrossSubscriptions(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	client := &fakePanelClient{createGate: gate}
	prov := newProvisioner(t, client, lifecycle.WithParallelism(2))
	defer prov.Close()

	var results []*async.Future[lifecycle.ProvisionResult]
	for n := 0; n < 4; n++ {
		results = append(results, prov.Enqueue(activateJob(uuid.New())))
	}

	require.Eventually(t, func() bool { return client.started() == 2 },
		2*time.Second, 5*time.Millisecond)

	// No third call may start while two are in flight.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 2, client.started())

	close(gate)
	for _, f := range results {
		_, err := f.AwaitWithTimeout(2 * time.Second)
		require.NoError(t, err)
	}
	require.Equal(t, 4, client.started())
}

func TestProvisioner_RetryYieldsToNewerAction(t *testing.T) {
	t.Parallel()

	client := &fakePanelClient{}
	for n := 0; n < 10; n++ {
		client.createErrs = append(client.createErrs, panel.Retryable(context.DeadlineExceeded))
	}
	prov := newProvisioner(t, client,
		lifecycle.WithBackoff(lifecycle.FixedBackoff{Interval: 50 * time.Millisecond}))
	defer prov.Close()

	subID := uuid.New()
	create := prov.Enqueue(activateJob(subID))

	require.Eventually(t, func() bool { return client.started() >= 1 },
		2*time.Second, 5*time.Millisecond)

	remove := prov.Enqueue(lifecycle.ProvisionJob{
		SubscriptionID: subID,
		Desired:        lifecycle.DesiredRemoved,
		Ref:            panel.CredentialRef{PanelID: "fra-1", CredentialID: subID},
	})

	res, err := create.AwaitWithTimeout(5 * time.Second)
	require.ErrorIs(t, err, lifecycle.ErrSuperseded)
	require.True(t, res.Superseded, "retrying a doomed action wastes the budget")

	_, err = remove.AwaitWithTimeout(5 * time.Second)
	require.NoError(t, err)
	_, _, removes := client.counts()
	require.Equal(t, 1, removes)
}

func TestProvisioner_ExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	client := &fakePanelClient{}
	for n := 0; n < 5; n++ {
		client.createErrs = append(client.createErrs, panel.Retryable(context.DeadlineExceeded))
	}
	prov := newProvisioner(t, client, lifecycle.WithMaxAttempts(3))
	defer prov.Close()

	res, err := prov.Enqueue(activateJob(uuid.New())).AwaitWithTimeout(2 * time.Second)
	require.ErrorIs(t, err, lifecycle.ErrAttemptsExhausted)
	require.Equal(t, 3, res.Attempts)

	creates, _, _ := client.counts()
	require.Equal(t, 3, creates)
}

func TestProvisioner_PermanentErrorStopsRetries(t *testing.T) {
	t.Parallel()

	client := &fakePanelClient{createErrs: []error{panel.Permanent(panel.ErrInvalidResponse)}}
	prov := newProvisioner(t, client)
	defer prov.Close()

	res, err := prov.Enqueue(activateJob(uuid.New())).AwaitWithTimeout(2 * time.Second)
	require.Error(t, err)
	require.True(t, panel.IsPermanent(err))
	require.Equal(t, 1, res.Attempts)

	creates, _, _ := client.counts()
	require.Equal(t, 1, creates)
}

func TestProvisioner_CloseRejectsNewActions(t *testing.T) {
	t.Parallel()

	client := &fakePanelClient{}
	prov := newProvisioner(t, client)
	prov.Close()

	_, err := prov.Enqueue(activateJob(uuid.New())).AwaitWithTimeout(time.Second)
	require.ErrorIs(t, err, lifecycle.ErrProvisionerClosed)
}
