package async_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpnlab/subkit/pkg/async"
)

func TestFuture_ResolveAndAwait(t *testing.T) {
	t.Parallel()

	f, resolve := async.NewFuture[int]()
	assert.False(t, f.IsComplete())

	go resolve(42, nil)

	result, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.True(t, f.IsComplete())
}

func TestFuture_ResolveOnce(t *testing.T) {
	t.Parallel()

	f, resolve := async.NewFuture[string]()
	resolve("first", nil)
	resolve("second", errors.New("ignored"))

	result, err := f.Await()
	require.NoError(t, err)
	assert.Equal(t, "first", result)
}

func TestFuture_AwaitWithTimeout(t *testing.T) {
	t.Parallel()

	f, resolve := async.NewFuture[int]()

	_, err := f.AwaitWithTimeout(10 * time.Millisecond)
	assert.ErrorIs(t, err, async.ErrTimeout)

	// The future stays usable after a timed-out await.
	resolve(7, nil)
	result, err := f.AwaitWithTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 7, result)
}

func TestFuture_ConcurrentConsumers(t *testing.T) {
	t.Parallel()

	f, resolve := async.NewFuture[int]()

	var wg sync.WaitGroup
	results := make([]int, 10)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = f.Await()
		}()
	}

	resolve(99, nil)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, 99, r)
	}
}

func TestResolved(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("boom")
	f := async.Resolved(0, wantErr)
	assert.True(t, f.IsComplete())

	_, err := f.Await()
	assert.ErrorIs(t, err, wantErr)
}

func TestFuture_Done(t *testing.T) {
	t.Parallel()

	f, resolve := async.NewFuture[struct{}]()
	select {
	case <-f.Done():
		t.Fatal("future should not be complete yet")
	default:
	}

	resolve(struct{}{}, nil)

	select {
	case <-f.Done():
	case <-time.After(time.Second):
		t.Fatal("future should be complete")
	}
}
