package lifecycle_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vpnlab/subkit/pkg/lifecycle"
)

func TestExponentialBackoffGrowsAndCaps(t *testing.T) {
	t.Parallel()

	b := lifecycle.ExponentialBackoff{
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
	}

	require.Equal(t, time.Second, b.NextInterval(1))
	require.Equal(t, 2*time.Second, b.NextInterval(2))
	require.Equal(t, 4*time.Second, b.NextInterval(3))
	require.Equal(t, 10*time.Second, b.NextInterval(10), "interval is capped")
	require.Zero(t, b.NextInterval(0))
}

func TestExponentialBackoffJitterStaysBounded(t *testing.T) {
	t.Parallel()

	b := lifecycle.ExponentialBackoff{
		InitialInterval: time.Second,
		MaxInterval:     time.Minute,
		Multiplier:      2,
		JitterFactor:    0.2,
	}

	for n := 0; n < 100; n++ {
		got := b.NextInterval(2)
		require.GreaterOrEqual(t, got, 1600*time.Millisecond)
		require.LessOrEqual(t, got, 2400*time.Millisecond)
	}
}

func TestFixedBackoff(t *testing.T) {
	t.Parallel()

	b := lifecycle.FixedBackoff{Interval: 5 * time.Second}
	require.Equal(t, 5*time.Second, b.NextInterval(1))
	require.Equal(t, 5*time.Second, b.NextInterval(7))
	require.Zero(t, b.NextInterval(0))

	require.Zero(t, lifecycle.FixedBackoff{}.NextInterval(3))
}
