package fetch_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/newsflow/internal/fetch"
)

func TestBackoffDelayDoubles(t *testing.T) {
	t.Parallel()

	p := fetch.BackoffPolicy{
		Base:        100 * time.Millisecond,
		Cap:         time.Minute,
		MaxAttempts: 4,
	}

	require.Equal(t, 100*time.Millisecond, p.Delay(0))
	require.Equal(t, 200*time.Millisecond, p.Delay(1))
	require.Equal(t, 400*time.Millisecond, p.Delay(2))
	require.Equal(t, 800*time.Millisecond, p.Delay(3))
}

func TestBackoffDelayCapped(t *testing.T) {
	t.Parallel()

	p := fetch.BackoffPolicy{
		Base:        time.Second,
		Cap:         5 * time.Second,
		MaxAttempts: 10,
	}

	require.Equal(t, 5*time.Second, p.Delay(10))
	// Even absurd attempt counts that overflow the doubling stay capped.
	require.Equal(t, 5*time.Second, p.Delay(80))
}

func TestBackoffJitterBounds(t *testing.T) {
	t.Parallel()

	p := fetch.BackoffPolicy{
		Base:        time.Second,
		Cap:         time.Minute,
		Jitter:      0.25,
		MaxAttempts: 4,
	}

	for range 200 {
		d := p.Delay(1) // nominal 2s
		require.GreaterOrEqual(t, d, 1500*time.Millisecond)
		require.LessOrEqual(t, d, 2500*time.Millisecond)
	}
}

func TestBackoffExhausted(t *testing.T) {
	t.Parallel()

	p := fetch.BackoffPolicy{Base: time.Second, Cap: time.Minute, MaxAttempts: 3}

	require.False(t, p.Exhausted(2))
	require.True(t, p.Exhausted(3))
	require.True(t, p.Exhausted(4))
}
