package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireWithinBurstDoesNotWait(t *testing.T) {
	l := New(Config{Capacity: 5, RefillRate: 1})

	for i := 0; i < 5; i++ {
		waited, err := l.Acquire(context.Background(), "chat-1", 1)
		require.NoError(t, err)
		assert.Zero(t, waited)
	}
}

func TestTokensNeverExceedCapacityOrGoNegative(t *testing.T) {
	l := New(Config{Capacity: 3, RefillRate: 1000})

	// Burn the burst, then refill fast and check the cap.
	for i := 0; i < 3; i++ {
		_, err := l.Acquire(context.Background(), "c", 1)
		require.NoError(t, err)
	}

	base := time.Now()
	l.now = func() time.Time { return base.Add(time.Hour) }
	tokens := l.TokensAvailable("c")
	assert.LessOrEqual(t, tokens, 3.0)
	assert.GreaterOrEqual(t, tokens, 0.0)
}

func TestDepletedBucketComputesWait(t *testing.T) {
	l := New(Config{Capacity: 2, RefillRate: 10})

	for i := 0; i < 2; i++ {
		_, err := l.Acquire(context.Background(), "c", 1)
		require.NoError(t, err)
	}

	// One token at 10/s: 100ms.
	wait := l.Wait("c", 1)
	assert.InDelta(t, 100*time.Millisecond, wait, float64(20*time.Millisecond))
}

func TestAcquireSleepsThenConsumes(t *testing.T) {
	l := New(Config{Capacity: 1, RefillRate: 20})

	_, err := l.Acquire(context.Background(), "c", 1)
	require.NoError(t, err)

	start := time.Now()
	waited, err := l.Acquire(context.Background(), "c", 1)
	require.NoError(t, err)
	assert.Greater(t, waited, time.Duration(0))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestGroupChatsShareABucket(t *testing.T) {
	l := New(Config{Capacity: 2, RefillRate: 0.001})

	_, err := l.Acquire(context.Background(), "-100", 1)
	require.NoError(t, err)
	_, err = l.Acquire(context.Background(), "-200", 1)
	require.NoError(t, err)

	// -300 has never sent and its own bucket is full, yet the shared group
	// bucket those two sends drained forces a wait.
	assert.Equal(t, 2.0, l.TokensAvailable("-300"))
	assert.Greater(t, l.Wait("-300", 1), time.Duration(0))
}

func TestHourlyQuota(t *testing.T) {
	l := New(Config{Capacity: 100, RefillRate: 100, HourlyQuota: 2})
	base := time.Now()
	l.now = func() time.Time { return base }

	_, err := l.Acquire(context.Background(), "c", 1)
	require.NoError(t, err)
	_, err = l.Acquire(context.Background(), "c", 1)
	require.NoError(t, err)

	// Quota exhausted: wait runs to the end of the window.
	assert.Greater(t, l.Wait("c", 1), 50*time.Minute)

	// Window rolls over and the quota resets.
	l.now = func() time.Time { return base.Add(61 * time.Minute) }
	assert.Zero(t, l.Wait("c", 1))
}

func TestAcquireHonorsCancellation(t *testing.T) {
	l := New(Config{Capacity: 1, RefillRate: 0.001})
	_, err := l.Acquire(context.Background(), "c", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "c", 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
