package github

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitState_NoDelayAboveThreshold(t *testing.T) {
	s := newRateLimitState(5)
	now := time.Now()
	s.update(6, now.Add(time.Hour))

	assert.Zero(t, s.delay(now))
}

func TestRateLimitState_NoDelayAfterReset(t *testing.T) {
	s := newRateLimitState(5)
	now := time.Now()
	s.update(0, now.Add(-time.Second))

	assert.Zero(t, s.delay(now))
}

func TestRateLimitState_DelayWithJitterBound(t *testing.T) {
	s := newRateLimitState(5)
	now := time.Now()
	wait := 10 * time.Minute
	s.update(5, now.Add(wait))

	// The delay covers the time to the reset boundary plus up to 10% jitter.
	for i := 0; i < 100; i++ {
		d := s.delay(now)
		assert.GreaterOrEqual(t, d, wait)
		assert.LessOrEqual(t, d, wait+wait/10)
	}
}

func TestRateLimitState_FreshStateIsOptimistic(t *testing.T) {
	s := newRateLimitState(5)

	remaining, _ := s.snapshot()
	assert.Equal(t, defaultQuotaMax, remaining)
	assert.Zero(t, s.delay(time.Now()))
}

func TestRateLimitState_UpdateAndSnapshot(t *testing.T) {
	s := newRateLimitState(5)
	resetAt := time.Now().Add(30 * time.Minute)
	s.update(42, resetAt)

	remaining, gotReset := s.snapshot()
	assert.Equal(t, 42, remaining)
	assert.True(t, gotReset.Equal(resetAt))
}

func TestRateLimitState_WaitReturnsImmediatelyOnZeroDelay(t *testing.T) {
	s := newRateLimitState(5)

	start := time.Now()
	require.NoError(t, s.wait(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestRateLimitState_WaitHonorsContextCancellation(t *testing.T) {
	s := newRateLimitState(5)
	s.update(0, time.Now().Add(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := s.wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
