package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteWithRetry_RecoversAfterFailures(t *testing.T) {
	erm := NewErrorRecoveryManager(quietLogger())
	var delays []time.Duration
	erm.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	erm.RegisterRetryPolicy("op", &RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      25 * time.Millisecond,
		BackoffFactor: 2,
	})

	calls := 0
	err := erm.ExecuteWithRetry(context.Background(), "op", func() error {
		calls++
		if calls < 4 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}, delays)
}

func TestExecuteWithRetry_GivesUp(t *testing.T) {
	erm := NewErrorRecoveryManager(quietLogger())
	erm.sleep = func(context.Context, time.Duration) error { return nil }

	calls := 0
	boom := errors.New("boom")
	err := erm.ExecuteWithRetry(context.Background(), "store_read", func() error {
		calls++
		return boom
	})
	assert.Equal(t, boom, err)
	assert.Equal(t, erm.Policy("store_read").MaxRetries+1, calls)
}

func TestExecuteWithRetry_NotRetryable(t *testing.T) {
	erm := NewErrorRecoveryManager(quietLogger())
	erm.sleep = func(context.Context, time.Duration) error { return nil }
	permanent := errors.New("permanent")
	erm.RegisterRetryPolicy("op", &RetryPolicy{
		MaxRetries: 5,
		Retryable:  func(err error) bool { return !errors.Is(err, permanent) },
	})

	calls := 0
	err := erm.ExecuteWithRetry(context.Background(), "op", func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestExecuteWithRetry_CancelledContext(t *testing.T) {
	erm := NewErrorRecoveryManager(quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := erm.ExecuteWithRetry(ctx, "store_write", func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestCalculateDelay_Jitter(t *testing.T) {
	policy := &RetryPolicy{JitterEnabled: true}
	for i := 0; i < 50; i++ {
		d := calculateDelay(time.Second, policy)
		assert.GreaterOrEqual(t, d, 875*time.Millisecond)
		assert.LessOrEqual(t, d, 1125*time.Millisecond)
	}
	assert.Equal(t, time.Second, calculateDelay(time.Second, &RetryPolicy{}))
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
