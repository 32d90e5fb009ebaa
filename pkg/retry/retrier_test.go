package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	errTransient = errors.New("transient")
	errPermanent = errors.New("permanent")
)

func testPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Multiplier: 2.0,
		RetryableFunc: func(err error) bool {
			return errors.Is(err, errTransient)
		},
	}
}

func TestRetrierSucceedsFirstAttempt(t *testing.T) {
	r := NewRetrier(testPolicy(3), zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrierRetriesTransientErrors(t *testing.T) {
	r := NewRetrier(testPolicy(3), zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrierDoesNotRetryPermanentErrors(t *testing.T) {
	r := NewRetrier(testPolicy(3), zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return errPermanent
	})
	require.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, calls)
	assert.NotErrorIs(t, err, ErrMaxRetriesExceeded)
}

func TestRetrierExhaustsRetries(t *testing.T) {
	r := NewRetrier(testPolicy(3), zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return errTransient
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls, "initial attempt plus three retries")
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	// The underlying cause stays reachable for error classification
	assert.ErrorIs(t, err, errTransient)
}

func TestRetrierHonorsContextCancellation(t *testing.T) {
	policy := testPolicy(5)
	policy.BaseDelay = 100 * time.Millisecond
	policy.MaxDelay = time.Second
	r := NewRetrier(policy, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := r.Do(ctx, func() error {
		calls++
		return errTransient
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, calls, 2)
}

func TestBackoffGrowsExponentially(t *testing.T) {
	policy := Policy{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		Multiplier: 2.0,
	}
	b := NewBackoff(policy)

	assert.Equal(t, time.Second, b.Calculate(1))
	assert.Equal(t, 2*time.Second, b.Calculate(2))
	assert.Equal(t, 4*time.Second, b.Calculate(3))
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	policy := Policy{
		MaxRetries: 10,
		BaseDelay:  time.Second,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
	}
	b := NewBackoff(policy)

	assert.Equal(t, 5*time.Second, b.Calculate(10))
}

func TestBackoffJitterStaysWithinBounds(t *testing.T) {
	policy := Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		Multiplier: 2.0,
		Jitter:     true,
	}
	b := NewBackoff(policy)

	for i := 0; i < 50; i++ {
		d := b.Calculate(2)
		assert.GreaterOrEqual(t, d, time.Second, "jitter floor is half the raw delay")
		assert.LessOrEqual(t, d, 2*time.Second)
	}
}

func TestPolicyValidation(t *testing.T) {
	assert.Error(t, Policy{MaxRetries: -1, BaseDelay: time.Second, Multiplier: 2}.Validate())
	assert.Error(t, Policy{MaxRetries: 3, BaseDelay: 0, Multiplier: 2}.Validate())
	assert.Error(t, Policy{MaxRetries: 3, BaseDelay: time.Second, Multiplier: 0.5}.Validate())
	assert.NoError(t, Policy{MaxRetries: 3, BaseDelay: time.Second, Multiplier: 2}.Validate())
}
