package retry

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrMaxRetriesExceeded wraps the final error after retries are exhausted
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Policy configures retry behavior
type Policy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	Jitter        bool
	RetryableFunc func(error) bool
}

// DefaultPolicy returns the worker-pool retry policy: up to 3 retries with
// jittered exponential backoff starting at 1s.
func DefaultPolicy(retryable func(error) bool) Policy {
	return Policy{
		MaxRetries:    3,
		BaseDelay:     1 * time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		Jitter:        true,
		RetryableFunc: retryable,
	}
}

// Validate checks the policy parameters
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", p.MaxRetries)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive, got %s", p.BaseDelay)
	}
	if p.Multiplier < 1.0 {
		return fmt.Errorf("multiplier must be >= 1.0, got %f", p.Multiplier)
	}
	return nil
}

// Backoff computes per-attempt delays for a policy
type Backoff struct {
	policy Policy
}

// NewBackoff creates a backoff calculator
func NewBackoff(policy Policy) *Backoff {
	return &Backoff{policy: policy}
}

// Calculate returns the delay before the given attempt (1-based)
func (b *Backoff) Calculate(attempt int) time.Duration {
	delay := float64(b.policy.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= b.policy.Multiplier
	}

	if max := float64(b.policy.MaxDelay); b.policy.MaxDelay > 0 && delay > max {
		delay = max
	}

	if b.policy.Jitter {
		// Equal jitter (half fixed, half random) keeps concurrent retries
		// from synchronizing
		delay = delay/2 + rand.Float64()*delay/2
	}

	return time.Duration(delay)
}
