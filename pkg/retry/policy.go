// Package retry provides retry policies for failed work units.
//
// The scheduler retries nothing by default; a policy is an explicit opt-in.
// A failed unit is re-enqueued after NextDelay until ShouldRetry returns
// false, at which point it reaches its terminal Failed state.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Condition decides whether an error is worth retrying.
type Condition func(error) bool

// DefaultCondition retries every error except context cancellation.
func DefaultCondition(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Policy defines the retry strategy interface
type Policy interface {
	// ShouldRetry determines whether to retry after the given attempt
	ShouldRetry(err error, attempt int) bool

	// NextDelay returns the delay before the next attempt
	NextDelay(attempt int) time.Duration

	// MaxAttempts returns the maximum number of executions per unit
	MaxAttempts() int
}

// None returns the no-retry policy.
func None() Policy {
	return nonePolicy{}
}

type nonePolicy struct{}

func (nonePolicy) ShouldRetry(error, int) bool { return false }
func (nonePolicy) NextDelay(int) time.Duration { return 0 }
func (nonePolicy) MaxAttempts() int            { return 1 }

// FixedDelay retries up to maxAttempts with a constant delay.
type FixedDelay struct {
	maxAttempts int
	delay       time.Duration
	condition   Condition
	jitter      JitterFunc
}

// NewFixedDelay creates a fixed delay retry policy
func NewFixedDelay(maxAttempts int, delay time.Duration, opts ...PolicyOption) *FixedDelay {
	p := &FixedDelay{
		maxAttempts: maxAttempts,
		delay:       delay,
		condition:   DefaultCondition,
	}
	for _, opt := range opts {
		opt(&p.condition, &p.jitter)
	}
	return p
}

// ShouldRetry determines whether to retry
func (p *FixedDelay) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.maxAttempts {
		return false
	}
	return p.condition(err)
}

// NextDelay returns the delay before the next attempt
func (p *FixedDelay) NextDelay(attempt int) time.Duration {
	if p.jitter != nil {
		return p.jitter(p.delay)
	}
	return p.delay
}

// MaxAttempts returns the maximum number of executions per unit
func (p *FixedDelay) MaxAttempts() int {
	return p.maxAttempts
}

// ExponentialBackoff retries with exponentially growing delays.
type ExponentialBackoff struct {
	maxAttempts  int
	initialDelay time.Duration
	multiplier   float64
	maxDelay     time.Duration
	condition    Condition
	jitter       JitterFunc
}

// NewExponentialBackoff creates an exponential backoff retry policy
func NewExponentialBackoff(maxAttempts int, initialDelay time.Duration, opts ...PolicyOption) *ExponentialBackoff {
	p := &ExponentialBackoff{
		maxAttempts:  maxAttempts,
		initialDelay: initialDelay,
		multiplier:   2.0,
		maxDelay:     30 * time.Second,
		condition:    DefaultCondition,
	}
	for _, opt := range opts {
		opt(&p.condition, &p.jitter)
	}
	return p
}

// ShouldRetry determines whether to retry
func (p *ExponentialBackoff) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.maxAttempts {
		return false
	}
	return p.condition(err)
}

// NextDelay returns the delay before the next attempt
func (p *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	delay := time.Duration(float64(p.initialDelay) * math.Pow(p.multiplier, float64(attempt-1)))
	if delay > p.maxDelay {
		delay = p.maxDelay
	}
	if p.jitter != nil {
		delay = p.jitter(delay)
	}
	return delay
}

// MaxAttempts returns the maximum number of executions per unit
func (p *ExponentialBackoff) MaxAttempts() int {
	return p.maxAttempts
}

// PolicyOption configures a retry policy
type PolicyOption func(*Condition, *JitterFunc)

// WithCondition sets the retry condition
func WithCondition(cond Condition) PolicyOption {
	return func(c *Condition, _ *JitterFunc) {
		*c = cond
	}
}

// WithJitter sets the jitter function
func WithJitter(jitter JitterFunc) PolicyOption {
	return func(_ *Condition, j *JitterFunc) {
		*j = jitter
	}
}

// JitterFunc perturbs a delay to avoid synchronized retries
type JitterFunc func(time.Duration) time.Duration

// FullJitter picks a random delay in [0, delay)
func FullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(delay)))
}

// EqualJitter picks delay/2 + random(0, delay/2)
func EqualJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	half := delay / 2
	if half <= 0 {
		return delay
	}
	return half + time.Duration(rand.Int63n(int64(half)))
}
