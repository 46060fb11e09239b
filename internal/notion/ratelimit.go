package notion

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TokenBucket paces outgoing calls to a sustained rate with a burst
// allowance. A single instance is shared by every caller issuing remote
// requests; the counter is guarded by one mutex and refilled from the
// monotonic clock on each acquire. Sleeping happens outside the lock so
// other callers can acquire while a waiter's deficit elapses.
type TokenBucket struct {
	mu         sync.Mutex
	rate       float64
	burst      int
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewTokenBucket returns a bucket refilling at rate tokens per second up to
// burst. The bucket starts full.
func NewTokenBucket(rate float64, burst int) (*TokenBucket, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("%w: rate must be > 0, got %v", ErrValidation, rate)
	}
	if burst < 1 {
		return nil, fmt.Errorf("%w: burst must be >= 1, got %d", ErrValidation, burst)
	}
	b := &TokenBucket{
		rate:   rate,
		burst:  burst,
		tokens: float64(burst),
		now:    time.Now,
		sleep:  waitWithContext,
	}
	b.lastRefill = b.now()
	return b, nil
}

// Acquire takes one token, blocking until one is available or ctx is done.
// It reports how long the caller waited.
func (b *TokenBucket) Acquire(ctx context.Context) (time.Duration, error) {
	b.mu.Lock()
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.rate
	if b.tokens > float64(b.burst) {
		b.tokens = float64(b.burst)
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		b.mu.Unlock()
		return 0, nil
	}

	// The balance goes negative: each waiter reserves its token up front,
	// so concurrent waiters queue behind each other instead of all waiting
	// one refill period.
	deficit := 1 - b.tokens
	wait := time.Duration(deficit / b.rate * float64(time.Second))
	b.tokens--
	b.mu.Unlock()

	if err := b.sleep(ctx, wait); err != nil {
		return wait, err
	}
	return wait, nil
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
