package notion

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestTokenBucketValidatesInputs(t *testing.T) {
	if _, err := NewTokenBucket(0, 10); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero rate: %v", err)
	}
	if _, err := NewTokenBucket(3, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("zero burst: %v", err)
	}
}

func TestTokenBucketBurstThenPaces(t *testing.T) {
	bucket, err := NewTokenBucket(2, 3)
	if err != nil {
		t.Fatalf("NewTokenBucket: %v", err)
	}
	clock := time.Unix(1000, 0)
	bucket.now = func() time.Time { return clock }
	bucket.lastRefill = clock
	var slept []time.Duration
	bucket.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		wait, err := bucket.Acquire(ctx)
		if err != nil || wait != 0 {
			t.Fatalf("burst acquire %d: wait=%v err=%v", i, wait, err)
		}
	}

	// Bucket drained: the next token is a full period away at 2 rps.
	wait, err := bucket.Acquire(ctx)
	if err != nil {
		t.Fatalf("paced acquire: %v", err)
	}
	if wait != 500*time.Millisecond {
		t.Fatalf("wait = %v, want 500ms", wait)
	}
	if len(slept) != 1 || slept[0] != 500*time.Millisecond {
		t.Fatalf("slept = %v", slept)
	}
}

func TestTokenBucketRefillCapsAtBurst(t *testing.T) {
	bucket, err := NewTokenBucket(100, 2)
	if err != nil {
		t.Fatalf("NewTokenBucket: %v", err)
	}
	clock := time.Unix(1000, 0)
	bucket.now = func() time.Time { return clock }
	bucket.lastRefill = clock

	// A long idle period must not accumulate more than burst tokens.
	clock = clock.Add(time.Hour)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if wait, err := bucket.Acquire(ctx); err != nil || wait != 0 {
			t.Fatalf("acquire %d after idle: wait=%v err=%v", i, wait, err)
		}
	}
	if wait, _ := bucket.Acquire(ctx); wait == 0 {
		t.Fatalf("third acquire should pace")
	}
}

func TestTokenBucketConcurrentCallersStayWithinRate(t *testing.T) {
	const rate, burst, callers = 2.0, 3, 10

	bucket, err := NewTokenBucket(rate, burst)
	if err != nil {
		t.Fatalf("NewTokenBucket: %v", err)
	}
	clock := time.Unix(1000, 0)
	bucket.now = func() time.Time { return clock }
	bucket.lastRefill = clock
	bucket.sleep = func(context.Context, time.Duration) error { return nil }

	var mu sync.Mutex
	var waits []time.Duration
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wait, err := bucket.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			waits = append(waits, wait)
			mu.Unlock()
		}()
	}
	wg.Wait()

	// With the clock frozen, the multiset of assigned waits is fixed
	// regardless of goroutine ordering: burst immediate grants, then one
	// refill period between each subsequent grant.
	sort.Slice(waits, func(i, j int) bool { return waits[i] < waits[j] })
	period := time.Duration(float64(time.Second) / rate)
	for i, wait := range waits {
		var want time.Duration
		if i >= burst {
			want = time.Duration(i-burst+1) * period
		}
		if wait != want {
			t.Fatalf("waits[%d] = %v, want %v (all: %v)", i, wait, want, waits)
		}
	}

	// Grants available by any deadline never exceed burst plus refill.
	for i, wait := range waits {
		granted := i + 1
		ceiling := burst + int(rate*wait.Seconds())
		if granted > ceiling {
			t.Fatalf("%d grants within %v exceeds allowance %d", granted, wait, ceiling)
		}
	}
}

func TestTokenBucketAcquireHonoursContext(t *testing.T) {
	bucket, err := NewTokenBucket(0.001, 1)
	if err != nil {
		t.Fatalf("NewTokenBucket: %v", err)
	}
	ctx := context.Background()
	if _, err := bucket.Acquire(ctx); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := bucket.Acquire(cancelled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
