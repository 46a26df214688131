package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemLocker_ExclusiveUntilRelease(t *testing.T) {
	l := NewMemLocker(Options{TTL: time.Minute, Retries: 0, RetryDelay: time.Millisecond})
	ctx := context.Background()

	a, err := l.Acquire(ctx, "post-1")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "post-1"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("second Acquire err = %v; want ErrNotAcquired", err)
	}
	// different names never contend
	if _, err := l.Acquire(ctx, "post-2"); err != nil {
		t.Fatalf("Acquire(post-2): %v", err)
	}

	if err := a.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := l.Acquire(ctx, "post-1"); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
}

func TestMemLocker_RetriesUntilFree(t *testing.T) {
	l := NewMemLocker(Options{TTL: time.Minute, Retries: 50, RetryDelay: 2 * time.Millisecond})
	ctx := context.Background()

	held, err := l.Acquire(ctx, "p")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = held.Release(ctx)
	}()
	if _, err := l.Acquire(ctx, "p"); err != nil {
		t.Fatalf("expected retry to succeed after release, got %v", err)
	}
}

func TestMemLocker_ExpiredLeaseIsReclaimed(t *testing.T) {
	l := NewMemLocker(Options{TTL: time.Second, Retries: 0})
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "p")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	now = now.Add(2 * time.Second) // holder "crashed", lease lapsed

	fresh, err := l.Acquire(ctx, "p")
	if err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
	// releasing the stale lease must not free the new holder's lock
	_ = stale.Release(ctx)
	if _, err := l.Acquire(ctx, "p"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("stale release freed the new lease: %v", err)
	}
	_ = fresh.Release(ctx)
}

func TestMemLocker_ContextCancelStopsRetrying(t *testing.T) {
	l := NewMemLocker(Options{TTL: time.Minute, Retries: 1000, RetryDelay: 50 * time.Millisecond})
	if _, err := l.Acquire(context.Background(), "p"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := l.Acquire(ctx, "p")
	if !errors.Is(err, ErrNotAcquired) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v; want ErrNotAcquired wrapping DeadlineExceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("retry loop ignored cancellation")
	}
}

func TestMemLocker_MutualExclusionUnderContention(t *testing.T) {
	l := NewMemLocker(Options{TTL: time.Minute, Retries: 1000, RetryDelay: time.Millisecond})
	ctx := context.Background()

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := l.Acquire(ctx, "hot")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			_ = lease.Release(ctx)
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected at most one holder at a time, saw %d", maxSeen)
	}
}

func TestRetry_PropagatesBackendError(t *testing.T) {
	boom := errors.New("connection refused")
	err := retry(context.Background(), Options{Retries: 3}.withDefaults(), func() (bool, error) {
		return false, boom
	})
	if !errors.Is(err, ErrNotAcquired) || !errors.Is(err, boom) {
		t.Fatalf("err = %v; want ErrNotAcquired and backend error", err)
	}
}

func TestNoop_AlwaysGrants(t *testing.T) {
	var l Locker = Noop{}
	for i := 0; i < 3; i++ {
		lease, err := l.Acquire(context.Background(), "p")
		if err != nil || lease == nil {
			t.Fatalf("Noop Acquire = %v, %v", lease, err)
		}
	}
}

func TestOptions_Defaults(t *testing.T) {
	o := Options{Retries: -3}.withDefaults()
	if o.TTL != 10*time.Second || o.Retries != 0 || o.RetryDelay != 100*time.Millisecond {
		t.Fatalf("unexpected defaults: %+v", o)
	}
}
