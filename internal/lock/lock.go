// Package lock provides named, lease-based mutual exclusion used to keep
// concurrent evaluations of the same post from overlapping.
//
// A lease expires on its own after its TTL, so a crashed holder never wedges
// a post. Callers must therefore treat the lock as contention reduction only:
// once a lease lapses a second holder may enter.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the lock stayed taken for the whole retry
// budget, or when the lock service could not be reached.
var ErrNotAcquired = errors.New("lock not acquired")

// Lease is a held lock. Release is safe to call more than once and never
// deletes a lease that has since passed to another holder.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker acquires leases by name.
type Locker interface {
	Acquire(ctx context.Context, name string) (Lease, error)
}

// Options configure the retry budget and lease length shared by lockers.
type Options struct {
	TTL        time.Duration
	Retries    int
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 10 * time.Second
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 100 * time.Millisecond
	}
	return o
}

// retry calls try up to 1+Retries times, sleeping RetryDelay in between.
// try reports (acquired, err); a non-nil err aborts immediately.
func retry(ctx context.Context, o Options, try func() (bool, error)) error {
	for attempt := 0; ; attempt++ {
		ok, err := try()
		if err != nil {
			return errors.Join(ErrNotAcquired, err)
		}
		if ok {
			return nil
		}
		if attempt >= o.Retries {
			return ErrNotAcquired
		}
		t := time.NewTimer(o.RetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(ErrNotAcquired, ctx.Err())
		case <-t.C:
		}
	}
}

// Noop grants every request immediately. It is used when locking is
// disabled; correctness then rests on the store's atomic claim alone.
type Noop struct{}

func (Noop) Acquire(context.Context, string) (Lease, error) { return noopLease{}, nil }

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }
