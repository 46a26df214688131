package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemLocker is an in-process lease table for single-replica deployments.
type MemLocker struct {
	opts Options
	now  func() time.Time

	mu     sync.Mutex
	leases map[string]memEntry
}

type memEntry struct {
	token   string
	expires time.Time
}

// NewMemLocker returns an empty in-process locker.
func NewMemLocker(opts Options) *MemLocker {
	return &MemLocker{
		opts:   opts.withDefaults(),
		now:    time.Now,
		leases: make(map[string]memEntry),
	}
}

func (l *MemLocker) Acquire(ctx context.Context, name string) (Lease, error) {
	token := uuid.NewString()
	err := retry(ctx, l.opts, func() (bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		now := l.now()
		if cur, ok := l.leases[name]; ok && now.Before(cur.expires) {
			return false, nil
		}
		l.leases[name] = memEntry{token: token, expires: now.Add(l.opts.TTL)}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &memLease{l: l, name: name, token: token}, nil
}

type memLease struct {
	l     *MemLocker
	name  string
	token string
}

func (m *memLease) Release(context.Context) error {
	m.l.mu.Lock()
	defer m.l.mu.Unlock()
	if cur, ok := m.l.leases[m.name]; ok && cur.token == m.token {
		delete(m.l.leases, m.name)
	}
	return nil
}
