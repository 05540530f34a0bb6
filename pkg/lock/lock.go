// Package lock serializes work on one key (a booking) across requests and replicas.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired means another holder owns the key.
var ErrNotAcquired = errors.New("lock: key is held by another request")

// Release gives the key back. Calling it twice is harmless.
type Release func()

type Locker interface {
	// Acquire takes key for at most ttl without waiting.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// LocalLocker is an in-process Locker for single-replica runs and tests.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.held[key]; ok && now.Before(until) {
		return nil, ErrNotAcquired
	}
	until := now.Add(ttl)
	l.held[key] = until

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[key] == until {
				delete(l.held, key)
			}
		})
	}, nil
}
