package lock

import (
	"context"
	"sync"
	"time"

	golock "github.com/viney-shih/go-lock"
)

const defaultTimeout = 5 * time.Second

// Local locks keys within one process. Per-key mutexes are reference counted
// and dropped when the last holder or waiter leaves.
type Local struct {
	timeout time.Duration

	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	m    *golock.CASMutex
	refs int
}

var _ Locker = (*Local)(nil)

// NewLocal returns a Local whose Lock gives up after timeout; 0 => 5s.
func NewLocal(timeout time.Duration) *Local {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Local{timeout: timeout, locks: make(map[string]*localEntry)}
}

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	e := l.acquire(key)

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if !e.m.TryLockWithContext(ctx) {
		l.release(key)
		return nil, ErrNotAcquired
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.m.Unlock()
			l.release(key)
		})
	}, nil
}

// Len reports how many keys currently have holders or waiters.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *Local) acquire(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[key]
	if !ok {
		e = &localEntry{m: golock.NewCASMutex()}
		l.locks[key] = e
	}
	e.refs++
	return e
}

func (l *Local) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.locks[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(l.locks, key)
	}
}
