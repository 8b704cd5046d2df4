// Package lock provides per-key mutual exclusion for read-then-write sequences.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when the lock could not be taken before the
// timeout or the context ended.
var ErrNotAcquired = errors.New("lock: not acquired")

// Locker hands out exclusive locks on string keys.
// unlock is safe to call once; it is nil when err != nil.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
