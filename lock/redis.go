package lock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix starts with the key delimiter, which no tenant storage key
// can, so a lock key never shows up in a tenant listing.
const redisKeyPrefix = ":kvproxy:lock:"

// Redis locks keys across processes with redsync. Locks expire on their own
// after Expiry, so a crashed holder cannot wedge a key.
type Redis struct {
	rs     *redsync.Redsync
	expiry time.Duration
	tries  int
}

var _ Locker = (*Redis)(nil)

type RedisConfig struct {
	Client redis.UniversalClient // Required.
	Expiry time.Duration         // lock lease; 0 => 8s
	Tries  int                   // acquire attempts; 0 => 32
}

func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Client == nil {
		return nil, errors.New("lock: redis client is required")
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = 8 * time.Second
	}
	if cfg.Tries <= 0 {
		cfg.Tries = 32
	}
	return &Redis{
		rs:     redsync.New(goredis.NewPool(cfg.Client)),
		expiry: cfg.Expiry,
		tries:  cfg.Tries,
	}, nil
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	m := r.rs.NewMutex(redisKeyPrefix+key,
		redsync.WithExpiry(r.expiry),
		redsync.WithTries(r.tries),
	)
	if err := m.LockContext(ctx); err != nil {
		return nil, errors.Join(ErrNotAcquired, err)
	}
	return func() {
		// the lease expires anyway if this fails
		_, _ = m.UnlockContext(context.Background())
	}, nil
}
