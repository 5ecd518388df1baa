package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the context ends before the lock is free.
var ErrNotAcquired = errors.New("lock: not acquired")

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`

var release = redis.NewScript(releaseScript)

// Locker serialises work across processes with a Redis SET NX lease. The
// lease expires after its ttl, so fn should finish well inside it.
type Locker struct {
	R            *redis.Client
	Prefix       string
	RetryBackoff time.Duration
}

// WithLock runs fn while holding the lease for key, waiting for a concurrent
// holder to finish. The lease is released when fn returns, whatever its error.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	key = l.Prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
			}
			return err
		}
		if ok {
			break
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-timer.C:
		}
	}
	defer func() {
		_ = release.Run(context.Background(), l.R, []string{key}, token).Err()
	}()
	return fn(ctx)
}
