package modelstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisLockPrefix = "solariq:lock:"

// ErrLockHeld is returned by TryLock when another holder owns the key.
var ErrLockHeld = errors.New("lock held by another owner")

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared across processes. A lock is a key set with
// NX and a lease; only the holder's token can delete it. The lease bounds how
// long a crashed holder can block others.
type RedisLocker struct {
	client *redis.Client
	lease  time.Duration
	logger *slog.Logger
}

// NewRedisLocker creates a locker. lease <= 0 uses two minutes.
func NewRedisLocker(client *redis.Client, lease time.Duration, logger *slog.Logger) *RedisLocker {
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{client: client, lease: lease, logger: logger}
}

// TryLock makes a single acquisition attempt.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, redisLockPrefix+key, token, l.lease).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %q: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := unlockScript.Run(ctx, l.client, []string{redisLockPrefix + key}, token).Err(); err != nil {
			l.logger.Warn("failed to release model lock", "key", key, "error", err)
		}
	}, nil
}

// Lock retries TryLock with exponential backoff until it succeeds or ctx is
// done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	var unlock func()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 0

	op := func() error {
		u, err := l.TryLock(ctx, key)
		if err != nil {
			if errors.Is(err, ErrLockHeld) {
				return err
			}
			return backoff.Permanent(err)
		}
		unlock = u
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("acquire lock %q: %w", key, ctxErr)
		}
		return nil, err
	}
	return unlock, nil
}
