package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Redis is a Locker shared by every bridge instance using the same Redis
type Redis struct {
	locker *redislock.Client
	ttl    time.Duration
	retry  time.Duration
	log    *logrus.Logger
}

// NewRedis connects to Redis and returns a Locker; ttl bounds how long a
// crashed holder can keep a key locked
func NewRedis(ctx context.Context, addr, password string, db int, ttl time.Duration, log *logrus.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect redis at %s: %w", addr, err)
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	log.Infof("🔒 Redis export locks enabled (addr=%s ttl=%s)", addr, ttl)
	return &Redis{
		locker: redislock.New(rdb),
		ttl:    ttl,
		retry:  100 * time.Millisecond,
		log:    log,
	}, nil
}

// Acquire implements Locker; it retries until ctx is done
func (r *Redis) Acquire(ctx context.Context, name string) (func(), error) {
	l, err := r.locker.Obtain(ctx, "odoobridge:"+name, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.retry),
	})
	if err == redislock.ErrNotObtained {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, name)
	} else if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", name, err)
	}

	return func() {
		// the caller's ctx may already be cancelled; release must still reach Redis
		if err := l.Release(context.Background()); err != nil && err != redislock.ErrLockNotHeld {
			r.log.WithField("lock", name).Warnf("failed to release lock: %v", err)
		}
	}, nil
}
