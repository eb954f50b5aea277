// Package lock provides a Redis-backed payroll.Locker for deployments that
// run more than one generator process against the same database.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/warp/payroll-engine/payroll"
)

const (
	DefaultTTL        = 45 * time.Second
	DefaultRetryDelay = 100 * time.Millisecond
	keyPrefix         = "lock:payroll-cycle:"
)

// RedisLocker obtains one Redis lock per config id. Lock keeps retrying
// until the lock is free or ctx is done, so callers should pass a context
// with a deadline.
type RedisLocker struct {
	client     *redislock.Client
	ttl        time.Duration
	retryDelay time.Duration
	logger     logrus.FieldLogger
}

// NewRedisLocker wraps an existing go-redis client. ttl must outlive one
// generator run; zero selects DefaultTTL.
func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration, logger logrus.FieldLogger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisLocker{
		client:     redislock.New(rdb),
		ttl:        ttl,
		retryDelay: DefaultRetryDelay,
		logger:     logger,
	}
}

// Key is the Redis key guarding a config.
func Key(id payroll.ConfigID) string {
	return keyPrefix + string(id)
}

func (l *RedisLocker) Lock(ctx context.Context, id payroll.ConfigID) (func(), error) {
	lk, err := l.client.Obtain(ctx, Key(id), l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.retryDelay),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("config %q is locked by another generator: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain redis lock for config %q: %w", id, err)
	}

	return func() {
		// The run's context may already be expired; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lk.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.WithFields(logrus.Fields{
				"config_id": id,
				"key":       Key(id),
			}).WithError(err).Warn("failed to release redis lock")
		}
	}, nil
}

var _ payroll.Locker = (*RedisLocker)(nil)
