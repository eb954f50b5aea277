package lock_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/lock"
	"github.com/warp/payroll-engine/payroll"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "lock:payroll-cycle:cfg-1", lock.Key("cfg-1"))
}

// newRedis connects to REDIS_TEST_ADDR or skips.
func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return rdb
}

func TestRedisLocker_ExcludesSecondHolder(t *testing.T) {
	// GIVEN: One generator holding the lock for a config
	// WHEN: A second one tries with a short deadline
	// THEN: It fails; after release it succeeds

	rdb := newRedis(t)
	locker := lock.NewRedisLocker(rdb, 5*time.Second, nil)
	id := "test-" + time.Now().Format("150405.000000")

	unlock, err := locker.Lock(context.Background(), payroll.ConfigID(id))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, payroll.ConfigID(id))
	assert.Error(t, err)

	unlock()

	unlock2, err := locker.Lock(context.Background(), payroll.ConfigID(id))
	require.NoError(t, err)
	unlock2()
}
