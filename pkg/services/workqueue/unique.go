package workqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// UniqueLock reserves a deduplication key across processes while a task for
// that key is pending. The queue acquires it on enqueue and releases it when
// the task starts, so a change arriving during a run is never lost.
type UniqueLock interface {
	// Acquire returns false when another holder owns the key.
	Acquire(ctx context.Context, key string) (bool, error)
	// Release frees the key if this holder owns it.
	Release(ctx context.Context, key string) error
}

// releaseScript deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisUniqueLock implements UniqueLock with SET NX PX.
type RedisUniqueLock struct {
	client redis.UniversalClient
	prefix string
	token  string
	ttl    time.Duration
}

// NewRedisUniqueLock creates a lock whose keys expire after ttl if never released.
func NewRedisUniqueLock(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisUniqueLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisUniqueLock{
		client: client,
		prefix: prefix,
		token:  uuid.New().String(),
		ttl:    ttl,
	}
}

var _ UniqueLock = (*RedisUniqueLock)(nil)

func (l *RedisUniqueLock) redisKey(key string) string {
	return l.prefix + key
}

func (l *RedisUniqueLock) Acquire(ctx context.Context, key string) (bool, error) {
	err := l.client.SetArgs(ctx, l.redisKey(key), l.token, redis.SetArgs{
		Mode: "NX",
		TTL:  l.ttl,
	}).Err()
	if errors.Is(err, redis.Nil) {
		// Someone holds it. It may be us from an earlier enqueue whose task has not started.
		owner, getErr := l.client.Get(ctx, l.redisKey(key)).Result()
		if getErr != nil && !errors.Is(getErr, redis.Nil) {
			return false, fmt.Errorf("failed to read unique lock %q: %w", key, getErr)
		}
		return owner == l.token, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to acquire unique lock %q: %w", key, err)
	}
	return true, nil
}

func (l *RedisUniqueLock) Release(ctx context.Context, key string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.redisKey(key)}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release unique lock %q: %w", key, err)
	}
	return nil
}
