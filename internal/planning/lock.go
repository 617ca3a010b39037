package planning

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// FillLocker guards fill-actuals critical sections.
type FillLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisFillLocker implements FillLocker on a redis SETNX lease.
type RedisFillLocker struct {
	client *redis.Client
}

// NewRedisFillLocker constructs the locker.
func NewRedisFillLocker(client *redis.Client) *RedisFillLocker {
	return &RedisFillLocker{client: client}
}

func (l *RedisFillLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, "1", ttl).Result()
}

func (l *RedisFillLocker) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}
