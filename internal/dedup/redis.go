package dedup

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis is a Cache shared by every process connected to the same Redis.
type Redis struct {
	client *redis.Client
	prefix string
	window time.Duration
}

// NewRedis constructs a Redis-backed cache. Keys are stored as prefix+key.
func NewRedis(client *redis.Client, prefix string, window time.Duration) *Redis {
	if window <= 0 {
		window = time.Minute
	}
	return &Redis{client: client, prefix: prefix, window: window}
}

// MarkIfAbsent implements Cache with SET NX PX.
func (r *Redis) MarkIfAbsent(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+key, time.Now().UTC().UnixMilli(), r.window).Result()
	if err != nil {
		return false, fmt.Errorf("dedup mark: %w", err)
	}
	return ok, nil
}

// Forget implements Cache.
func (r *Redis) Forget(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("dedup forget: %w", err)
	}
	return nil
}

// Window implements Cache.
func (r *Redis) Window() time.Duration { return r.window }
