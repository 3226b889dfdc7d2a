package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisMarkIfAbsent(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewRedis(client, "test:", 80*time.Second)
	ctx := context.Background()

	ok, err := cache.MarkIfAbsent(ctx, Key("event", "lead-1"))
	if err != nil || !ok {
		t.Fatalf("expected first mark to succeed, got %v %v", ok, err)
	}
	if !mr.Exists("test:event:lead-1") {
		t.Fatalf("expected prefixed key in redis")
	}

	ok, _ = cache.MarkIfAbsent(ctx, Key("event", "lead-1"))
	if ok {
		t.Fatalf("expected duplicate inside window")
	}

	mr.FastForward(81 * time.Second)
	ok, _ = cache.MarkIfAbsent(ctx, Key("event", "lead-1"))
	if !ok {
		t.Fatalf("expected key to expire after window")
	}
}

func TestRedisForget(t *testing.T) {
	_, client := newTestRedis(t)
	cache := NewRedis(client, "test:", time.Minute)
	ctx := context.Background()

	_, _ = cache.MarkIfAbsent(ctx, "k")
	if err := cache.Forget(ctx, "k"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if ok, _ := cache.MarkIfAbsent(ctx, "k"); !ok {
		t.Fatalf("expected key to be accepted after forget")
	}
}
