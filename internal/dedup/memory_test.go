package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/acme/lead-engagement/pkg/clock"
)

func TestMemoryMarkIfAbsentWithinWindow(t *testing.T) {
	clk := clock.NewManual(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	cache := NewMemory(80*time.Second, clk)
	ctx := context.Background()

	first, err := cache.MarkIfAbsent(ctx, "lead-1")
	if err != nil || !first {
		t.Fatalf("expected first mark to succeed, got %v %v", first, err)
	}

	clk.Advance(79 * time.Second)
	again, _ := cache.MarkIfAbsent(ctx, "lead-1")
	if again {
		t.Fatalf("expected duplicate within window")
	}

	other, _ := cache.MarkIfAbsent(ctx, "lead-2")
	if !other {
		t.Fatalf("expected independent key to be accepted")
	}
}

func TestMemoryExpiresAfterWindow(t *testing.T) {
	clk := clock.NewManual(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	cache := NewMemory(60*time.Second, clk)
	ctx := context.Background()

	_, _ = cache.MarkIfAbsent(ctx, "k")
	clk.Advance(60 * time.Second)

	ok, _ := cache.MarkIfAbsent(ctx, "k")
	if !ok {
		t.Fatalf("expected key to be accepted once the window elapsed")
	}
}

func TestMemoryForgetAndSweep(t *testing.T) {
	clk := clock.NewManual(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	cache := NewMemory(time.Minute, clk)
	ctx := context.Background()

	_, _ = cache.MarkIfAbsent(ctx, "a")
	_, _ = cache.MarkIfAbsent(ctx, "b")
	_ = cache.Forget(ctx, "a")
	if ok, _ := cache.MarkIfAbsent(ctx, "a"); !ok {
		t.Fatalf("expected forgotten key to be accepted")
	}

	clk.Advance(2 * time.Minute)
	if removed := cache.Sweep(); removed != 2 {
		t.Fatalf("expected 2 expired entries, got %d", removed)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache after sweep, got %d", cache.Len())
	}
}
