package rate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	lim := New(Config{RequestsPerSecond: 10, Burst: 5})

	// Should allow up to burst count immediately
	allowed := 0
	for i := 0; i < 10; i++ {
		if lim.Allow() {
			allowed++
		}
	}

	if allowed != 5 {
		t.Errorf("expected 5 allowed from burst, got %d", allowed)
	}
}

func TestLimiter_Refill(t *testing.T) {
	lim := New(Config{RequestsPerSecond: 100, Burst: 2})

	for lim.Allow() {
	}

	time.Sleep(50 * time.Millisecond)

	if !lim.Allow() {
		t.Error("expected token to be available after refill period")
	}
}

func TestLimiter_BurstCap(t *testing.T) {
	lim := New(Config{RequestsPerSecond: 1000, Burst: 3})

	// Even after a long sleep, tokens should not exceed burst
	time.Sleep(100 * time.Millisecond)

	allowed := 0
	for i := 0; i < 10; i++ {
		if lim.Allow() {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("expected burst cap of 3, got %d", allowed)
	}
}

func TestLimiter_WaitBlocksUntilRefill(t *testing.T) {
	lim := New(Config{RequestsPerSecond: 50, Burst: 1})
	lim.Allow()

	start := time.Now()
	if err := lim.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("expected Wait to block for a refill, returned after %v", elapsed)
	}
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	lim := New(Config{RequestsPerSecond: 0, Burst: 1})
	lim.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := lim.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestManager_PerKeyLimiters(t *testing.T) {
	m := NewManager(Config{RequestsPerSecond: 1, Burst: 1})

	if m.GetLimiter("a") != m.GetLimiter("a") {
		t.Fatal("expected the same limiter for the same key")
	}
	if !m.GetLimiter("a").Allow() {
		t.Fatal("first token for a should be available")
	}
	if !m.GetLimiter("b").Allow() {
		t.Fatal("b must not share a's bucket")
	}
}
