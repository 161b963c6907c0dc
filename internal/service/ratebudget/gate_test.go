package ratebudget

import (
	"context"
	"errors"
	"testing"
	"time"

	"DropWatch/pkg/kvstore"
	"DropWatch/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func TestAllowWithinBudget(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	g := New(kv, testLogger(t), 3, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if !g.Allow(ctx, "megaretail") {
			t.Fatalf("request %d should be allowed within budget", i+1)
		}
	}
	if g.Allow(ctx, "megaretail") {
		t.Fatalf("fourth request in the window should be limited")
	}
}

func TestBudgetIsPerRetailer(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	g := New(kv, testLogger(t), 1, nil)

	ctx := context.Background()
	if !g.Allow(ctx, "alpha") {
		t.Fatalf("alpha first request should pass")
	}
	if !g.Allow(ctx, "beta") {
		t.Fatalf("beta budget must be independent of alpha")
	}
}

func TestDynamicStoreValueWins(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	ctx := context.Background()
	if err := kv.Set(ctx, "qpm:megaretail", "1", 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Static layers say 10, the dynamic store says 1.
	g := New(kv, testLogger(t), 10, map[string]int{"megaretail": 10})

	if !g.Allow(ctx, "megaretail") {
		t.Fatalf("first request should pass")
	}
	if g.Allow(ctx, "megaretail") {
		t.Fatalf("dynamic qpm=1 should limit the second request")
	}
}

func TestOverrideBeatsDefault(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	g := New(kv, testLogger(t), 1, map[string]int{"megaretail": 2})

	ctx := context.Background()
	if !g.Allow(ctx, "megaretail") || !g.Allow(ctx, "megaretail") {
		t.Fatalf("override qpm=2 should allow two requests")
	}
	if g.Allow(ctx, "megaretail") {
		t.Fatalf("third request should be limited")
	}
}

func TestWindowSlidesAcrossBoundary(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	g := New(kv, testLogger(t), 2, nil)
	g.window = 200 * time.Millisecond

	ctx := context.Background()
	if !g.Allow(ctx, "megaretail") {
		t.Fatalf("first request should pass")
	}
	time.Sleep(120 * time.Millisecond)
	if !g.Allow(ctx, "megaretail") {
		t.Fatalf("second request should pass")
	}
	if g.Allow(ctx, "megaretail") {
		t.Fatalf("third request inside the window should be limited")
	}

	// Past the first stamp but not the second. A bucketed counter would
	// reset here and admit a fresh burst of two; a sliding window frees
	// exactly one slot.
	time.Sleep(120 * time.Millisecond)
	if !g.Allow(ctx, "megaretail") {
		t.Fatalf("expired stamp should free one slot")
	}
	if g.Allow(ctx, "megaretail") {
		t.Fatalf("window still holds two live stamps, request should be limited")
	}
}

func TestFallbackQPMWhenUnconfigured(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	g := New(kv, testLogger(t), 0, nil)

	if got := g.resolveQPM(context.Background(), "anyone"); got != FallbackQPM {
		t.Fatalf("expected fallback %d, got %d", FallbackQPM, got)
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, error) {
	return "", errors.New("down")
}

func (failingStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("down")
}

func (failingStore) RateLimit(context.Context, string, time.Duration, int) (bool, error) {
	return false, errors.New("down")
}

func (failingStore) Close() error { return nil }

func TestFailsOpenOnStoreError(t *testing.T) {
	g := New(failingStore{}, testLogger(t), 1, nil)
	for i := 0; i < 5; i++ {
		if !g.Allow(context.Background(), "megaretail") {
			t.Fatalf("gate must fail open when the counter store errors")
		}
	}
}
