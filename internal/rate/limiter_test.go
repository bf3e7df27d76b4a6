package rate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAllowWithinWindow(t *testing.T) {
	m := NewMemory()
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if ok, _ := m.Allow("api", 3, time.Minute); !ok {
			t.Fatalf("request %d denied", i)
		}
	}
	ok, retry := m.Allow("api", 3, time.Minute)
	if ok {
		t.Fatal("expected fourth request to be denied")
	}
	if retry != time.Minute {
		t.Fatalf("expected retry after a minute, got %s", retry)
	}

	if ok, _ := m.Allow("other", 3, time.Minute); !ok {
		t.Fatal("keys must not share a window")
	}

	now = now.Add(time.Minute)
	if ok, _ := m.Allow("api", 3, time.Minute); !ok {
		t.Fatal("expected a new window after reset time")
	}
}

func TestZeroLimitDisablesPacing(t *testing.T) {
	m := NewMemory()
	for i := 0; i < 100; i++ {
		if ok, _ := m.Allow("api", 0, time.Minute); !ok {
			t.Fatal("zero limit must allow everything")
		}
	}
}

func TestWaitBlocksUntilWindowResets(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	window := 30 * time.Millisecond

	if err := m.Wait(ctx, "api", 1, window); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	start := time.Now()
	if err := m.Wait(ctx, "api", 1, window); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < window/2 {
		t.Fatalf("second wait returned after %s", elapsed)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	m := NewMemory()
	m.Allow("api", 1, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.Wait(ctx, "api", 1, time.Hour); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	m.Reset("api")
	if ok, _ := m.Allow("api", 1, time.Hour); !ok {
		t.Fatal("expected reset to clear the window")
	}
}
