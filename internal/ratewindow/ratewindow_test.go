package ratewindow

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryWindow(t *testing.T) {
	w := NewMemory(time.Minute)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return base }

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		n, err := w.Hit(ctx, "ip")
		if err != nil {
			t.Fatal(err)
		}
		if n != i {
			t.Fatalf("hit %d returned count %d", i, n)
		}
	}

	if n, _ := w.Count(ctx, "ip"); n != 5 {
		t.Fatalf("Count = %d, want 5", n)
	}
	if n, _ := w.Count(ctx, "other"); n != 0 {
		t.Fatalf("Count for untracked identity = %d", n)
	}

	// Advance past the window: everything expires.
	w.now = func() time.Time { return base.Add(61 * time.Second) }
	if n, _ := w.Count(ctx, "ip"); n != 0 {
		t.Fatalf("Count after expiry = %d, want 0", n)
	}
	if n, _ := w.Hit(ctx, "ip"); n != 1 {
		t.Fatalf("Hit after expiry = %d, want 1", n)
	}
}

func TestMemoryWindowPartialExpiry(t *testing.T) {
	w := NewMemory(time.Minute)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	w.now = func() time.Time { return base }
	_, _ = w.Hit(ctx, "ip")
	_, _ = w.Hit(ctx, "ip")

	w.now = func() time.Time { return base.Add(45 * time.Second) }
	_, _ = w.Hit(ctx, "ip")

	// First two fall out, the third remains.
	w.now = func() time.Time { return base.Add(75 * time.Second) }
	if n, _ := w.Count(ctx, "ip"); n != 1 {
		t.Fatalf("Count = %d, want 1", n)
	}
}

func TestRedisWindow(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	w := NewRedis(client, time.Minute, "test:rate")
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		n, err := w.Hit(ctx, "ip")
		if err != nil {
			t.Fatal(err)
		}
		if n != i {
			t.Fatalf("hit %d returned count %d", i, n)
		}
	}
	if n, err := w.Count(ctx, "ip"); err != nil || n != 3 {
		t.Fatalf("Count = %d, %v", n, err)
	}

	// Identities are isolated.
	if n, _ := w.Count(ctx, "other"); n != 0 {
		t.Fatalf("Count for other identity = %d", n)
	}

	srv.FastForward(61 * time.Second)
	if n, err := w.Count(ctx, "ip"); err != nil || n != 0 {
		t.Fatalf("Count after expiry = %d, %v", n, err)
	}
}
