package lock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestLocalLocker_Exclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	lease, err := l.Obtain(ctx, Key("5000000001"), time.Minute)
	if err != nil {
		t.Fatalf("Obtain: %v", err)
	}
	if _, err := l.Obtain(ctx, Key("5000000001"), time.Minute); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Obtain: got %v, want ErrLocked", err)
	}
	if _, err := l.Obtain(ctx, Key("5000000002"), time.Minute); err != nil {
		t.Errorf("other key: %v", err)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := l.Obtain(ctx, Key("5000000001"), time.Minute); err != nil {
		t.Errorf("Obtain after release: %v", err)
	}
}

func TestLocalLocker_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	stale, _ := l.Obtain(ctx, "k", time.Second)
	now = now.Add(2 * time.Second)
	fresh, err := l.Obtain(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("Obtain after expiry: %v", err)
	}

	// Releasing the expired lease must not drop the new holder's lock.
	stale.Release(ctx)
	if _, err := l.Obtain(ctx, "k", time.Minute); !errors.Is(err, ErrLocked) {
		t.Errorf("got %v, want ErrLocked while fresh lease held", err)
	}
	fresh.Release(ctx)
}

// TestRedisLocker runs against a real Redis when GATE_TEST_REDIS_ADDR is set.
func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("GATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GATE_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	ctx := context.Background()

	l := NewRedisLocker(rdb)
	key := Key("test-" + time.Now().Format("150405.000000"))
	lease, err := l.Obtain(ctx, key, 5*time.Second)
	if err != nil {
		t.Fatalf("Obtain: %v", err)
	}
	if _, err := l.Obtain(ctx, key, 5*time.Second); !errors.Is(err, ErrLocked) {
		t.Errorf("second Obtain: got %v, want ErrLocked", err)
	}
	if err := lease.Release(ctx); err != nil {
		t.Errorf("Release: %v", err)
	}
}
