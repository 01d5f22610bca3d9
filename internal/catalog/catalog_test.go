package catalog

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alfredjeanlab/gatepass/internal/model"
)

type countingSource struct {
	mats  []model.Material
	calls int
	err   error
}

func (s *countingSource) ListMaterials(_ context.Context, plant string) ([]model.Material, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]model.Material(nil), s.mats...), nil
}

func testSource() *countingSource {
	return &countingSource{mats: []model.Material{
		{Plant: "1000", Code: "RM-200", Description: "Steel bar 20mm", Unit: "KG"},
		{Plant: "1000", Code: "RM-100", Description: "Grey iron casting", Unit: "EA"},
		{Plant: "1000", Code: "PK-010", Description: "Wooden pallet", Unit: "EA"},
	}}
}

func TestMaterials_CachesAndSorts(t *testing.T) {
	src := testSource()
	c := New(src, nil, time.Minute)
	ctx := context.Background()

	mats, err := c.Materials(ctx, "1000")
	if err != nil {
		t.Fatalf("Materials: %v", err)
	}
	if mats[0].Code != "PK-010" || mats[2].Code != "RM-200" {
		t.Errorf("materials not sorted by code: %+v", mats)
	}
	if _, err := c.Materials(ctx, "1000"); err != nil {
		t.Fatalf("Materials: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("source calls = %d, want 1", src.calls)
	}

	if err := c.Refresh(ctx, "1000"); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if src.calls != 2 {
		t.Errorf("source calls after refresh = %d, want 2", src.calls)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }
	src := testSource()
	c := New(src, cache, time.Minute)
	ctx := context.Background()

	c.Materials(ctx, "1000")
	now = now.Add(2 * time.Minute)
	c.Materials(ctx, "1000")
	if src.calls != 2 {
		t.Errorf("source calls = %d, want 2 after expiry", src.calls)
	}
}

func TestLookup(t *testing.T) {
	c := New(testSource(), nil, 0)
	m, err := c.Lookup(context.Background(), "1000", "rm-100")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if m.Description != "Grey iron casting" || m.Unit != "EA" {
		t.Errorf("material = %+v", m)
	}
	if _, err := c.Lookup(context.Background(), "1000", "XX-1"); !errors.Is(err, ErrUnknownMaterial) {
		t.Errorf("got %v, want ErrUnknownMaterial", err)
	}
}

func TestSearch(t *testing.T) {
	c := New(testSource(), nil, 0)
	ctx := context.Background()

	got, _ := c.Search(ctx, "1000", "rm-", 0)
	if len(got) != 2 {
		t.Errorf("prefix search = %+v, want 2", got)
	}
	got, _ = c.Search(ctx, "1000", "pallet", 0)
	if len(got) != 1 || got[0].Code != "PK-010" {
		t.Errorf("description search = %+v", got)
	}
	got, _ = c.Search(ctx, "1000", "", 1)
	if len(got) != 1 {
		t.Errorf("limit = %d, want 1", len(got))
	}
}

func TestMaterials_SourceError(t *testing.T) {
	src := &countingSource{err: errors.New("gateway down")}
	if _, err := New(src, nil, 0).Materials(context.Background(), "1000"); err == nil {
		t.Fatal("expected error")
	}
}

// TestRedisCache runs against a real Redis when GATE_TEST_REDIS_ADDR is set.
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("GATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GATE_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	ctx := context.Background()

	cache := NewRedisCache(rdb)
	plant := "T" + time.Now().Format("150405")
	if _, ok, err := cache.Get(ctx, plant); ok || err != nil {
		t.Fatalf("Get on empty cache = %v, %v", ok, err)
	}
	want := testSource().mats
	if err := cache.Set(ctx, plant, want, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := cache.Get(ctx, plant)
	if err != nil || !ok || len(got) != len(want) {
		t.Fatalf("Get = %+v, %v, %v", got, ok, err)
	}
	if err := cache.Invalidate(ctx, plant); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
}
