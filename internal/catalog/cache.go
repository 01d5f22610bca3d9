package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alfredjeanlab/gatepass/internal/model"
)

// RedisCache stores each plant's master as one JSON value.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache returns a cache backed by rdb.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: "gatepass:materials:"}
}

func (c *RedisCache) Get(ctx context.Context, plant string) ([]model.Material, bool, error) {
	val, err := c.rdb.Get(ctx, c.prefix+plant).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var mats []model.Material
	if err := json.Unmarshal(val, &mats); err != nil {
		return nil, false, err
	}
	return mats, true, nil
}

func (c *RedisCache) Set(ctx context.Context, plant string, mats []model.Material, ttl time.Duration) error {
	data, err := json.Marshal(mats)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.prefix+plant, data, ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, plant string) error {
	return c.rdb.Del(ctx, c.prefix+plant).Err()
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time
}

type memEntry struct {
	mats    []model.Material
	expires time.Time
}

// NewMemoryCache returns an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, plant string) ([]model.Material, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[plant]
	if !ok || !c.now().Before(e.expires) {
		return nil, false, nil
	}
	return append([]model.Material(nil), e.mats...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, plant string, mats []model.Material, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[plant] = memEntry{mats: append([]model.Material(nil), mats...), expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Invalidate(_ context.Context, plant string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, plant)
	return nil
}
