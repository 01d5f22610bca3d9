// Package catalog serves the plant material master used to fill manual
// lines. Materials come from the system of record and are cached in Redis
// or in memory.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/alfredjeanlab/gatepass/internal/model"
)

// ErrUnknownMaterial is returned by Lookup for codes not in the plant's master.
var ErrUnknownMaterial = errors.New("unknown material")

// DefaultTTL is how long a plant's material master stays cached.
const DefaultTTL = 15 * time.Minute

// Source loads the material master of a plant.
type Source interface {
	ListMaterials(ctx context.Context, plant string) ([]model.Material, error)
}

// Cache stores material masters per plant.
type Cache interface {
	Get(ctx context.Context, plant string) ([]model.Material, bool, error)
	Set(ctx context.Context, plant string, mats []model.Material, ttl time.Duration) error
	Invalidate(ctx context.Context, plant string) error
}

// Catalog is a read-through cache over a Source. Editing sessions only read it.
type Catalog struct {
	src   Source
	cache Cache
	ttl   time.Duration
}

// New returns a catalog. A nil cache uses an in-memory cache.
func New(src Source, cache Cache, ttl time.Duration) *Catalog {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Catalog{src: src, cache: cache, ttl: ttl}
}

// Materials returns the material master of plant sorted by code. Cache
// failures are logged and fall through to the source.
func (c *Catalog) Materials(ctx context.Context, plant string) ([]model.Material, error) {
	mats, ok, err := c.cache.Get(ctx, plant)
	if err != nil {
		slog.Warn("catalog: cache read failed", "plant", plant, "err", err)
	}
	if ok {
		return mats, nil
	}

	mats, err = c.src.ListMaterials(ctx, plant)
	if err != nil {
		return nil, fmt.Errorf("loading materials for plant %s: %w", plant, err)
	}
	sort.Slice(mats, func(i, j int) bool { return mats[i].Code < mats[j].Code })
	if err := c.cache.Set(ctx, plant, mats, c.ttl); err != nil {
		slog.Warn("catalog: cache write failed", "plant", plant, "err", err)
	}
	return mats, nil
}

// Lookup returns the material with the given code.
func (c *Catalog) Lookup(ctx context.Context, plant, code string) (model.Material, error) {
	mats, err := c.Materials(ctx, plant)
	if err != nil {
		return model.Material{}, err
	}
	code = strings.TrimSpace(code)
	for _, m := range mats {
		if strings.EqualFold(m.Code, code) {
			return m, nil
		}
	}
	return model.Material{}, fmt.Errorf("%w: %s in plant %s", ErrUnknownMaterial, code, plant)
}

// Search returns materials whose code starts with query or whose description
// contains it, case-insensitively. A limit of zero or less returns all matches.
func (c *Catalog) Search(ctx context.Context, plant, query string, limit int) ([]model.Material, error) {
	mats, err := c.Materials(ctx, plant)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	var out []model.Material
	for _, m := range mats {
		if q == "" || strings.HasPrefix(strings.ToLower(m.Code), q) || strings.Contains(strings.ToLower(m.Description), q) {
			out = append(out, m)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// Refresh drops the cached master of plant and reloads it.
func (c *Catalog) Refresh(ctx context.Context, plant string) error {
	if err := c.cache.Invalidate(ctx, plant); err != nil {
		return fmt.Errorf("invalidating materials for plant %s: %w", plant, err)
	}
	_, err := c.Materials(ctx, plant)
	return err
}
