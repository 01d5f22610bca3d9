// Package lock serializes writes to the same gate entry across sessions.
// A Redis-backed locker (bsm/redislock) is used when Redis is configured;
// a process-local locker otherwise.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another session holds the document.
var ErrLocked = errors.New("document is being edited by another session")

// DefaultTTL bounds how long a lease is held if its holder never releases it.
const DefaultTTL = 30 * time.Second

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker obtains per-key leases.
type Locker interface {
	// Obtain takes the lock for key or fails fast with ErrLocked.
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Key returns the lock key for a gate entry.
func Key(entryID string) string {
	return "gatepass:lock:entry:" + entryID
}

// RedisLocker implements Locker with bsm/redislock.
type RedisLocker struct {
	client *redislock.Client
}

// NewRedisLocker returns a locker backed by rdb.
func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	lk, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtaining lock %s: %w", key, err)
	}
	return redisLease{lk}, nil
}

type redisLease struct {
	lk *redislock.Lock
}

func (r redisLease) Release(ctx context.Context) error {
	err := r.lk.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}

// LocalLocker implements Locker in process memory.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localHold
	seq  uint64
	now  func() time.Time
}

type localHold struct {
	token   uint64
	expires time.Time
}

// NewLocalLocker returns an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localHold), now: time.Now}
}

func (l *LocalLocker) Obtain(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.held[key]; ok && now.Before(h.expires) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}
	l.seq++
	l.held[key] = localHold{token: l.seq, expires: now.Add(ttl)}
	return &localLease{locker: l, key: key, token: l.seq}, nil
}

type localLease struct {
	locker *LocalLocker
	key    string
	token  uint64
}

func (r *localLease) Release(context.Context) error {
	r.locker.mu.Lock()
	defer r.locker.mu.Unlock()
	if h, ok := r.locker.held[r.key]; ok && h.token == r.token {
		delete(r.locker.held, r.key)
	}
	return nil
}
