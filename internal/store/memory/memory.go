// Package memory implements store.Store in process memory. It backs
// `gate serve --sandbox` and tests that need a register without Postgres.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/gatepass/internal/model"
	"github.com/alfredjeanlab/gatepass/internal/store"
)

// Store is an in-memory register. Entries are copied on the way in and out.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*model.Entry
	events  []*model.Event
	roles   map[string]model.Role
	nextID  int64
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

// New returns an empty register.
func New() *Store {
	return &Store{
		entries: make(map[string]*model.Entry),
		roles:   make(map[string]model.Role),
		now:     time.Now,
	}
}

func (s *Store) UpsertEntry(_ context.Context, e *model.Entry) error {
	if e.Header.ID == "" {
		return fmt.Errorf("upsert entry: missing document number")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Header.ID] = e.Clone()
	return nil
}

func (s *Store) GetEntry(_ context.Context, id string) (*model.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("entry %s: %w", id, store.ErrNotFound)
	}
	return e.Clone(), nil
}

func (s *Store) ListEntries(_ context.Context, f model.EntryFilter) ([]*model.Entry, int, error) {
	s.mu.RLock()
	var out []*model.Entry
	for _, e := range s.entries {
		if matches(e, f) {
			out = append(out, e.Clone())
		}
	}
	s.mu.RUnlock()

	sortEntries(out, f.Sort)
	total := len(out)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, total, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func matches(e *model.Entry, f model.EntryFilter) bool {
	h := &e.Header
	if f.Plant != "" && h.Plant != f.Plant {
		return false
	}
	if len(f.Kind) > 0 && !slices.Contains(f.Kind, h.Kind) {
		return false
	}
	if len(f.Status) > 0 && !slices.Contains(f.Status, h.Status) {
		return false
	}
	if f.From != nil && h.CheckInAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !h.CheckInAt.Before(*f.To) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		hay := []string{h.ID, h.Vehicle.Number, h.ReferenceNumber()}
		found := false
		for _, v := range hay {
			if strings.Contains(strings.ToLower(v), q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// sortEntries orders entries the way the Postgres store's ORDER BY does.
// Ties break on the document number.
func sortEntries(entries []*model.Entry, sortKey string) {
	desc := true
	col := "check_in_at"
	if sortKey != "" {
		c := strings.TrimPrefix(sortKey, "-")
		switch c {
		case "id", "plant", "kind", "status", "check_in_at", "created_at", "updated_at":
			col = c
			desc = strings.HasPrefix(sortKey, "-")
		}
	}
	slices.SortStableFunc(entries, func(a, b *model.Entry) int {
		var c int
		switch col {
		case "id":
			c = strings.Compare(a.Header.ID, b.Header.ID)
		case "plant":
			c = strings.Compare(a.Header.Plant, b.Header.Plant)
		case "kind":
			c = strings.Compare(string(a.Header.Kind), string(b.Header.Kind))
		case "status":
			c = strings.Compare(string(a.Header.Status), string(b.Header.Status))
		case "created_at", "updated_at":
			c = a.Header.CreatedAt.Compare(b.Header.CreatedAt)
		default:
			c = a.Header.CheckInAt.Compare(b.Header.CheckInAt)
		}
		if c == 0 {
			c = strings.Compare(a.Header.ID, b.Header.ID)
		}
		if desc {
			return -c
		}
		return c
	})
}

func (s *Store) RecordEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	c := *e
	s.events = append(s.events, &c)
	return nil
}

func (s *Store) GetEvents(_ context.Context, entryID string) ([]*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Event
	for _, e := range s.events {
		if e.EntryID == entryID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *Store) ListRoles(_ context.Context) ([]model.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b model.Role) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) UpsertRole(_ context.Context, r model.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Permissions = slices.Clone(r.Permissions)
	r.UpdatedAt = s.now()
	s.roles[r.Name] = r
	return nil
}

func (s *Store) DeleteRole(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[name]; !ok {
		return fmt.Errorf("role %s: %w", name, store.ErrNotFound)
	}
	delete(s.roles, name)
	return nil
}

// RunInTransaction runs fn against the store directly. Writes made before
// fn fails are not rolled back.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

func (s *Store) Close() error { return nil }
