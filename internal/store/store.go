package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/gatepass/internal/model"
)

// ErrNotFound is returned when the register holds no row for the requested key.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for the local gate register.
// The system of record stays authoritative; the register holds the last
// committed snapshot of every entry, its audit trail and custom roles.
type Store interface {
	// Entries
	UpsertEntry(ctx context.Context, e *model.Entry) error
	GetEntry(ctx context.Context, id string) (*model.Entry, error)
	ListEntries(ctx context.Context, filter model.EntryFilter) ([]*model.Entry, int, error) // returns entries, total count, error

	// Events
	RecordEvent(ctx context.Context, event *model.Event) error
	GetEvents(ctx context.Context, entryID string) ([]*model.Event, error)

	// Roles
	ListRoles(ctx context.Context) ([]model.Role, error)
	UpsertRole(ctx context.Context, role model.Role) error
	DeleteRole(ctx context.Context, name string) error

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
