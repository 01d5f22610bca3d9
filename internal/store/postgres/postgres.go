// Package postgres keeps the gate register in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/gatepass/internal/model"
	"github.com/alfredjeanlab/gatepass/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// register carries the store operations over either the pool or a
// transaction.
type register struct {
	db executor
}

func (r register) UpsertEntry(ctx context.Context, e *model.Entry) error {
	return queryUpsertEntry(ctx, r.db, e)
}

func (r register) GetEntry(ctx context.Context, id string) (*model.Entry, error) {
	return queryGetEntry(ctx, r.db, id)
}

func (r register) ListEntries(ctx context.Context, f model.EntryFilter) ([]*model.Entry, int, error) {
	return queryListEntries(ctx, r.db, f)
}

func (r register) RecordEvent(ctx context.Context, ev *model.Event) error {
	return queryRecordEvent(ctx, r.db, ev)
}

func (r register) GetEvents(ctx context.Context, entryID string) ([]*model.Event, error) {
	return queryGetEvents(ctx, r.db, entryID)
}

func (r register) ListRoles(ctx context.Context) ([]model.Role, error) {
	return queryListRoles(ctx, r.db)
}

func (r register) UpsertRole(ctx context.Context, role model.Role) error {
	return queryUpsertRole(ctx, r.db, role)
}

func (r register) DeleteRole(ctx context.Context, name string) error {
	return queryDeleteRole(ctx, r.db, name)
}

// PostgresStore is the pooled store.
type PostgresStore struct {
	register
	pool *sql.DB
}

var _ store.Store = (*PostgresStore)(nil)

// New connects to databaseURL and migrates the schema to the latest
// version before returning.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A gate has a handful of terminals; keep the pool small.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an open database as is. The schema is assumed current.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{register: register{db: db}, pool: db}
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "gatepass_migrations"})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.pool.Close()
}

// RunInTransaction commits when fn returns nil and rolls back otherwise.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(txStore{register{db: tx}}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore is the store handed to a RunInTransaction callback.
type txStore struct {
	register
}

var _ store.Store = txStore{}

// RunInTransaction joins the enclosing transaction.
func (s txStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close leaves the enclosing transaction to its owner.
func (txStore) Close() error { return nil }
