package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/gatepass/internal/model"
	"github.com/alfredjeanlab/gatepass/internal/store"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryUpsertEntry(ctx context.Context, db executor, e *model.Entry) error {
	if e.Header.ID == "" {
		return fmt.Errorf("upsert entry: missing document number")
	}
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", e.Header.ID, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO entries (
			id, plant, kind, status, vehicle_number, reference_number,
			check_in_at, check_out_at, created_at, updated_at, document
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, NOW(), $10
		)
		ON CONFLICT (id) DO UPDATE SET
			plant = EXCLUDED.plant,
			kind = EXCLUDED.kind,
			status = EXCLUDED.status,
			vehicle_number = EXCLUDED.vehicle_number,
			reference_number = EXCLUDED.reference_number,
			check_in_at = EXCLUDED.check_in_at,
			check_out_at = EXCLUDED.check_out_at,
			updated_at = NOW(),
			document = EXCLUDED.document`,
		e.Header.ID,
		e.Header.Plant,
		string(e.Header.Kind),
		string(e.Header.Status),
		e.Header.Vehicle.Number,
		e.Header.ReferenceNumber(),
		e.Header.CheckInAt,
		nullTimePtr(e.Header.CheckOutAt),
		e.Header.CreatedAt,
		doc,
	)
	if err != nil {
		return fmt.Errorf("upsert entry %s: %w", e.Header.ID, err)
	}
	return nil
}

func queryGetEntry(ctx context.Context, db executor, id string) (*model.Entry, error) {
	row := db.QueryRowContext(ctx, `SELECT document FROM entries WHERE id = $1`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", id, err)
	}
	return e, nil
}

func queryListEntries(ctx context.Context, db executor, filter model.EntryFilter) ([]*model.Entry, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.Plant != "" {
		whereClauses = append(whereClauses, "plant = "+nextArg())
		args = append(args, filter.Plant)
	}

	if len(filter.Kind) > 0 {
		placeholders := make([]string, len(filter.Kind))
		for i, k := range filter.Kind {
			placeholders[i] = nextArg()
			args = append(args, string(k))
		}
		whereClauses = append(whereClauses, "kind IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = nextArg()
			args = append(args, string(s))
		}
		whereClauses = append(whereClauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if filter.From != nil {
		whereClauses = append(whereClauses, "check_in_at >= "+nextArg())
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		whereClauses = append(whereClauses, "check_in_at < "+nextArg())
		args = append(args, *filter.To)
	}

	if filter.Search != "" {
		p := nextArg()
		whereClauses = append(whereClauses,
			fmt.Sprintf("(id ILIKE '%%' || %s || '%%' OR vehicle_number ILIKE '%%' || %s || '%%' OR reference_number ILIKE '%%' || %s || '%%')", p, p, p))
		args = append(args, filter.Search)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	// Single query with COUNT(*) OVER() to get total and rows atomically.
	dataQuery := "SELECT COUNT(*) OVER() AS total_count, document FROM entries" + whereSQL + " ORDER BY " + parseSortClause(filter.Sort)

	if filter.Limit > 0 {
		dataQuery += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		dataQuery += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.Entry
	var total int
	for rows.Next() {
		e, t, err := scanEntryWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan entries: %w", err)
		}
		total = t
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan entries: %w", err)
	}

	return entries, total, nil
}

// allowedSortColumns maps sortable names to register columns.
var allowedSortColumns = map[string]bool{
	"id":          true,
	"plant":       true,
	"kind":        true,
	"status":      true,
	"check_in_at": true,
	"created_at":  true,
	"updated_at":  true,
}

// parseSortClause turns "-check_in_at" into "check_in_at DESC". Unknown
// columns fall back to the newest check-in first.
func parseSortClause(sort string) string {
	const fallback = "check_in_at DESC"
	if sort == "" {
		return fallback
	}
	dir := "ASC"
	col := sort
	if strings.HasPrefix(sort, "-") {
		dir = "DESC"
		col = sort[1:]
	}
	if !allowedSortColumns[col] {
		return fallback
	}
	return col + " " + dir
}

func queryRecordEvent(ctx context.Context, db executor, e *model.Event) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO entry_events (topic, entry_id, actor, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		e.Topic, e.EntryID, e.Actor, jsonbBytes(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
}

func queryGetEvents(ctx context.Context, db executor, entryID string) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, topic, entry_id, actor, payload, created_at
		FROM entry_events
		WHERE entry_id = $1
		ORDER BY created_at ASC, id ASC`,
		entryID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryListRoles(ctx context.Context, db executor) ([]model.Role, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, permissions, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []model.Role
	for rows.Next() {
		var r model.Role
		if err := rows.Scan(&r.Name, pq.Array(&r.Permissions), &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan roles: %w", err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan roles: %w", err)
	}
	return roles, nil
}

func queryUpsertRole(ctx context.Context, db executor, r model.Role) error {
	perms := r.Permissions
	if perms == nil {
		perms = []string{}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO roles (name, permissions, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET permissions = $2, updated_at = NOW()`,
		r.Name, pq.Array(perms),
	)
	return err
}

func queryDeleteRole(ctx context.Context, db executor, name string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM roles WHERE name = $1`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("role %s: %w", name, store.ErrNotFound)
	}
	return nil
}
