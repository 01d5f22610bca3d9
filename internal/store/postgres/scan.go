package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alfredjeanlab/gatepass/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanEntry decodes the JSONB document column into a model.Entry.
func scanEntry(row scannable) (*model.Entry, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		return nil, err
	}
	return decodeEntry(doc)
}

// scanEntryWithTotal scans a row that has a leading total_count column.
func scanEntryWithTotal(row scannable) (*model.Entry, int, error) {
	var (
		total int
		doc   []byte
	)
	if err := row.Scan(&total, &doc); err != nil {
		return nil, 0, err
	}
	e, err := decodeEntry(doc)
	if err != nil {
		return nil, 0, err
	}
	return e, total, nil
}

func decodeEntry(doc []byte) (*model.Entry, error) {
	var e model.Entry
	if err := json.Unmarshal(doc, &e); err != nil {
		return nil, fmt.Errorf("decode entry document: %w", err)
	}
	return &e, nil
}

func scanEvent(row scannable) (*model.Event, error) {
	var (
		e       model.Event
		actor   sql.NullString
		payload []byte
	)
	if err := row.Scan(&e.ID, &e.Topic, &e.EntryID, &actor, &payload, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Actor = actor.String
	if len(payload) > 0 {
		e.Payload = json.RawMessage(payload)
	}
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// jsonbBytes returns the payload as bytes, or an empty JSON object when
// there is none (the column is NOT NULL).
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return []byte("{}")
	}
	return []byte(m)
}
