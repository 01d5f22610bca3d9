package sync

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/gatepass/internal/model"
	"github.com/alfredjeanlab/gatepass/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	EntryCount int       `json:"entry_count"`
	EventCount int       `json:"event_count"`
	RoleCount  int       `json:"role_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes the whole register as JSONL to w: entries sorted by
// document number, each followed by its audit trail, then custom roles.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	entries, _, err := s.ListEntries(ctx, model.EntryFilter{Sort: "id"})
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Header.ID < entries[j].Header.ID
	})

	trails := make(map[string][]*model.Event, len(entries))
	events := 0
	for _, e := range entries {
		evs, err := s.GetEvents(ctx, e.Header.ID)
		if err != nil {
			return fmt.Errorf("get events for %s: %w", e.Header.ID, err)
		}
		trails[e.Header.ID] = evs
		events += len(evs)
	}

	roles, err := s.ListRoles(ctx)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		EntryCount: len(entries),
		EventCount: events,
		RoleCount:  len(roles),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, e := range entries {
		if err := enc.Encode(record{Type: "entry", Data: e}); err != nil {
			return fmt.Errorf("encode entry %s: %w", e.Header.ID, err)
		}
		for _, ev := range trails[e.Header.ID] {
			if err := enc.Encode(record{Type: "event", Data: ev}); err != nil {
				return fmt.Errorf("encode event %d: %w", ev.ID, err)
			}
		}
	}

	for _, r := range roles {
		if err := enc.Encode(record{Type: "role", Data: r}); err != nil {
			return fmt.Errorf("encode role %s: %w", r.Name, err)
		}
	}

	return nil
}

// ImportStats counts the records restored by ImportJSONL.
type ImportStats struct {
	Entries int `json:"entries"`
	Events  int `json:"events"`
	Roles   int `json:"roles"`
}

// ImportJSONL restores a register written by ExportJSONL into s inside one
// transaction. Events are appended, so importing into a non-empty register
// duplicates their trail.
func ImportJSONL(ctx context.Context, s store.Store, r io.Reader) (ImportStats, error) {
	var stats ImportStats
	err := s.RunInTransaction(ctx, func(tx store.Store) error {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		line := 0
		for sc.Scan() {
			line++
			raw := sc.Bytes()
			if len(raw) == 0 {
				continue
			}
			var rec struct {
				Type string          `json:"type"`
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			switch rec.Type {
			case "header":
			case "entry":
				var e model.Entry
				if err := json.Unmarshal(rec.Data, &e); err != nil {
					return fmt.Errorf("line %d: decode entry: %w", line, err)
				}
				if err := tx.UpsertEntry(ctx, &e); err != nil {
					return fmt.Errorf("line %d: %w", line, err)
				}
				stats.Entries++
			case "event":
				var ev model.Event
				if err := json.Unmarshal(rec.Data, &ev); err != nil {
					return fmt.Errorf("line %d: decode event: %w", line, err)
				}
				if err := tx.RecordEvent(ctx, &ev); err != nil {
					return fmt.Errorf("line %d: %w", line, err)
				}
				stats.Events++
			case "role":
				var role model.Role
				if err := json.Unmarshal(rec.Data, &role); err != nil {
					return fmt.Errorf("line %d: decode role: %w", line, err)
				}
				if err := tx.UpsertRole(ctx, role); err != nil {
					return fmt.Errorf("line %d: %w", line, err)
				}
				stats.Roles++
			default:
				return fmt.Errorf("line %d: unknown record type %q", line, rec.Type)
			}
		}
		return sc.Err()
	})
	if err != nil {
		return ImportStats{}, err
	}
	return stats, nil
}
