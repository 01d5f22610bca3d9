package model

import "time"

// Entry is a gate entry as held by the system of record: header plus lines.
type Entry struct {
	Header Header `json:"header"`
	Items  []Item `json:"items"`
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	return &Entry{Header: e.Header.Clone(), Items: CloneItems(e.Items)}
}

// Role is a named permission set. Predefined roles ship with the binary;
// custom roles are persisted.
type Role struct {
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	Builtin     bool      `json:"builtin,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}
