package model

import "time"

// EntryFilter holds criteria for querying the local gate register.
type EntryFilter struct {
	Plant  string         `json:"plant,omitempty"`
	Kind   []DocumentKind `json:"kind,omitempty"`
	Status []Status       `json:"status,omitempty"`
	From   *time.Time     `json:"from,omitempty"` // check-in at or after
	To     *time.Time     `json:"to,omitempty"`   // check-in before
	Search string         `json:"search,omitempty"` // vehicle number, reference or entry id
	Sort   string         `json:"sort,omitempty"`   // e.g. "-check_in_at", "id"; prefix "-" = descending
	Limit  int            `json:"limit,omitempty"`
	Offset int            `json:"offset,omitempty"`
}
