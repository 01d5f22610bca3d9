package events

import (
	"context"
	"time"

	"github.com/alfredjeanlab/gatepass/internal/model"
)

// Event topic constants
const (
	TopicEntryCreated   = "gate.entry.created"
	TopicEntryChanged   = "gate.entry.changed"
	TopicEntryCancelled = "gate.entry.cancelled"
	TopicEntryExited    = "gate.entry.exited"

	// Role administration.
	TopicRoleUpdated = "gate.role.updated"
	TopicRoleDeleted = "gate.role.deleted"

	// Session lifecycle (login, logout, idle reap).
	TopicSessionStarted = "gate.session.started"
	TopicSessionEnded   = "gate.session.ended"

	// TopicAll matches every gatepass subject.
	TopicAll = "gate.>"
)

// Entry events

type EntryCreated struct {
	Entry    *model.Entry `json:"entry"`
	Warnings []string     `json:"warnings,omitempty"`
}

type EntryChanged struct {
	Entry    *model.Entry `json:"entry"`
	Warnings []string     `json:"warnings,omitempty"`
}

type EntryCancelled struct {
	Entry       *model.Entry `json:"entry"`
	Reason      string       `json:"reason"`
	CancelledBy string       `json:"cancelled_by,omitempty"`
}

type EntryExited struct {
	Entry      *model.Entry `json:"entry"`
	CheckOutAt time.Time    `json:"check_out_at"`
	Warnings   []string     `json:"warnings,omitempty"`
}

// Role events

type RoleUpdated struct {
	Role model.Role `json:"role"`
}

type RoleDeleted struct {
	Name string `json:"name"`
}

// Session events

type SessionStarted struct {
	SessionID string `json:"session_id"`
	User      string `json:"user"`
	Role      string `json:"role"`
	Plant     string `json:"plant,omitempty"`
}

type SessionEnded struct {
	SessionID string `json:"session_id"`
	User      string `json:"user"`
	Reason    string `json:"reason"` // "logout" or "idle"
}

// EntryTopic reports whether topic carries an entry event.
func EntryTopic(topic string) bool {
	switch topic {
	case TopicEntryCreated, TopicEntryChanged, TopicEntryCancelled, TopicEntryExited:
		return true
	}
	return false
}

// Plant returns the plant an event belongs to, or "" for plant-wide events
// such as role changes.
func Plant(event any) string {
	var e *model.Entry
	switch v := event.(type) {
	case EntryCreated:
		e = v.Entry
	case EntryChanged:
		e = v.Entry
	case EntryCancelled:
		e = v.Entry
	case EntryExited:
		e = v.Entry
	case SessionStarted:
		return v.Plant
	}
	if e == nil {
		return ""
	}
	return e.Header.Plant
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
