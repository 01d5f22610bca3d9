// Package client is the HTTP/JSON client of the gate entry API used by the
// gate CLI.
package client

import (
	"context"
	"time"

	"github.com/alfredjeanlab/gatepass/internal/access"
	"github.com/alfredjeanlab/gatepass/internal/gateway"
	"github.com/alfredjeanlab/gatepass/internal/lifecycle"
	"github.com/alfredjeanlab/gatepass/internal/model"
	"github.com/alfredjeanlab/gatepass/internal/paging"
	"github.com/alfredjeanlab/gatepass/internal/resolver"
	"github.com/alfredjeanlab/gatepass/internal/session"
)

// GateClient is what the CLI commands talk to. HTTPClient implements it.
type GateClient interface {
	// Sessions
	Login(ctx context.Context, user, role, plant string) (*LoginResponse, error)
	Logout(ctx context.Context) error
	CurrentSession(ctx context.Context) (*session.Session, error)
	Screens(ctx context.Context) ([]string, error)

	// Drafts
	NewDraft(ctx context.Context, req *NewDraftRequest) (*DraftView, error)
	Draft(ctx context.Context) (*DraftView, error)
	DiscardDraft(ctx context.Context) error
	PatchHeader(ctx context.Context, p model.HeaderPatch) (*DraftView, error)
	FetchReference(ctx context.Context, number string) (*FetchReferenceResponse, error)
	ResetToManual(ctx context.Context) (*DraftView, error)
	Items(ctx context.Context, page, size int) (*paging.Window[model.Item], error)
	AddRows(ctx context.Context, n int) (*DraftView, error)
	PatchItem(ctx context.Context, line int, p *ItemPatch) (*DraftView, error)
	RemoveItem(ctx context.Context, line int) (*DraftView, error)
	Validate(ctx context.Context) error
	Submit(ctx context.Context) (*lifecycle.Result, error)

	// Entries
	ListEntries(ctx context.Context, req *ListEntriesRequest) (*paging.Window[*model.Entry], error)
	ExportEntries(ctx context.Context, req *ListEntriesRequest, format string) (*Download, error)
	GetEntry(ctx context.Context, id string) (*model.Entry, error)
	GetEvents(ctx context.Context, id string) ([]*model.Event, error)
	Print(ctx context.Context, id string) (*Download, error)
	Change(ctx context.Context, id string) (*DraftView, error)
	Reuse(ctx context.Context, id string) (*DraftView, error)
	Cancel(ctx context.Context, id, reason string, confirmed bool) (*lifecycle.Result, error)
	Exit(ctx context.Context, id string, at *time.Time) (*lifecycle.Result, error)

	// Administration
	Materials(ctx context.Context, query string, limit int) ([]model.Material, error)
	Permissions(ctx context.Context) ([]access.Permission, error)
	Roles(ctx context.Context) ([]model.Role, error)
	SetRole(ctx context.Context, name string, permissions []string) (*model.Role, error)
	DeleteRole(ctx context.Context, name string) error

	// Streams
	Stream(ctx context.Context, topics []string, lastEventID string, fn func(StreamEvent) error) error

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// LoginResponse is returned by Login.
type LoginResponse struct {
	Token   string           `json:"token"`
	Session *session.Session `json:"session"`
	Screens []string         `json:"screens"`
}

// NewDraftRequest holds parameters for opening a draft.
type NewDraftRequest struct {
	Kind  model.DocumentKind `json:"kind"`
	Plant string             `json:"plant,omitempty"`
	Rows  int                `json:"rows,omitempty"`
}

// DraftView is the open draft of the session with the controller phase.
type DraftView struct {
	Phase lifecycle.Phase `json:"phase"`
	Draft *model.Draft    `json:"draft"`
}

// FetchReferenceResponse is returned by FetchReference.
type FetchReferenceResponse struct {
	Resolution *resolver.Resolution `json:"resolution"`
	Draft      *model.Draft         `json:"draft"`
}

// ItemPatch lists the line fields to change. Nil fields are left untouched;
// an empty EnteredQty clears the quantity.
type ItemPatch struct {
	MaterialCode *string                 `json:"material_code,omitempty"`
	EnteredQty   *string                 `json:"entered_qty,omitempty"`
	Packing      *model.PackingCondition `json:"packing,omitempty"`
}

// ListEntriesRequest holds register filters.
type ListEntriesRequest struct {
	Plant    string
	Kind     []string
	Status   []string
	From     string
	To       string
	Search   string
	Sort     string
	Page     int
	PageSize int
}

// Download is a file returned by the server.
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
}

// StreamEvent is one server-sent event from /v1/events/stream.
type StreamEvent struct {
	ID    string
	Topic string
	Data  []byte
}

// APIError is an error response from the server. Messages from the system
// of record are carried verbatim.
type APIError struct {
	StatusCode int                `json:"-"`
	Message    string             `json:"error"`
	Code       string             `json:"code,omitempty"`
	Fields     []model.FieldError `json:"fields,omitempty"`
	Messages   []gateway.Message  `json:"messages,omitempty"`
	Malformed  bool               `json:"malformed,omitempty"`
}
