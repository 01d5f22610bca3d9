// Package gateway defines the logical contract with the external system of
// record and an HTTP/JSON implementation of it.
//
// The contract is transport-agnostic: the lifecycle controller and the
// reference resolver only see the Gateway interface. Every commit call
// returns the system's tagged messages unmodified; interpreting them is the
// caller's job.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alfredjeanlab/gatepass/internal/model"
)

// Gateway is the interface every caller of the system of record uses.
// It is implemented by HTTPGateway and by sandbox.Gateway.
type Gateway interface {
	FetchReference(ctx context.Context, req ReferenceRequest) (*Reference, error)
	CreateEntry(ctx context.Context, entry *model.Entry, idempotencyKey string) (*Response, error)
	FetchForChange(ctx context.Context, id string) (*model.Entry, error)
	ChangeEntry(ctx context.Context, entry *model.Entry, idempotencyKey string) (*Response, error)
	CancelEntry(ctx context.Context, req CancelRequest) (*Response, error)
	RecordExit(ctx context.Context, req ExitRequest) (*Response, error)
	FetchPrintable(ctx context.Context, id string) (*Printable, error)
	ListMaterials(ctx context.Context, plant string) ([]model.Material, error)
}

// MessageType tags a message from the system of record.
type MessageType string

const (
	MessageSuccess MessageType = "S"
	MessageWarning MessageType = "W"
	MessageError   MessageType = "E"
)

// IsValid checks whether the message type is a known tag.
func (t MessageType) IsValid() bool {
	switch t {
	case MessageSuccess, MessageWarning, MessageError:
		return true
	}
	return false
}

// Message is one tagged message. Text is shown to operators verbatim.
type Message struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

// Response is the reply to a commit call.
type Response struct {
	// DocumentNumber is the entry number assigned or affected.
	DocumentNumber string    `json:"document_number,omitempty"`
	Code           string    `json:"code,omitempty"`
	Messages       []Message `json:"messages"`
}

// Texts returns the texts of every message of type t, in order.
func Texts(msgs []Message, t MessageType) []string {
	var out []string
	for _, m := range msgs {
		if m.Type == t {
			out = append(out, m.Text)
		}
	}
	return out
}

// HasErrors reports whether msgs holds an E message.
func HasErrors(msgs []Message) bool {
	for _, m := range msgs {
		if m.Type == MessageError {
			return true
		}
	}
	return false
}

// ReferenceRequest asks for a reference document.
type ReferenceRequest struct {
	Kind   model.ReferenceKind `json:"kind"`
	Number string              `json:"number"`
	Plant  string              `json:"plant"`
}

// ReferenceLine is one line of a reference document.
type ReferenceLine struct {
	LineNo              int             `json:"line_no"`
	MaterialCode        string          `json:"material_code"`
	MaterialDescription string          `json:"material_description"`
	Quantity            decimal.Decimal `json:"quantity"`
	Unit                string          `json:"unit"`
	Balance             decimal.Decimal `json:"balance"`
}

// Reference is a reference document as returned by the system of record.
type Reference struct {
	Kind         model.ReferenceKind `json:"kind"`
	Number       string              `json:"number"`
	Plant        string              `json:"plant"`
	Counterparty model.Party         `json:"counterparty"`
	Lines        []ReferenceLine     `json:"items"`
	Messages     []Message           `json:"messages,omitempty"`
}

// CancelRequest cancels an entry. CancelledAt and CancelledBy are the audit fields.
type CancelRequest struct {
	ID          string    `json:"id"`
	Reason      string    `json:"reason"`
	CancelledBy string    `json:"cancelled_by"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// ExitRequest records a vehicle's exit.
type ExitRequest struct {
	ID         string    `json:"id"`
	CheckOutAt time.Time `json:"check_out_at"`
	RecordedBy string    `json:"recorded_by"`
}

// Printable is a rendered entry, already decoded from its base64 transport form.
type Printable struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

var (
	// ErrReferenceNotFound matches every *NotFoundError.
	ErrReferenceNotFound = errors.New("reference not found")
	// ErrEntryNotFound is returned when the system of record has no such entry.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrMalformedResponse is wrapped by errors for replies missing expected fields.
	ErrMalformedResponse = errors.New("malformed response")
)

// NotFoundError is returned when a reference lookup has no match. Messages
// carries whatever the system of record said about it.
type NotFoundError struct {
	Kind     model.ReferenceKind
	Number   string
	Messages []Message
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s %s not found", e.Kind, e.Number)
	if texts := Texts(e.Messages, MessageError); len(texts) > 0 {
		msg += ": " + strings.Join(texts, "\n")
	}
	return msg
}

// Unwrap lets errors.Is(err, ErrReferenceNotFound) match.
func (e *NotFoundError) Unwrap() error { return ErrReferenceNotFound }

// NetworkError is a call that did not complete. The outcome at the system
// of record is unknown; it is never retried automatically.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RejectedError is returned by read calls the system of record refused with
// E messages.
type RejectedError struct {
	Op       string
	Messages []Message
}

func (e *RejectedError) Error() string {
	return strings.Join(Texts(e.Messages, MessageError), "\n")
}

// StatusError is an HTTP failure without a usable message body.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}
