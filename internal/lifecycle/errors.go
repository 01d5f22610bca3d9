package lifecycle

import (
	"errors"
	"strings"

	"github.com/alfredjeanlab/gatepass/internal/gateway"
)

var (
	// ErrBusy is returned when an operation starts while another call of the
	// same controller is still outstanding.
	ErrBusy = errors.New("another operation is in progress")

	// ErrAbandoned is returned by a call whose draft was discarded while the
	// call was in flight. Nothing was applied locally.
	ErrAbandoned = errors.New("draft was discarded while the call was in flight")

	ErrNoDraft       = errors.New("no draft is open")
	ErrDraftOpen     = errors.New("a draft is already open")
	ErrTerminal      = errors.New("entry is cancelled or exited")
	ErrAlreadyExited = errors.New("vehicle has already exited")
	ErrWrongOrigin   = errors.New("operation does not apply to this draft")
)

// TransitionError is returned when an operation would move the controller
// along an edge the phase table does not have.
type TransitionError struct {
	From, To Phase
}

func (e *TransitionError) Error() string {
	return "cannot move from " + string(e.From) + " to " + string(e.To)
}

// ServerRejected is returned when the system of record refused an operation
// or answered with a reply that could not be understood. Error texts are
// kept verbatim.
type ServerRejected struct {
	Messages  []gateway.Message
	Malformed bool
	Detail    string
}

func (e *ServerRejected) Error() string {
	if e.Malformed {
		return "malformed response from system of record: " + e.Detail
	}
	return strings.Join(gateway.Texts(e.Messages, gateway.MessageError), "\n")
}

// Texts returns the error texts in the order received.
func (e *ServerRejected) Texts() []string {
	return gateway.Texts(e.Messages, gateway.MessageError)
}

// rejected converts read-path refusals from the gateway into *ServerRejected.
func rejected(err error) error {
	var re *gateway.RejectedError
	if errors.As(err, &re) {
		return &ServerRejected{Messages: re.Messages}
	}
	if errors.Is(err, gateway.ErrMalformedResponse) {
		return &ServerRejected{Malformed: true, Detail: err.Error()}
	}
	return err
}
