package lifecycle

import (
	"fmt"

	"github.com/alfredjeanlab/gatepass/internal/gateway"
	"github.com/alfredjeanlab/gatepass/internal/model"
)

// Outcome classifies a successful commit.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialSuccess Outcome = "partial_success"
)

// Result is what a successful commit returns.
type Result struct {
	Entry    *model.Entry      `json:"entry"`
	Outcome  Outcome           `json:"outcome"`
	Warnings []string          `json:"warnings,omitempty"`
	Messages []gateway.Message `json:"messages"`
}

// successCodes are the reply codes that confirm a commit when the reply
// carries no S message.
var successCodes = map[string]bool{
	"OK":        true,
	"CREATED":   true,
	"CHANGED":   true,
	"CANCELLED": true,
	"EXITED":    true,
}

// Interpret applies the reply rules to a commit response. Any E message is a
// *ServerRejected carrying the texts verbatim. A reply without a message list,
// with unknown tags, or without confirmation of success is a malformed
// *ServerRejected. With requireNumber the reply must name the document.
func Interpret(resp *gateway.Response, requireNumber bool) (*Result, error) {
	if resp == nil {
		return nil, &ServerRejected{Malformed: true, Detail: "empty reply"}
	}
	if resp.Messages == nil {
		return nil, &ServerRejected{Malformed: true, Detail: "reply has no messages"}
	}

	var confirmed bool
	for i, m := range resp.Messages {
		if !m.Type.IsValid() {
			return nil, &ServerRejected{Malformed: true, Detail: fmt.Sprintf("message %d has unknown type %q", i, m.Type)}
		}
		if m.Type == gateway.MessageSuccess {
			confirmed = true
		}
	}
	if gateway.HasErrors(resp.Messages) {
		var errs []gateway.Message
		for _, m := range resp.Messages {
			if m.Type == gateway.MessageError {
				errs = append(errs, m)
			}
		}
		return nil, &ServerRejected{Messages: errs}
	}
	if !confirmed && !successCodes[resp.Code] {
		return nil, &ServerRejected{Malformed: true, Detail: fmt.Sprintf("reply confirms nothing (code %q)", resp.Code)}
	}
	if requireNumber && resp.DocumentNumber == "" {
		return nil, &ServerRejected{Malformed: true, Detail: "reply has no document number"}
	}

	res := &Result{Outcome: OutcomeSuccess, Messages: resp.Messages}
	if w := gateway.Texts(resp.Messages, gateway.MessageWarning); len(w) > 0 {
		res.Outcome = OutcomePartialSuccess
		res.Warnings = w
	}
	return res, nil
}
