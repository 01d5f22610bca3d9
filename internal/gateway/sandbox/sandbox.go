// Package sandbox is an in-memory system of record implementing
// gateway.Gateway. It consumes reference balances, assigns entry numbers and
// answers with the same tagged messages as the real system. It backs tests
// and `gate serve --sandbox`.
package sandbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alfredjeanlab/gatepass/internal/gateway"
	"github.com/alfredjeanlab/gatepass/internal/model"
)

// Operation names accepted by FailNext, RejectNext and Calls.
const (
	OpFetchReference = "FetchReference"
	OpCreateEntry    = "CreateEntry"
	OpFetchForChange = "FetchForChange"
	OpChangeEntry    = "ChangeEntry"
	OpCancelEntry    = "CancelEntry"
	OpRecordExit     = "RecordExit"
	OpFetchPrintable = "FetchPrintable"
	OpListMaterials  = "ListMaterials"
)

// Gateway is the in-memory system of record.
type Gateway struct {
	// Delay, when set, runs before every call and may block. Its error is
	// returned as a *gateway.NetworkError.
	Delay func(ctx context.Context, op string) error

	mu         sync.Mutex
	nextNumber int64
	references map[docKey]*gateway.Reference
	entries    map[string]*model.Entry
	consumed   map[string]map[lineKey]decimal.Decimal // entry id -> reference line -> qty
	replies    map[string]*gateway.Response          // idempotency key -> reply
	materials  map[string][]model.Material
	calls      map[string]int
	failNext   map[string]error
	rejectNext map[string][]gateway.Message
}

var _ gateway.Gateway = (*Gateway)(nil)

// New returns an empty sandbox. Entry numbers start at 5000000001.
func New() *Gateway {
	return &Gateway{
		nextNumber: 5000000001,
		references: make(map[docKey]*gateway.Reference),
		entries:    make(map[string]*model.Entry),
		consumed:   make(map[string]map[lineKey]decimal.Decimal),
		replies:    make(map[string]*gateway.Response),
		materials:  make(map[string][]model.Material),
		calls:      make(map[string]int),
		failNext:   make(map[string]error),
		rejectNext: make(map[string][]gateway.Message),
	}
}

// NewSeeded returns a sandbox holding a small demo data set for plant 1000:
// purchase order 4500001234 with three lines, a subcontract order, a billing
// document and a material master.
func NewSeeded() *Gateway {
	g := New()
	d := decimal.RequireFromString
	g.AddReference(gateway.Reference{
		Kind: model.ReferencePurchaseOrder, Number: "4500001234", Plant: "1000",
		Counterparty: model.Party{Code: "V100", Name: "Acme Castings Pvt Ltd"},
		Lines: []gateway.ReferenceLine{
			{LineNo: 10, MaterialCode: "RM-100", MaterialDescription: "Grey iron casting", Quantity: d("100"), Unit: "EA", Balance: d("40")},
			{LineNo: 20, MaterialCode: "RM-200", MaterialDescription: "Steel bar 20mm", Quantity: d("2500"), Unit: "KG", Balance: d("2500")},
			{LineNo: 30, MaterialCode: "PK-010", MaterialDescription: "Wooden pallet", Quantity: d("12"), Unit: "EA", Balance: d("0")},
		},
	})
	g.AddReference(gateway.Reference{
		Kind: model.ReferenceSubcontractOrder, Number: "5500000042", Plant: "1000",
		Counterparty: model.Party{Code: "V700", Name: "Shree Platers"},
		Lines: []gateway.ReferenceLine{
			{LineNo: 10, MaterialCode: "SF-310", MaterialDescription: "Zinc plated bracket", Quantity: d("800"), Unit: "EA", Balance: d("800")},
		},
	})
	g.AddReference(gateway.Reference{
		Kind: model.ReferenceBillingDocument, Number: "9000012001", Plant: "1000",
		Counterparty: model.Party{Code: "C200", Name: "Northline Motors"},
		Lines: []gateway.ReferenceLine{
			{LineNo: 10, MaterialCode: "FG-900", MaterialDescription: "Brake drum assembly", Quantity: d("60"), Unit: "EA", Balance: d("60")},
		},
	})
	g.SetMaterials("1000", []model.Material{
		{Plant: "1000", Code: "RM-100", Description: "Grey iron casting", Unit: "EA"},
		{Plant: "1000", Code: "RM-200", Description: "Steel bar 20mm", Unit: "KG"},
		{Plant: "1000", Code: "PK-010", Description: "Wooden pallet", Unit: "EA"},
		{Plant: "1000", Code: "SC-501", Description: "Scrap steel", Unit: "KG"},
		{Plant: "1000", Code: "DIE-4", Description: "Forging die", Unit: "EA"},
	})
	return g
}

// AddReference registers a reference document.
func (g *Gateway) AddReference(ref gateway.Reference) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := ref
	c.Lines = append([]gateway.ReferenceLine(nil), ref.Lines...)
	g.references[refKey(ref.Kind, ref.Number)] = &c
}

// SetMaterials replaces the material master of a plant.
func (g *Gateway) SetMaterials(plant string, mats []model.Material) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.materials[plant] = append([]model.Material(nil), mats...)
}

// PutEntry stores an entry as if it had been created earlier.
func (g *Gateway) PutEntry(e *model.Entry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[e.Header.ID] = e.Clone()
}

// Entry returns a copy of a stored entry.
func (g *Gateway) Entry(id string) (*model.Entry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[id]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// Balance returns the open quantity of a reference line.
func (g *Gateway) Balance(kind model.ReferenceKind, number string, line int) (decimal.Decimal, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref, ok := g.references[refKey(kind, number)]
	if !ok {
		return decimal.Zero, false
	}
	for _, l := range ref.Lines {
		if l.LineNo == line {
			return l.Balance, true
		}
	}
	return decimal.Zero, false
}

// Calls returns how many times op was invoked.
func (g *Gateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// FailNext makes the next call to op fail with err before touching any state.
func (g *Gateway) FailNext(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext[op] = err
}

// RejectNext makes the next commit call to op answer with msgs and change nothing.
func (g *Gateway) RejectNext(op string, msgs ...gateway.Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rejectNext[op] = msgs
}

// begin records the call, runs the delay hook and returns any injected failure.
func (g *Gateway) begin(ctx context.Context, op string) error {
	g.mu.Lock()
	g.calls[op]++
	injected := g.failNext[op]
	delete(g.failNext, op)
	delay := g.Delay
	g.mu.Unlock()

	if delay != nil {
		if err := delay(ctx, op); err != nil {
			return &gateway.NetworkError{Op: op, Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return &gateway.NetworkError{Op: op, Err: err}
	}
	return injected
}

func (g *Gateway) takeRejection(op string) []gateway.Message {
	msgs := g.rejectNext[op]
	delete(g.rejectNext, op)
	return msgs
}

func (g *Gateway) FetchReference(ctx context.Context, req gateway.ReferenceRequest) (*gateway.Reference, error) {
	if err := g.begin(ctx, OpFetchReference); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	ref, ok := g.references[refKey(req.Kind, req.Number)]
	if !ok || (req.Plant != "" && ref.Plant != req.Plant) {
		return nil, &gateway.NotFoundError{
			Kind:     req.Kind,
			Number:   req.Number,
			Messages: []gateway.Message{errorf("Document %s does not exist in plant %s", req.Number, req.Plant)},
		}
	}
	out := *ref
	out.Lines = append([]gateway.ReferenceLine(nil), ref.Lines...)
	return &out, nil
}

func (g *Gateway) CreateEntry(ctx context.Context, entry *model.Entry, idempotencyKey string) (*gateway.Response, error) {
	if err := g.begin(ctx, OpCreateEntry); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.replies[idempotencyKey]; ok && idempotencyKey != "" {
		return copyResponse(prev), nil
	}
	if msgs := g.takeRejection(OpCreateEntry); msgs != nil {
		return &gateway.Response{Messages: msgs}, nil
	}

	e := entry.Clone()
	use, msgs := g.consumption(e, nil)
	if gateway.HasErrors(msgs) {
		return &gateway.Response{Code: "REJECTED", Messages: msgs}, nil
	}

	id := strconv.FormatInt(g.nextNumber, 10)
	g.nextNumber++
	e.Header.ID = id
	e.Header.Status = model.StatusSaved
	g.apply(use, decimal.NewFromInt(-1))
	g.consumed[id] = use
	g.entries[id] = e

	msgs = append(msgs, g.openVehicleWarnings(e)...)
	msgs = append(msgs, gateway.Message{Type: gateway.MessageSuccess, Text: fmt.Sprintf("Gate entry %s created", id)})
	resp := &gateway.Response{DocumentNumber: id, Code: "CREATED", Messages: msgs}
	if idempotencyKey != "" {
		g.replies[idempotencyKey] = copyResponse(resp)
	}
	return resp, nil
}

func (g *Gateway) FetchForChange(ctx context.Context, id string) (*model.Entry, error) {
	if err := g.begin(ctx, OpFetchForChange); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gateway.ErrEntryNotFound, id)
	}
	return g.withBalances(e.Clone(), id), nil
}

func (g *Gateway) ChangeEntry(ctx context.Context, entry *model.Entry, idempotencyKey string) (*gateway.Response, error) {
	if err := g.begin(ctx, OpChangeEntry); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.replies[idempotencyKey]; ok && idempotencyKey != "" {
		return copyResponse(prev), nil
	}
	if msgs := g.takeRejection(OpChangeEntry); msgs != nil {
		return &gateway.Response{Messages: msgs}, nil
	}

	id := entry.Header.ID
	cur, ok := g.entries[id]
	if !ok {
		return &gateway.Response{Messages: []gateway.Message{errorf("Gate entry %s does not exist", id)}}, nil
	}
	if !cur.Header.Status.IsCommitted() {
		return &gateway.Response{Messages: []gateway.Message{errorf("Gate entry %s is %s and cannot be changed", id, cur.Header.Status)}}, nil
	}

	e := entry.Clone()
	use, msgs := g.consumption(e, g.consumed[id])
	if gateway.HasErrors(msgs) {
		return &gateway.Response{Code: "REJECTED", Messages: msgs}, nil
	}
	g.apply(g.consumed[id], decimal.NewFromInt(1))
	g.apply(use, decimal.NewFromInt(-1))
	g.consumed[id] = use

	e.Header.Status = model.StatusChanged
	e.Header.CheckInAt = cur.Header.CheckInAt
	e.Header.CreatedBy = cur.Header.CreatedBy
	e.Header.CreatedAt = cur.Header.CreatedAt
	g.entries[id] = e

	msgs = append(msgs, gateway.Message{Type: gateway.MessageSuccess, Text: fmt.Sprintf("Gate entry %s changed", id)})
	resp := &gateway.Response{DocumentNumber: id, Code: "CHANGED", Messages: msgs}
	if idempotencyKey != "" {
		g.replies[idempotencyKey] = copyResponse(resp)
	}
	return resp, nil
}

func (g *Gateway) CancelEntry(ctx context.Context, req gateway.CancelRequest) (*gateway.Response, error) {
	if err := g.begin(ctx, OpCancelEntry); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if msgs := g.takeRejection(OpCancelEntry); msgs != nil {
		return &gateway.Response{Messages: msgs}, nil
	}
	e, ok := g.entries[req.ID]
	switch {
	case !ok:
		return &gateway.Response{Messages: []gateway.Message{errorf("Gate entry %s does not exist", req.ID)}}, nil
	case e.Header.Status.IsTerminal():
		return &gateway.Response{Messages: []gateway.Message{errorf("Gate entry %s is already %s", req.ID, e.Header.Status)}}, nil
	case strings.TrimSpace(req.Reason) == "":
		return &gateway.Response{Messages: []gateway.Message{errorf("Cancellation reason is mandatory")}}, nil
	}

	g.apply(g.consumed[req.ID], decimal.NewFromInt(1))
	delete(g.consumed, req.ID)
	at := req.CancelledAt
	e.Header.Status = model.StatusCancelled
	e.Header.CancelReason = req.Reason
	e.Header.CancelledBy = req.CancelledBy
	e.Header.CancelledAt = &at

	return &gateway.Response{
		DocumentNumber: req.ID,
		Code:           "CANCELLED",
		Messages:       []gateway.Message{{Type: gateway.MessageSuccess, Text: fmt.Sprintf("Gate entry %s cancelled", req.ID)}},
	}, nil
}

func (g *Gateway) RecordExit(ctx context.Context, req gateway.ExitRequest) (*gateway.Response, error) {
	if err := g.begin(ctx, OpRecordExit); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if msgs := g.takeRejection(OpRecordExit); msgs != nil {
		return &gateway.Response{Messages: msgs}, nil
	}
	e, ok := g.entries[req.ID]
	switch {
	case !ok:
		return &gateway.Response{Messages: []gateway.Message{errorf("Gate entry %s does not exist", req.ID)}}, nil
	case e.Header.CheckOutAt != nil:
		return &gateway.Response{Messages: []gateway.Message{errorf("Vehicle %s already checked out at %s",
			e.Header.Vehicle.Number, e.Header.CheckOutAt.Format(time.DateTime))}}, nil
	case !e.Header.Status.IsCommitted():
		return &gateway.Response{Messages: []gateway.Message{errorf("Gate entry %s is %s", req.ID, e.Header.Status)}}, nil
	case req.CheckOutAt.Before(e.Header.CheckInAt):
		return &gateway.Response{Messages: []gateway.Message{errorf("Check-out time is before check-in time")}}, nil
	}

	at := req.CheckOutAt
	e.Header.Status = model.StatusExited
	e.Header.CheckOutAt = &at

	msgs := []gateway.Message{{Type: gateway.MessageSuccess, Text: fmt.Sprintf("Exit recorded for gate entry %s", req.ID)}}
	if at.Sub(e.Header.CheckInAt) > 24*time.Hour {
		msgs = append([]gateway.Message{{Type: gateway.MessageWarning, Text: "Vehicle stayed inside the plant for more than 24 hours"}}, msgs...)
	}
	return &gateway.Response{DocumentNumber: req.ID, Code: "EXITED", Messages: msgs}, nil
}

func (g *Gateway) FetchPrintable(ctx context.Context, id string) (*gateway.Printable, error) {
	if err := g.begin(ctx, OpFetchPrintable); err != nil {
		return nil, err
	}
	g.mu.Lock()
	e, ok := g.entries[id]
	var doc string
	if ok {
		doc = base64.StdEncoding.EncodeToString(render(e))
	}
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", gateway.ErrEntryNotFound, id)
	}
	return gateway.DecodePrintable(id, "gate-entry-"+id+".txt", "text/plain; charset=utf-8", doc)
}

func (g *Gateway) ListMaterials(ctx context.Context, plant string) ([]model.Material, error) {
	if err := g.begin(ctx, OpListMaterials); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.Material(nil), g.materials[plant]...), nil
}

// consumption checks every reference line of e against the open balance
// (plus what the entry itself already holds) and returns the quantities the
// entry would consume.
func (g *Gateway) consumption(e *model.Entry, held map[lineKey]decimal.Decimal) (map[lineKey]decimal.Decimal, []gateway.Message) {
	use := make(map[lineKey]decimal.Decimal)
	ref := e.Header.Details
	if ref == nil || ref.Reference().Kind == model.ReferenceNone {
		return use, nil
	}
	r := ref.Reference()
	doc, ok := g.references[refKey(r.Kind, r.Number)]
	if !ok {
		return nil, []gateway.Message{errorf("Document %s does not exist", r.Number)}
	}

	var msgs []gateway.Message
	for _, it := range e.Items {
		if !it.EnteredQty.Valid {
			continue
		}
		var line *gateway.ReferenceLine
		for i := range doc.Lines {
			if doc.Lines[i].LineNo == it.LineNo {
				line = &doc.Lines[i]
			}
		}
		if line == nil {
			msgs = append(msgs, errorf("Item %d is not part of document %s", it.LineNo, r.Number))
			continue
		}
		key := lineKey{docKey{r.Kind, r.Number}, it.LineNo}
		open := line.Balance.Add(held[key])
		if it.EnteredQty.Decimal.GreaterThan(open) {
			msgs = append(msgs, errorf("Item %d: quantity %s %s exceeds open quantity %s",
				it.LineNo, it.EnteredQty.Decimal, line.Unit, open))
			continue
		}
		use[key] = it.EnteredQty.Decimal
	}
	return use, msgs
}

// apply adds sign*qty to the balance of every consumed line.
func (g *Gateway) apply(use map[lineKey]decimal.Decimal, sign decimal.Decimal) {
	for key, qty := range use {
		doc, ok := g.references[key.doc]
		if !ok {
			continue
		}
		for i := range doc.Lines {
			if doc.Lines[i].LineNo == key.line {
				doc.Lines[i].Balance = doc.Lines[i].Balance.Add(qty.Mul(sign))
			}
		}
	}
}

// withBalances refreshes the balance of every reference line of e as seen by
// the entry being changed: the open balance plus what the entry holds.
func (g *Gateway) withBalances(e *model.Entry, id string) *model.Entry {
	if e.Header.Details == nil {
		return e
	}
	r := e.Header.Details.Reference()
	doc, ok := g.references[refKey(r.Kind, r.Number)]
	if !ok {
		return e
	}
	for i := range e.Items {
		for _, l := range doc.Lines {
			if l.LineNo == e.Items[i].LineNo {
				held := g.consumed[id][lineKey{docKey{r.Kind, r.Number}, l.LineNo}]
				e.Items[i].BalanceQty = model.Qty(l.Balance.Add(held))
			}
		}
	}
	return e
}

func (g *Gateway) openVehicleWarnings(e *model.Entry) []gateway.Message {
	var ids []string
	for id, other := range g.entries {
		if id == e.Header.ID || other.Header.Plant != e.Header.Plant {
			continue
		}
		if other.Header.Status.IsCommitted() && strings.EqualFold(other.Header.Vehicle.Number, e.Header.Vehicle.Number) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)
	return []gateway.Message{{
		Type: gateway.MessageWarning,
		Text: fmt.Sprintf("Vehicle %s has open gate entries %s", e.Header.Vehicle.Number, strings.Join(ids, ", ")),
	}}
}

func render(e *model.Entry) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "GATE ENTRY %s\n", e.Header.ID)
	fmt.Fprintf(&b, "Plant: %s  Kind: %s  Status: %s\n", e.Header.Plant, e.Header.Kind, e.Header.Status)
	fmt.Fprintf(&b, "Vehicle: %s  Driver: %s\n", e.Header.Vehicle.Number, e.Header.Vehicle.Driver)
	fmt.Fprintf(&b, "Party: %s\n", e.Header.Counterparty().Name)
	fmt.Fprintf(&b, "Check-in: %s\n", e.Header.CheckInAt.Format(time.DateTime))
	for _, it := range e.Items {
		qty := ""
		if it.EnteredQty.Valid {
			qty = it.EnteredQty.Decimal.String()
		}
		fmt.Fprintf(&b, "%4d  %-12s %-30s %10s %-4s %s\n", it.LineNo, it.MaterialCode, it.MaterialDescription, qty, it.Unit, it.Packing)
	}
	return []byte(b.String())
}

func errorf(format string, args ...any) gateway.Message {
	return gateway.Message{Type: gateway.MessageError, Text: fmt.Sprintf(format, args...)}
}

func copyResponse(r *gateway.Response) *gateway.Response {
	c := *r
	c.Messages = append([]gateway.Message(nil), r.Messages...)
	return &c
}

// docKey identifies a reference document.
type docKey struct {
	kind   model.ReferenceKind
	number string
}

func refKey(kind model.ReferenceKind, number string) docKey {
	return docKey{kind: kind, number: number}
}

// lineKey identifies one line of a reference document.
type lineKey struct {
	doc  docKey
	line int
}
