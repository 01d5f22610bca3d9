package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrReadOnly is returned when a draft mutation touches a field that is
// owned by the reference document.
var ErrReadOnly = errors.New("read-only in reference mode")

// ErrReferenceRequired is returned when a draft of a kind that is always
// posted against a reference document would leave reference mode.
var ErrReferenceRequired = errors.New("kind is posted against a reference document")

// ErrLineNotFound is returned when a draft has no item with the requested line number.
var ErrLineNotFound = errors.New("line not found")

// Origin records how a draft came to exist.
type Origin string

const (
	OriginCreate Origin = "create"
	OriginChange Origin = "change"
	OriginReuse  Origin = "reuse"
)

// Draft is the single in-flight edit of a gate entry. Token is the
// idempotency key sent with the commit so a re-initiated create cannot post
// twice.
type Draft struct {
	ID     string `json:"id"`
	Token  string `json:"token"`
	Origin Origin `json:"origin"`
	Mode   Mode   `json:"mode"`
	Header Header `json:"header"`
	Items  []Item `json:"items"`
}

// NewDraft returns a blank manual-mode draft checked in at now.
func NewDraft(id, token string, kind DocumentKind, plant string, now time.Time) *Draft {
	return &Draft{
		ID:     id,
		Token:  token,
		Origin: OriginCreate,
		Mode:   ModeManual,
		Header: Header{
			Plant:     plant,
			Kind:      kind,
			Details:   NewDetails(kind),
			CheckInAt: now,
			Status:    StatusDraft,
		},
	}
}

// DraftFromEntry returns a draft editing a copy of e. Entries posted against
// a reference come back in reference mode.
func DraftFromEntry(id, token string, origin Origin, e *Entry) *Draft {
	c := e.Clone()
	mode := ModeManual
	if c.Header.ReferenceKind() != ReferenceNone {
		mode = ModeReference
	}
	return &Draft{ID: id, Token: token, Origin: origin, Mode: mode, Header: c.Header, Items: c.Items}
}

// Clone returns a deep copy of the draft.
func (d *Draft) Clone() *Draft {
	c := *d
	c.Header = d.Header.Clone()
	c.Items = CloneItems(d.Items)
	return &c
}

// Entry returns a copy of the draft as a document. Blank template rows
// (no material and no quantity) are left out.
func (d *Draft) Entry() *Entry {
	items := make([]Item, 0, len(d.Items))
	for _, it := range d.Items {
		if isBlankRow(it) {
			continue
		}
		items = append(items, it)
	}
	return &Entry{Header: d.Header.Clone(), Items: items}
}

func isBlankRow(it Item) bool {
	return strings.TrimSpace(it.MaterialCode) == "" &&
		strings.TrimSpace(it.MaterialDescription) == "" &&
		!it.EnteredQty.Valid
}

// Index returns the position of the item with the given line number.
func (d *Draft) Index(line int) (int, error) {
	for i := range d.Items {
		if d.Items[i].LineNo == line {
			return i, nil
		}
	}
	return -1, fmt.Errorf("line %d: %w", line, ErrLineNotFound)
}

// SetEnteredQty keys in the quantity for a line. Allowed in both modes.
func (d *Draft) SetEnteredQty(line int, qty decimal.NullDecimal) error {
	i, err := d.Index(line)
	if err != nil {
		return err
	}
	d.Items[i].EnteredQty = qty
	return nil
}

// SetPacking records the packing condition for a line. Allowed in both modes.
func (d *Draft) SetPacking(line int, p PackingCondition) error {
	if p != "" && !p.IsValid() {
		return fmt.Errorf("invalid packing condition %q", p)
	}
	i, err := d.Index(line)
	if err != nil {
		return err
	}
	d.Items[i].Packing = p
	return nil
}

// NextLineNo returns the line number the next appended item receives.
func (d *Draft) NextLineNo() int {
	next := 1
	for _, it := range d.Items {
		if it.LineNo >= next {
			next = it.LineNo + 1
		}
	}
	return next
}

// AppendItem adds a manual line and returns its line number.
func (d *Draft) AppendItem(it Item) (int, error) {
	if d.Mode == ModeReference {
		return 0, ErrReadOnly
	}
	if !d.Header.Kind.AllowsManual() {
		return 0, fmt.Errorf("%s: %w", d.Header.Kind, ErrReferenceRequired)
	}
	it.LineNo = d.NextLineNo()
	it.ReferenceQty = decimal.NullDecimal{}
	it.ReferenceUnit = ""
	it.BalanceQty = decimal.NullDecimal{}
	d.Items = append(d.Items, it)
	return it.LineNo, nil
}

// RemoveItem deletes a manual line. Remaining lines keep their numbers.
func (d *Draft) RemoveItem(line int) error {
	if d.Mode == ModeReference {
		return ErrReadOnly
	}
	i, err := d.Index(line)
	if err != nil {
		return err
	}
	d.Items = append(d.Items[:i], d.Items[i+1:]...)
	return nil
}

// SetMaterial fills a manual line from the material catalog.
func (d *Draft) SetMaterial(line int, m Material) error {
	if d.Mode == ModeReference {
		return ErrReadOnly
	}
	i, err := d.Index(line)
	if err != nil {
		return err
	}
	d.Items[i].MaterialCode = m.Code
	d.Items[i].MaterialDescription = m.Description
	d.Items[i].Unit = m.Unit
	return nil
}

// SetCounterpartyName sets the free-text vendor or customer.
func (d *Draft) SetCounterpartyName(name string) error {
	if d.Mode == ModeReference {
		return ErrReadOnly
	}
	return SetCounterpartyName(d.Header.Details, name)
}

// ApplyReference binds the draft to a reference document and replaces its
// lines with the ones fetched from it. The draft is in reference mode afterwards.
func (d *Draft) ApplyReference(number string, party Party, items []Item) error {
	details, err := BindReference(d.Header.Details, number, party)
	if err != nil {
		return err
	}
	d.Header.Details = details
	d.Items = CloneItems(items)
	d.Mode = ModeReference
	return nil
}

// ResetToManual drops the reference binding and every fetched line.
// Fields of the details that do not come from the reference are kept.
func (d *Draft) ResetToManual() {
	switch v := cloneDetails(d.Header.Details).(type) {
	case *POInward:
		v.PONumber, v.Vendor = "", Party{}
		d.Header.Details = v
	case *SubcontractInward:
		v.OrderNumber, v.Vendor = "", Party{}
		d.Header.Details = v
	case *BillingOutward:
		v.BillingDocument, v.Customer = "", Party{}
		d.Header.Details = v
	case nil:
		d.Header.Details = NewDetails(d.Header.Kind)
	default:
		d.Header.Details = v
	}
	d.Items = nil
	d.Mode = ModeManual
}

// HeaderPatch lists the header fields an operator may edit on a draft.
// Nil fields are left untouched.
type HeaderPatch struct {
	Vehicle        *Vehicle   `json:"vehicle,omitempty"`
	Remarks        *string    `json:"remarks,omitempty"`
	Counterparty   *string    `json:"counterparty,omitempty"`
	InvoiceNumber  *string    `json:"invoice_number,omitempty"`
	InvoiceDate    *time.Time `json:"invoice_date,omitempty"`
	ChallanNumber  *string    `json:"challan_number,omitempty"`
	Purpose        *string    `json:"purpose,omitempty"`
	ExpectedReturn *time.Time `json:"expected_return,omitempty"`
}

// ApplyHeaderPatch applies p to the draft header. Fields that do not exist
// on the draft's kind are rejected with a *ValidationError and nothing is
// applied.
func (d *Draft) ApplyHeaderPatch(p HeaderPatch) error {
	if p.Counterparty != nil && d.Mode == ModeReference {
		return ErrReadOnly
	}

	details := cloneDetails(d.Header.Details)
	var ve ValidationError
	notAllowed := func(field string) {
		ve.Add(field, CodeNotAllowed, fmt.Sprintf("not used by %s entries", d.Header.Kind))
	}

	if p.InvoiceNumber != nil || p.InvoiceDate != nil {
		if po, ok := details.(*POInward); ok {
			if p.InvoiceNumber != nil {
				po.InvoiceNumber = *p.InvoiceNumber
			}
			if p.InvoiceDate != nil {
				po.InvoiceDate = cloneTime(p.InvoiceDate)
			}
		} else {
			notAllowed("invoice_number")
		}
	}
	if p.ChallanNumber != nil {
		switch v := details.(type) {
		case *SubcontractInward:
			v.ChallanNumber = *p.ChallanNumber
		case *ManualInward:
			v.ChallanNumber = *p.ChallanNumber
		default:
			notAllowed("challan_number")
		}
	}
	if p.Purpose != nil {
		switch v := details.(type) {
		case *ReturnableOutward:
			v.Purpose = *p.Purpose
		case *NonReturnableOutward:
			v.Purpose = *p.Purpose
		default:
			notAllowed("purpose")
		}
	}
	if p.ExpectedReturn != nil {
		if v, ok := details.(*ReturnableOutward); ok {
			v.ExpectedReturn = cloneTime(p.ExpectedReturn)
		} else {
			notAllowed("expected_return")
		}
	}
	if p.Counterparty != nil {
		if err := SetCounterpartyName(details, *p.Counterparty); err != nil {
			return err
		}
	}
	if err := ve.Err(); err != nil {
		return err
	}

	d.Header.Details = details
	if p.Vehicle != nil {
		d.Header.Vehicle = *p.Vehicle
	}
	if p.Remarks != nil {
		d.Header.Remarks = *p.Remarks
	}
	return nil
}
