package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Party identifies a vendor or customer.
type Party struct {
	Code string `json:"code,omitempty"`
	Name string `json:"name,omitempty"`
}

// Reference points at the external document an entry is posted against.
type Reference struct {
	Kind   ReferenceKind `json:"kind"`
	Number string        `json:"number,omitempty"`
}

// NoReference is the reference of entries keyed in without an external document.
var NoReference = Reference{Kind: ReferenceNone}

// Vehicle holds the vehicle, driver and transporter attributes of an entry.
type Vehicle struct {
	Number      string `json:"number" validate:"required,max=20"`
	Driver      string `json:"driver,omitempty" validate:"max=80"`
	DriverPhone string `json:"driver_phone,omitempty"`
	Transporter string `json:"transporter,omitempty" validate:"max=80"`
	LRNumber    string `json:"lr_number,omitempty" validate:"max=30"`
}

// Details carries the fields that differ per document kind.
type Details interface {
	Kind() DocumentKind
	Reference() Reference
	Counterparty() Party
}

// POInward is a delivery against a purchase order.
type POInward struct {
	PONumber      string     `json:"po_number,omitempty"`
	Vendor        Party      `json:"vendor"`
	InvoiceNumber string     `json:"invoice_number,omitempty"`
	InvoiceDate   *time.Time `json:"invoice_date,omitempty"`
}

func (d *POInward) Kind() DocumentKind { return KindInwardPO }
func (d *POInward) Counterparty() Party { return d.Vendor }
func (d *POInward) Reference() Reference {
	if d.PONumber == "" {
		return NoReference
	}
	return Reference{Kind: ReferencePurchaseOrder, Number: d.PONumber}
}

// SubcontractInward is material returning from a subcontractor. It may be
// posted against a subcontract order or keyed in manually.
type SubcontractInward struct {
	OrderNumber   string `json:"order_number,omitempty"`
	Vendor        Party  `json:"vendor"`
	ChallanNumber string `json:"challan_number,omitempty"`
}

func (d *SubcontractInward) Kind() DocumentKind { return KindInwardSubcontract }
func (d *SubcontractInward) Counterparty() Party { return d.Vendor }
func (d *SubcontractInward) Reference() Reference {
	if d.OrderNumber == "" {
		return NoReference
	}
	return Reference{Kind: ReferenceSubcontractOrder, Number: d.OrderNumber}
}

// ManualInward is a delivery with no external reference.
type ManualInward struct {
	VendorName    string `json:"vendor_name,omitempty"`
	ChallanNumber string `json:"challan_number,omitempty"`
}

func (d *ManualInward) Kind() DocumentKind   { return KindInwardManual }
func (d *ManualInward) Reference() Reference { return NoReference }
func (d *ManualInward) Counterparty() Party  { return Party{Name: d.VendorName} }

// BillingOutward is a dispatch against a billing document.
type BillingOutward struct {
	BillingDocument string `json:"billing_document,omitempty"`
	Customer        Party  `json:"customer"`
}

func (d *BillingOutward) Kind() DocumentKind { return KindOutwardBilling }
func (d *BillingOutward) Counterparty() Party { return d.Customer }
func (d *BillingOutward) Reference() Reference {
	if d.BillingDocument == "" {
		return NoReference
	}
	return Reference{Kind: ReferenceBillingDocument, Number: d.BillingDocument}
}

// ReturnableOutward is a returnable gate pass (RGP): the material is expected back.
type ReturnableOutward struct {
	Party          Party      `json:"party"`
	Purpose        string     `json:"purpose,omitempty"`
	ExpectedReturn *time.Time `json:"expected_return,omitempty"`
}

func (d *ReturnableOutward) Kind() DocumentKind   { return KindOutwardReturnable }
func (d *ReturnableOutward) Reference() Reference { return NoReference }
func (d *ReturnableOutward) Counterparty() Party  { return d.Party }

// NonReturnableOutward is a non-returnable gate pass (NRGP).
type NonReturnableOutward struct {
	Party   Party  `json:"party"`
	Purpose string `json:"purpose,omitempty"`
}

func (d *NonReturnableOutward) Kind() DocumentKind   { return KindOutwardNonReturnable }
func (d *NonReturnableOutward) Reference() Reference { return NoReference }
func (d *NonReturnableOutward) Counterparty() Party  { return d.Party }

// NewDetails returns empty details for the given kind, or nil for unknown kinds.
func NewDetails(k DocumentKind) Details {
	switch k {
	case KindInwardPO:
		return &POInward{}
	case KindInwardSubcontract:
		return &SubcontractInward{}
	case KindInwardManual:
		return &ManualInward{}
	case KindOutwardBilling:
		return &BillingOutward{}
	case KindOutwardReturnable:
		return &ReturnableOutward{}
	case KindOutwardNonReturnable:
		return &NonReturnableOutward{}
	}
	return nil
}

// BindReference returns details pointing at the given reference number and
// counterparty. It fails for kinds that are never posted against a reference.
func BindReference(d Details, number string, party Party) (Details, error) {
	switch v := d.(type) {
	case *POInward:
		c := *v
		c.PONumber, c.Vendor = number, party
		return &c, nil
	case *SubcontractInward:
		c := *v
		c.OrderNumber, c.Vendor = number, party
		return &c, nil
	case *BillingOutward:
		c := *v
		c.BillingDocument, c.Customer = number, party
		return &c, nil
	}
	if d == nil {
		return nil, fmt.Errorf("bind reference: no details")
	}
	return nil, fmt.Errorf("bind reference: kind %s has no reference document", d.Kind())
}

// SetCounterpartyName sets the free-text counterparty of details keyed in
// without a reference.
func SetCounterpartyName(d Details, name string) error {
	switch v := d.(type) {
	case *ManualInward:
		v.VendorName = name
	case *SubcontractInward:
		v.Vendor = Party{Name: name}
	case *ReturnableOutward:
		v.Party = Party{Name: name}
	case *NonReturnableOutward:
		v.Party = Party{Name: name}
	case *POInward:
		v.Vendor = Party{Name: name}
	case *BillingOutward:
		v.Customer = Party{Name: name}
	default:
		return fmt.Errorf("set counterparty: unsupported details %T", d)
	}
	return nil
}

// cloneDetails returns a shallow copy of d so drafts never share details with
// the entry they were loaded from.
func cloneDetails(d Details) Details {
	switch v := d.(type) {
	case *POInward:
		c := *v
		return &c
	case *SubcontractInward:
		c := *v
		return &c
	case *ManualInward:
		c := *v
		return &c
	case *BillingOutward:
		c := *v
		return &c
	case *ReturnableOutward:
		c := *v
		return &c
	case *NonReturnableOutward:
		c := *v
		return &c
	}
	return nil
}

// Header is the gate entry document header.
type Header struct {
	ID        string       `json:"id,omitempty"`
	Plant     string       `json:"plant" validate:"required,alphanum,max=4"`
	Kind      DocumentKind `json:"kind"`
	Vehicle   Vehicle      `json:"vehicle"`
	Details   Details      `json:"-"`
	CheckInAt time.Time    `json:"check_in_at"`
	// CheckOutAt is set once, by the exit action.
	CheckOutAt *time.Time `json:"check_out_at,omitempty"`
	Status     Status     `json:"status"`
	Remarks    string     `json:"remarks,omitempty" validate:"max=255"`

	CreatedBy    string     `json:"created_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ChangedBy    string     `json:"changed_by,omitempty"`
	ChangedAt    *time.Time `json:"changed_at,omitempty"`
	CancelledBy  string     `json:"cancelled_by,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
}

// ReferenceKind returns the kind of reference the header is posted against.
func (h *Header) ReferenceKind() ReferenceKind {
	if h.Details == nil {
		return ReferenceNone
	}
	return h.Details.Reference().Kind
}

// ReferenceNumber returns the reference document number, if any.
func (h *Header) ReferenceNumber() string {
	if h.Details == nil {
		return ""
	}
	return h.Details.Reference().Number
}

// Counterparty returns the vendor or customer of the entry.
func (h *Header) Counterparty() Party {
	if h.Details == nil {
		return Party{}
	}
	return h.Details.Counterparty()
}

// Clone returns a deep copy of the header.
func (h *Header) Clone() Header {
	c := *h
	c.Details = cloneDetails(h.Details)
	c.CheckOutAt = cloneTime(h.CheckOutAt)
	c.ChangedAt = cloneTime(h.ChangedAt)
	c.CancelledAt = cloneTime(h.CancelledAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// headerJSON is the wire shape of Header; details are discriminated by kind.
type headerJSON struct {
	headerAlias
	Reference Reference       `json:"reference"`
	Party     Party           `json:"party"`
	Details   json.RawMessage `json:"details,omitempty"`
}

type headerAlias Header

// MarshalJSON encodes the header with its kind-specific details and the
// derived reference and counterparty.
func (h Header) MarshalJSON() ([]byte, error) {
	out := headerJSON{
		headerAlias: headerAlias(h),
		Reference:   NoReference,
		Party:       h.Counterparty(),
	}
	if h.Details != nil {
		out.Reference = h.Details.Reference()
		data, err := json.Marshal(h.Details)
		if err != nil {
			return nil, fmt.Errorf("encoding %s details: %w", h.Kind, err)
		}
		out.Details = data
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the header, picking the details type from the kind.
func (h *Header) UnmarshalJSON(data []byte) error {
	var in headerJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*h = Header(in.headerAlias)
	d := NewDetails(h.Kind)
	if d == nil {
		h.Details = nil
		return nil
	}
	if len(in.Details) > 0 && string(in.Details) != "null" {
		if err := json.Unmarshal(in.Details, d); err != nil {
			return fmt.Errorf("decoding %s details: %w", h.Kind, err)
		}
	}
	h.Details = d
	return nil
}
