package model

// DocumentKind classifies a gate entry by direction and by what it is posted against.
type DocumentKind string

const (
	KindInwardPO             DocumentKind = "inward_po"
	KindInwardSubcontract    DocumentKind = "inward_subcontract"
	KindInwardManual         DocumentKind = "inward_manual"
	KindOutwardBilling       DocumentKind = "outward_billing"
	KindOutwardReturnable    DocumentKind = "outward_rgp"
	KindOutwardNonReturnable DocumentKind = "outward_nrgp"
)

// DocumentKinds lists every known kind in display order.
var DocumentKinds = []DocumentKind{
	KindInwardPO,
	KindInwardSubcontract,
	KindInwardManual,
	KindOutwardBilling,
	KindOutwardReturnable,
	KindOutwardNonReturnable,
}

// String returns the string representation of the kind.
func (k DocumentKind) String() string {
	return string(k)
}

// IsValid checks whether the kind is a known value.
func (k DocumentKind) IsValid() bool {
	switch k {
	case KindInwardPO, KindInwardSubcontract, KindInwardManual,
		KindOutwardBilling, KindOutwardReturnable, KindOutwardNonReturnable:
		return true
	}
	return false
}

// Inward reports whether the kind records material coming into the plant.
func (k DocumentKind) Inward() bool {
	switch k {
	case KindInwardPO, KindInwardSubcontract, KindInwardManual:
		return true
	}
	return false
}

// Screen returns the screen key used by the access catalog for this kind.
func (k DocumentKind) Screen() string {
	switch k {
	case KindInwardPO:
		return "inward.po"
	case KindInwardSubcontract:
		return "inward.subcontract"
	case KindInwardManual:
		return "inward.manual"
	case KindOutwardBilling:
		return "outward.billing"
	case KindOutwardReturnable:
		return "outward.rgp"
	case KindOutwardNonReturnable:
		return "outward.nrgp"
	}
	return ""
}

// RequiresItems reports whether a document of this kind needs at least one
// line item at commit time. Manual inward entries may record an empty vehicle.
func (k DocumentKind) RequiresItems() bool {
	return k.IsValid() && k != KindInwardManual
}

// ReferenceKind returns the kind of external document this kind posts against.
// Subcontract entries return ReferenceSubcontractOrder even though they may be
// kept in manual mode.
func (k DocumentKind) ReferenceKind() ReferenceKind {
	switch k {
	case KindInwardPO:
		return ReferencePurchaseOrder
	case KindInwardSubcontract:
		return ReferenceSubcontractOrder
	case KindOutwardBilling:
		return ReferenceBillingDocument
	}
	return ReferenceNone
}

// AllowsManual reports whether a document of this kind may be keyed in
// without a reference document. Subcontract returns can be toggled to manual.
func (k DocumentKind) AllowsManual() bool {
	return k.ReferenceKind() == ReferenceNone || k == KindInwardSubcontract
}

// ReferenceKind identifies the external document a gate entry is posted against.
type ReferenceKind string

const (
	ReferenceNone             ReferenceKind = "none"
	ReferencePurchaseOrder    ReferenceKind = "purchase_order"
	ReferenceSubcontractOrder ReferenceKind = "subcontract_order"
	ReferenceBillingDocument  ReferenceKind = "billing_document"
)

// String returns the string representation of the reference kind.
func (r ReferenceKind) String() string {
	return string(r)
}

// IsValid checks whether the reference kind is a known value.
func (r ReferenceKind) IsValid() bool {
	switch r {
	case ReferenceNone, ReferencePurchaseOrder, ReferenceSubcontractOrder, ReferenceBillingDocument:
		return true
	}
	return false
}

// Status represents the current state of a gate entry.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSaved     Status = "saved"
	StatusChanged   Status = "changed"
	StatusCancelled Status = "cancelled"
	StatusExited    Status = "exited"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSaved, StatusChanged, StatusCancelled, StatusExited:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusExited
}

// IsCommitted reports whether the document exists in the system of record
// and can still be changed, cancelled or exited.
func (s Status) IsCommitted() bool {
	return s == StatusSaved || s == StatusChanged
}

// PackingCondition records the state of the packing as observed at the gate.
type PackingCondition string

const (
	PackingGood          PackingCondition = "GOOD"
	PackingBad           PackingCondition = "BAD"
	PackingNotApplicable PackingCondition = "N/A"
)

// IsValid checks whether the packing condition is a known value.
// The empty value is not valid; it means the condition was not recorded.
func (p PackingCondition) IsValid() bool {
	switch p {
	case PackingGood, PackingBad, PackingNotApplicable:
		return true
	}
	return false
}

// Mode tells whether line items come from a reference document or are keyed in.
type Mode string

const (
	ModeManual    Mode = "manual"
	ModeReference Mode = "reference"
)
