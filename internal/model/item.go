package model

import (
	"github.com/shopspring/decimal"
)

// Item is a single line of a gate entry.
//
// ReferenceQty, ReferenceUnit and BalanceQty are only present when the entry
// is posted against a reference document. BalanceQty is owned by the system
// of record and is never edited here. An EnteredQty that is not Valid means
// the quantity has not been keyed in yet.
type Item struct {
	LineNo              int                 `json:"line_no"`
	MaterialCode        string              `json:"material_code,omitempty"`
	MaterialDescription string              `json:"material_description,omitempty"`
	ReferenceQty        decimal.NullDecimal `json:"reference_qty"`
	ReferenceUnit       string              `json:"reference_unit,omitempty"`
	BalanceQty          decimal.NullDecimal `json:"balance_qty"`
	EnteredQty          decimal.NullDecimal `json:"entered_qty"`
	Unit                string              `json:"unit,omitempty"`
	Packing             PackingCondition    `json:"packing,omitempty"`
}

// Qty is shorthand for a present quantity.
func Qty(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(d)
}

// QtyFromString parses a quantity as keyed in by an operator.
// The empty string yields an empty (not Valid) quantity.
func QtyFromString(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return Qty(d), nil
}

// CloneItems returns a copy of items.
func CloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

// Material is a row of the plant material master.
type Material struct {
	Plant       string `json:"plant"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
}
