// Package quantity validates the keyed-in quantities and packing conditions
// of a document's lines before it is committed.
package quantity

import (
	"fmt"

	"github.com/alfredjeanlab/gatepass/internal/model"
)

// Validate checks every line and returns all failures in one
// *model.ValidationError, or nil when the document may be committed.
//
// In reference mode the entered quantity must be present, non-negative and
// no more than the line's balance. In manual mode it must be present and
// non-negative. The packing condition is required in both modes.
func Validate(mode model.Mode, items []model.Item) error {
	var ve model.ValidationError
	for i, it := range items {
		field := model.ItemField(i, "entered_qty")
		switch {
		case !it.EnteredQty.Valid:
			ve.Add(field, model.CodeRequired, "is required")
		case it.EnteredQty.Decimal.IsNegative():
			ve.Add(field, model.CodeNegative, "must not be negative")
		case mode == model.ModeReference:
			if !it.BalanceQty.Valid {
				ve.Add(model.ItemField(i, "balance_qty"), model.CodeRequired, "reference line has no balance")
			} else if it.EnteredQty.Decimal.GreaterThan(it.BalanceQty.Decimal) {
				ve.Add(field, model.CodeBalanceExceeded,
					fmt.Sprintf("%s exceeds balance %s", it.EnteredQty.Decimal, it.BalanceQty.Decimal))
			}
		}

		if it.Packing == "" {
			ve.Add(model.ItemField(i, "packing"), model.CodeRequired, "is required")
		} else if !it.Packing.IsValid() {
			ve.Add(model.ItemField(i, "packing"), model.CodeInvalid, fmt.Sprintf("invalid value %q", it.Packing))
		}
	}
	return ve.Err()
}
