package export

import (
	"strconv"
	"time"

	"github.com/alfredjeanlab/gatepass/internal/model"
)

// RegisterColumns is the column layout of the gate register export.
var RegisterColumns = []Column{
	{"id", "Gate Entry"},
	{"plant", "Plant"},
	{"kind", "Type"},
	{"status", "Status"},
	{"vehicle", "Vehicle"},
	{"driver", "Driver"},
	{"party", "Party"},
	{"reference_kind", "Reference Type"},
	{"reference_number", "Reference"},
	{"check_in_at", "Check-in"},
	{"check_out_at", "Check-out"},
	{"line_no", "Line"},
	{"material_code", "Material"},
	{"material_description", "Description"},
	{"balance_qty", "Balance"},
	{"entered_qty", "Quantity"},
	{"unit", "Unit"},
	{"packing", "Packing"},
	{"created_by", "Created By"},
	{"cancel_reason", "Cancel Reason"},
}

// RegisterRows flattens entries to one row per line. Entries without lines
// produce a single row with the line columns empty.
func RegisterRows(entries []*model.Entry) []Row {
	var rows []Row
	for _, e := range entries {
		base := headerRow(&e.Header)
		if len(e.Items) == 0 {
			rows = append(rows, base)
			continue
		}
		for _, it := range e.Items {
			r := make(Row, len(RegisterColumns))
			for k, v := range base {
				r[k] = v
			}
			r["line_no"] = strconv.Itoa(it.LineNo)
			r["material_code"] = it.MaterialCode
			r["material_description"] = it.MaterialDescription
			if it.BalanceQty.Valid {
				r["balance_qty"] = it.BalanceQty.Decimal.String()
			}
			if it.EnteredQty.Valid {
				r["entered_qty"] = it.EnteredQty.Decimal.String()
			}
			r["unit"] = it.Unit
			r["packing"] = string(it.Packing)
			rows = append(rows, r)
		}
	}
	return rows
}

func headerRow(h *model.Header) Row {
	r := Row{
		"id":            h.ID,
		"plant":         h.Plant,
		"kind":          string(h.Kind),
		"status":        string(h.Status),
		"vehicle":       h.Vehicle.Number,
		"driver":        h.Vehicle.Driver,
		"party":         h.Counterparty().Name,
		"check_in_at":   h.CheckInAt.Format(time.DateTime),
		"created_by":    h.CreatedBy,
		"cancel_reason": h.CancelReason,
	}
	if rk := h.ReferenceKind(); rk != model.ReferenceNone {
		r["reference_kind"] = string(rk)
		r["reference_number"] = h.ReferenceNumber()
	}
	if h.CheckOutAt != nil {
		r["check_out_at"] = h.CheckOutAt.Format(time.DateTime)
	}
	return r
}
