package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/alfredjeanlab/gatepass/internal/lifecycle"
	"github.com/alfredjeanlab/gatepass/internal/model"
	"github.com/alfredjeanlab/gatepass/internal/paging"
	"github.com/alfredjeanlab/gatepass/internal/resolver"
)

const defaultItemsPageSize = 10

// draftView is the JSON shape of the open draft.
type draftView struct {
	Phase lifecycle.Phase `json:"phase"`
	Draft *model.Draft    `json:"draft"`
}

func (s *GateServer) writeDraft(w http.ResponseWriter, status int, c *lifecycle.Controller, d *model.Draft) {
	writeJSON(w, status, draftView{Phase: c.Phase(), Draft: d})
}

// newDraftRequest is the JSON body for POST /v1/drafts.
type newDraftRequest struct {
	Kind  model.DocumentKind `json:"kind"`
	Plant string             `json:"plant,omitempty"`
	Rows  int                `json:"rows,omitempty"` // blank manual rows to start with
}

// handleNewDraft handles POST /v1/drafts.
func (s *GateServer) handleNewDraft(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	var req newDraftRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Rows < 0 || req.Rows > 100 {
		writeErr(w, inputError("rows must be between 0 and 100"))
		return
	}
	if req.Rows > 0 && req.Kind.IsValid() && !req.Kind.AllowsManual() {
		writeErr(w, fmt.Errorf("%s: %w", req.Kind, model.ErrReferenceRequired))
		return
	}

	d, err := c.NewDraft(req.Kind, req.Plant)
	if err != nil {
		writeErr(w, err)
		return
	}
	if req.Rows > 0 {
		if d, err = c.Edit(func(d *model.Draft) error { return resolver.TemplateRows(d, req.Rows) }); err != nil {
			writeErr(w, err)
			return
		}
	}
	s.writeDraft(w, http.StatusCreated, c, d)
}

// handleGetDraft handles GET /v1/drafts/current.
func (s *GateServer) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	d := c.Draft()
	if d == nil {
		writeErr(w, lifecycle.ErrNoDraft)
		return
	}
	s.writeDraft(w, http.StatusOK, c, d)
}

// handleDiscardDraft handles DELETE /v1/drafts/current. Any call in flight
// is abandoned.
func (s *GateServer) handleDiscardDraft(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	c.Discard()
	w.WriteHeader(http.StatusNoContent)
}

// handlePatchHeader handles PATCH /v1/drafts/current/header.
func (s *GateServer) handlePatchHeader(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	var p model.HeaderPatch
	if !decodeBody(w, r, &p) {
		return
	}
	d, err := c.Edit(func(d *model.Draft) error { return d.ApplyHeaderPatch(p) })
	if err != nil {
		writeErr(w, err)
		return
	}
	s.writeDraft(w, http.StatusOK, c, d)
}

// fetchReferenceResponse is the JSON response for POST /v1/drafts/current/reference.
type fetchReferenceResponse struct {
	Resolution *resolver.Resolution `json:"resolution"`
	Draft      *model.Draft         `json:"draft"`
}

// handleFetchReference handles POST /v1/drafts/current/reference.
func (s *GateServer) handleFetchReference(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	var req struct {
		Number string `json:"number"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := c.FetchReference(r.Context(), req.Number)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fetchReferenceResponse{Resolution: res, Draft: c.Draft()})
}

// handleResetToManual handles POST /v1/drafts/current/manual.
func (s *GateServer) handleResetToManual(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	d, err := c.ResetToManual()
	if err != nil {
		writeErr(w, err)
		return
	}
	s.writeDraft(w, http.StatusOK, c, d)
}

// handleListItems handles GET /v1/drafts/current/items?page=&page_size=.
func (s *GateServer) handleListItems(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	d := c.Draft()
	if d == nil {
		writeErr(w, lifecycle.ErrNoDraft)
		return
	}
	page := intQuery(r, "page", 1)
	size := intQuery(r, "page_size", defaultItemsPageSize)
	writeJSON(w, http.StatusOK, paging.Slice(d.Items, page, size))
}

// handleAddItems handles POST /v1/drafts/current/items. The body may name
// how many blank rows to append; the default is one.
func (s *GateServer) handleAddItems(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	req := struct {
		Rows int `json:"rows"`
	}{Rows: 1}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Rows < 1 || req.Rows > 100 {
		writeErr(w, inputError("rows must be between 1 and 100"))
		return
	}
	d, err := c.Edit(func(d *model.Draft) error { return resolver.TemplateRows(d, req.Rows) })
	if err != nil {
		writeErr(w, err)
		return
	}
	s.writeDraft(w, http.StatusOK, c, d)
}

// itemPatch is the JSON body for PATCH /v1/drafts/current/items/{line}.
// An empty entered_qty clears the quantity.
type itemPatch struct {
	MaterialCode *string                 `json:"material_code,omitempty"`
	EnteredQty   *string                 `json:"entered_qty,omitempty"`
	Packing      *model.PackingCondition `json:"packing,omitempty"`
}

func lineParam(r *http.Request) (int, error) {
	n, err := strconv.Atoi(r.PathValue("line"))
	if err != nil || n < 1 {
		return 0, inputError(fmt.Sprintf("invalid line %q", r.PathValue("line")))
	}
	return n, nil
}

// handlePatchItem handles PATCH /v1/drafts/current/items/{line}. Every field
// is checked before anything is applied; a material code is then looked up
// in the plant's catalog ahead of the quantity and packing.
func (s *GateServer) handlePatchItem(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	line, err := lineParam(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	var p itemPatch
	if !decodeBody(w, r, &p) {
		return
	}

	if p.Packing != nil && *p.Packing != "" && !p.Packing.IsValid() {
		var ve model.ValidationError
		ve.Add(fmt.Sprintf("items[%d].packing", line), model.CodeInvalid, fmt.Sprintf("invalid value %q", *p.Packing))
		writeErr(w, &ve)
		return
	}
	var qty decimal.NullDecimal
	if p.EnteredQty != nil {
		if qty, err = model.QtyFromString(*p.EnteredQty); err != nil {
			var ve model.ValidationError
			ve.Add(fmt.Sprintf("items[%d].entered_qty", line), model.CodeInvalid, "not a number")
			writeErr(w, &ve)
			return
		}
	}
	if p.MaterialCode != nil {
		if _, err := c.ApplyMaterial(r.Context(), line, *p.MaterialCode); err != nil {
			writeErr(w, err)
			return
		}
	}
	d, err := c.Edit(func(d *model.Draft) error {
		if p.EnteredQty != nil {
			if err := d.SetEnteredQty(line, qty); err != nil {
				return err
			}
		}
		if p.Packing != nil {
			return d.SetPacking(line, *p.Packing)
		}
		return nil
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	s.writeDraft(w, http.StatusOK, c, d)
}

// handleRemoveItem handles DELETE /v1/drafts/current/items/{line}.
func (s *GateServer) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	line, err := lineParam(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	d, err := c.Edit(func(d *model.Draft) error { return d.RemoveItem(line) })
	if err != nil {
		writeErr(w, err)
		return
	}
	s.writeDraft(w, http.StatusOK, c, d)
}

// handleValidateDraft handles POST /v1/drafts/current/validate.
func (s *GateServer) handleValidateDraft(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	if err := c.Validate(); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "phase": c.Phase()})
}

// handleSubmitDraft handles POST /v1/drafts/current/submit. Drafts opened
// for change are saved; all others are created.
func (s *GateServer) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	d := c.Draft()
	if d == nil {
		writeErr(w, lifecycle.ErrNoDraft)
		return
	}

	var (
		res    *lifecycle.Result
		err    error
		status = http.StatusCreated
	)
	if d.Origin == model.OriginChange {
		res, err = c.Save(r.Context())
		status = http.StatusOK
	} else {
		res, err = c.Create(r.Context())
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, status, res)
}
