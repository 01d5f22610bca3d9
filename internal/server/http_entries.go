package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alfredjeanlab/gatepass/internal/access"
	"github.com/alfredjeanlab/gatepass/internal/export"
	"github.com/alfredjeanlab/gatepass/internal/model"
	"github.com/alfredjeanlab/gatepass/internal/paging"
)

const (
	defaultEntriesPageSize = 25
	maxEntriesPageSize     = 200
	exportName             = "gate_register"
)

// parseTimeParam accepts RFC 3339 timestamps and plain dates.
func parseTimeParam(key, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, inputError(fmt.Sprintf("invalid %s %q: want RFC 3339 or YYYY-MM-DD", key, v))
}

func splitParam(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// entryFilter builds a register filter from query params. The plant
// defaults to the session's plant.
func entryFilter(r *http.Request) (model.EntryFilter, error) {
	q := r.URL.Query()
	f := model.EntryFilter{
		Plant:  q.Get("plant"),
		Search: q.Get("q"),
		Sort:   q.Get("sort"),
	}
	if f.Plant == "" {
		if sess := currentSession(r); sess != nil {
			f.Plant = sess.Plant
		}
	}
	for _, k := range splitParam(q.Get("kind")) {
		kind := model.DocumentKind(k)
		if !kind.IsValid() {
			return f, inputError(fmt.Sprintf("invalid kind %q", k))
		}
		f.Kind = append(f.Kind, kind)
	}
	for _, st := range splitParam(q.Get("status")) {
		status := model.Status(st)
		if !status.IsValid() {
			return f, inputError(fmt.Sprintf("invalid status %q", st))
		}
		f.Status = append(f.Status, status)
	}
	var err error
	if f.From, err = parseTimeParam("from", q.Get("from")); err != nil {
		return f, err
	}
	if f.To, err = parseTimeParam("to", q.Get("to")); err != nil {
		return f, err
	}
	return f, nil
}

// handleListEntries handles GET /v1/entries. Pages past the end are
// clamped to the last page.
func (s *GateServer) handleListEntries(w http.ResponseWriter, r *http.Request) {
	if err := s.policy.Authorize(currentSession(r), access.KeyDisplayView); err != nil {
		writeErr(w, err)
		return
	}
	f, err := entryFilter(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	page := intQuery(r, "page", 1)
	size := intQuery(r, "page_size", defaultEntriesPageSize)
	if size < 1 || size > maxEntriesPageSize {
		size = defaultEntriesPageSize
	}
	if page < 1 {
		page = 1
	}

	f.Limit, f.Offset = size, (page-1)*size
	entries, total, err := s.store.ListEntries(r.Context(), f)
	if err != nil {
		writeErr(w, err)
		return
	}
	if clamped, offset := paging.Clamp(total, page, size); clamped != page {
		page, f.Offset = clamped, offset
		if entries, total, err = s.store.ListEntries(r.Context(), f); err != nil {
			writeErr(w, err)
			return
		}
	}
	if entries == nil {
		entries = []*model.Entry{}
	}

	pages := (total + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	writeJSON(w, http.StatusOK, paging.Window[*model.Entry]{
		Items:      entries,
		Page:       page,
		PageSize:   size,
		TotalPages: pages,
		TotalItems: total,
	})
}

// handleExportEntries handles GET /v1/entries/export?format=csv|xlsx with the
// same filters as the list.
func (s *GateServer) handleExportEntries(w http.ResponseWriter, r *http.Request) {
	if err := s.policy.Authorize(currentSession(r), access.KeyReportsExport); err != nil {
		writeErr(w, err)
		return
	}
	f, err := entryFilter(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	entries, _, err := s.store.ListEntries(r.Context(), f)
	if err != nil {
		writeErr(w, err)
		return
	}
	rows := export.RegisterRows(entries)
	now := time.Now()

	var buf bytes.Buffer
	var filename, contentType string
	switch format := r.URL.Query().Get("format"); format {
	case "", "csv":
		filename, contentType = export.Filename(exportName, now), "text/csv; charset=utf-8"
		err = export.WriteCSV(&buf, export.RegisterColumns, rows)
	case "xlsx":
		filename = export.XLSXFilename(exportName, now)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = export.WriteXLSX(&buf, "Register", export.RegisterColumns, rows)
	default:
		writeErr(w, inputError(fmt.Sprintf("unsupported format %q", format)))
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleGetEntry handles GET /v1/entries/{id}. The entry is read from the
// system of record, not the local register.
func (s *GateServer) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	e, err := c.Display(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handleGetEvents handles GET /v1/entries/{id}/events.
func (s *GateServer) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	if err := s.policy.Authorize(currentSession(r), access.KeyDisplayView); err != nil {
		writeErr(w, err)
		return
	}
	evts, err := s.store.GetEvents(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	if evts == nil {
		evts = []*model.Event{}
	}
	writeJSON(w, http.StatusOK, evts)
}

// handlePrintEntry handles GET /v1/entries/{id}/print and streams the
// rendered document.
func (s *GateServer) handlePrintEntry(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	p, err := c.Print(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	contentType := p.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	w.Header().Set("Content-Type", contentType)
	if p.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", p.Filename))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(p.Data)
}

// handleChangeEntry handles POST /v1/entries/{id}/change. It opens a draft
// editing the entry as currently held by the system of record.
func (s *GateServer) handleChangeEntry(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	d, err := c.FetchForChange(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	s.writeDraft(w, http.StatusOK, c, d)
}

// handleReuseEntry handles POST /v1/entries/{id}/reuse. The new draft copies
// the entry; the source is not touched.
func (s *GateServer) handleReuseEntry(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	d, err := c.Reuse(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	s.writeDraft(w, http.StatusCreated, c, d)
}

// cancelRequest is the JSON body for POST /v1/entries/{id}/cancel.
type cancelRequest struct {
	Reason    string `json:"reason"`
	Confirmed bool   `json:"confirmed"`
}

// handleCancelEntry handles POST /v1/entries/{id}/cancel.
func (s *GateServer) handleCancelEntry(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := c.Cancel(r.Context(), r.PathValue("id"), req.Reason, req.Confirmed)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleExitEntry handles POST /v1/entries/{id}/exit. The check-out time
// defaults to now.
func (s *GateServer) handleExitEntry(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	var req struct {
		At *time.Time `json:"at,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	at := time.Now()
	if req.At != nil {
		at = *req.At
	}
	res, err := c.RecordExit(r.Context(), r.PathValue("id"), at)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

