package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/alfredjeanlab/gatepass/internal/access"
	"github.com/alfredjeanlab/gatepass/internal/catalog"
	"github.com/alfredjeanlab/gatepass/internal/gateway"
	"github.com/alfredjeanlab/gatepass/internal/lifecycle"
	"github.com/alfredjeanlab/gatepass/internal/lock"
	"github.com/alfredjeanlab/gatepass/internal/model"
	"github.com/alfredjeanlab/gatepass/internal/resolver"
	"github.com/alfredjeanlab/gatepass/internal/session"
	"github.com/alfredjeanlab/gatepass/internal/store"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// Requests other than GET /v1/health and POST /v1/sessions must carry a
// session token as Authorization: Bearer <token>.
func (s *GateServer) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", s.handleLogin)
	mux.HandleFunc("DELETE /v1/sessions/current", s.handleLogout)
	mux.HandleFunc("GET /v1/sessions/current", s.handleCurrentSession)
	mux.HandleFunc("GET /v1/screens", s.handleScreens)

	mux.HandleFunc("POST /v1/drafts", s.handleNewDraft)
	mux.HandleFunc("GET /v1/drafts/current", s.handleGetDraft)
	mux.HandleFunc("DELETE /v1/drafts/current", s.handleDiscardDraft)
	mux.HandleFunc("PATCH /v1/drafts/current/header", s.handlePatchHeader)
	mux.HandleFunc("POST /v1/drafts/current/reference", s.handleFetchReference)
	mux.HandleFunc("POST /v1/drafts/current/manual", s.handleResetToManual)
	mux.HandleFunc("GET /v1/drafts/current/items", s.handleListItems)
	mux.HandleFunc("POST /v1/drafts/current/items", s.handleAddItems)
	mux.HandleFunc("PATCH /v1/drafts/current/items/{line}", s.handlePatchItem)
	mux.HandleFunc("DELETE /v1/drafts/current/items/{line}", s.handleRemoveItem)
	mux.HandleFunc("POST /v1/drafts/current/validate", s.handleValidateDraft)
	mux.HandleFunc("POST /v1/drafts/current/submit", s.handleSubmitDraft)

	mux.HandleFunc("GET /v1/entries", s.handleListEntries)
	mux.HandleFunc("GET /v1/entries/export", s.handleExportEntries)
	mux.HandleFunc("GET /v1/entries/{id}", s.handleGetEntry)
	mux.HandleFunc("GET /v1/entries/{id}/events", s.handleGetEvents)
	mux.HandleFunc("GET /v1/entries/{id}/print", s.handlePrintEntry)
	mux.HandleFunc("POST /v1/entries/{id}/change", s.handleChangeEntry)
	mux.HandleFunc("POST /v1/entries/{id}/reuse", s.handleReuseEntry)
	mux.HandleFunc("POST /v1/entries/{id}/cancel", s.handleCancelEntry)
	mux.HandleFunc("POST /v1/entries/{id}/exit", s.handleExitEntry)

	mux.HandleFunc("GET /v1/materials", s.handleMaterials)
	mux.HandleFunc("GET /v1/roles", s.handleListRoles)
	mux.HandleFunc("PUT /v1/roles/{name}", s.handleSetRole)
	mux.HandleFunc("DELETE /v1/roles/{name}", s.handleDeleteRole)
	mux.HandleFunc("GET /v1/permissions", s.handlePermissions)

	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return AuthMiddleware(s.sessions, mux)
}

// handleHealth handles GET /v1/health.
func (s *GateServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// currentSession returns the session AuthMiddleware attached to the request.
func currentSession(r *http.Request) *session.Session {
	sess, _ := session.FromContext(r.Context())
	return sess
}

// sessionController returns the controller of the request's session.
func (s *GateServer) sessionController(w http.ResponseWriter, r *http.Request) (*lifecycle.Controller, bool) {
	sess := currentSession(r)
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "no session")
		return nil, false
	}
	c, err := s.controller(sess)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return c, true
}

// decodeBody decodes a JSON request body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// intQuery parses an integer query parameter, returning def when absent or invalid.
func intQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// errorBody is the JSON shape of a failed request.
type errorBody struct {
	Error     string              `json:"error"`
	Code      string              `json:"code,omitempty"`
	Fields    []model.FieldError  `json:"fields,omitempty"`
	Messages  []gateway.Message   `json:"messages,omitempty"`
	Malformed bool                `json:"malformed,omitempty"`
}

// writeErr maps a domain error to an HTTP status and writes it. Texts from
// the system of record are passed through unchanged.
func writeErr(w http.ResponseWriter, err error) {
	status, body := classify(err)
	writeJSON(w, status, body)
}

func classify(err error) (int, errorBody) {
	body := errorBody{Error: err.Error()}

	var (
		ve   *model.ValidationError
		sr   *lifecycle.ServerRejected
		ne   *gateway.NetworkError
		nf   *gateway.NotFoundError
		te   *lifecycle.TransitionError
		ie   inputError
		rjct *gateway.RejectedError
		se   *gateway.StatusError
	)
	switch {
	case errors.As(err, &ie):
		return http.StatusBadRequest, body
	case errors.As(err, &ve):
		body.Code = "validation"
		if errors.Is(err, model.ErrBalanceExceeded) {
			body.Code = "balance_exceeded"
		}
		body.Fields = ve.Errors
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &sr):
		body.Messages = sr.Messages
		body.Malformed = sr.Malformed
		if sr.Malformed {
			body.Code = "malformed_response"
			return http.StatusBadGateway, body
		}
		body.Code = "server_rejected"
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &nf):
		body.Code = "reference_not_found"
		body.Messages = nf.Messages
		return http.StatusNotFound, body
	case errors.As(err, &rjct):
		body.Code = "server_rejected"
		body.Messages = rjct.Messages
		return http.StatusUnprocessableEntity, body
	case errors.As(err, &ne):
		body.Code = "network"
		return http.StatusBadGateway, body
	case errors.Is(err, gateway.ErrMalformedResponse):
		body.Code = "malformed_response"
		body.Malformed = true
		return http.StatusBadGateway, body
	case errors.As(err, &se):
		body.Code = "gateway_status"
		return http.StatusBadGateway, body
	case errors.As(err, &te):
		body.Code = "transition"
		return http.StatusConflict, body
	case errors.Is(err, access.ErrForbidden):
		body.Code = "forbidden"
		return http.StatusForbidden, body
	case errors.Is(err, session.ErrInvalidToken), errors.Is(err, session.ErrNoSession):
		body.Code = "unauthenticated"
		return http.StatusUnauthorized, body
	case errors.Is(err, session.ErrUnknownRole):
		body.Code = "unknown_role"
		return http.StatusBadRequest, body
	case errors.Is(err, lock.ErrLocked):
		body.Code = "locked"
		return http.StatusLocked, body
	case errors.Is(err, lifecycle.ErrBusy):
		body.Code = "busy"
		return http.StatusConflict, body
	case errors.Is(err, lifecycle.ErrAbandoned):
		body.Code = "abandoned"
		return http.StatusConflict, body
	case errors.Is(err, lifecycle.ErrDraftOpen):
		body.Code = "draft_open"
		return http.StatusConflict, body
	case errors.Is(err, lifecycle.ErrTerminal), errors.Is(err, lifecycle.ErrAlreadyExited),
		errors.Is(err, lifecycle.ErrWrongOrigin), errors.Is(err, model.ErrReadOnly),
		errors.Is(err, model.ErrReferenceRequired):
		body.Code = "conflict"
		return http.StatusConflict, body
	case errors.Is(err, lifecycle.ErrNoDraft):
		body.Code = "no_draft"
		return http.StatusNotFound, body
	case errors.Is(err, model.ErrLineNotFound), errors.Is(err, store.ErrNotFound),
		errors.Is(err, gateway.ErrEntryNotFound), errors.Is(err, catalog.ErrUnknownMaterial),
		errors.Is(err, access.ErrRoleNotFound):
		body.Code = "not_found"
		return http.StatusNotFound, body
	case errors.Is(err, resolver.ErrNoReference), errors.Is(err, access.ErrUnknownPermission):
		return http.StatusBadRequest, body
	case errors.Is(err, access.ErrAdminLocked), errors.Is(err, access.ErrBuiltinRole):
		body.Code = "conflict"
		return http.StatusConflict, body
	}
	return http.StatusInternalServerError, body
}
