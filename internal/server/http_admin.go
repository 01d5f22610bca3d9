package server

import (
	"net/http"
	"strings"

	"github.com/alfredjeanlab/gatepass/internal/access"
	"github.com/alfredjeanlab/gatepass/internal/events"
	"github.com/alfredjeanlab/gatepass/internal/session"
)

const defaultMaterialsLimit = 20

// loginRequest is the JSON body for POST /v1/sessions.
type loginRequest struct {
	User  string `json:"user"`
	Role  string `json:"role"`
	Plant string `json:"plant"`
}

// loginResponse is returned by POST /v1/sessions.
type loginResponse struct {
	Token   string           `json:"token"`
	Session *session.Session `json:"session"`
	Screens []string         `json:"screens"`
}

// handleLogin handles POST /v1/sessions.
func (s *GateServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	switch {
	case strings.TrimSpace(req.User) == "":
		writeErr(w, inputError("user is required"))
		return
	case strings.TrimSpace(req.Plant) == "":
		writeErr(w, inputError("plant is required"))
		return
	}

	sess, token, err := s.sessions.Login(req.User, req.Role, req.Plant)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.recordAndPublish(r.Context(), events.TopicSessionStarted, "", sess.User, events.SessionStarted{
		SessionID: sess.ID,
		User:      sess.User,
		Role:      sess.Role,
		Plant:     sess.Plant,
	})
	writeJSON(w, http.StatusCreated, loginResponse{
		Token:   token,
		Session: sess,
		Screens: s.policy.VisibleScreens(sess.Role),
	})
}

// handleLogout handles DELETE /v1/sessions/current. The session's draft and
// any call in flight are abandoned.
func (s *GateServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	if sess == nil || !s.sessions.Logout(sess.ID) {
		writeErr(w, session.ErrNoSession)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCurrentSession handles GET /v1/sessions/current.
func (s *GateServer) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentSession(r))
}

// handleScreens handles GET /v1/screens.
func (s *GateServer) handleScreens(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"role":    sess.Role,
		"screens": s.policy.VisibleScreens(sess.Role),
	})
}

// handleMaterials handles GET /v1/materials?q=&limit=&plant=.
func (s *GateServer) handleMaterials(w http.ResponseWriter, r *http.Request) {
	plant := r.URL.Query().Get("plant")
	if plant == "" {
		plant = currentSession(r).Plant
	}
	mats, err := s.catalog.Search(r.Context(), plant, r.URL.Query().Get("q"), intQuery(r, "limit", defaultMaterialsLimit))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mats)
}

// handlePermissions handles GET /v1/permissions and returns the catalog.
func (s *GateServer) handlePermissions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, access.Catalog())
}

// handleListRoles handles GET /v1/roles.
func (s *GateServer) handleListRoles(w http.ResponseWriter, r *http.Request) {
	if err := s.policy.Authorize(currentSession(r), access.KeySettingsRoles); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.policy.Roles())
}

// handleSetRole handles PUT /v1/roles/{name} with {"permissions": [...]}.
func (s *GateServer) handleSetRole(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	if err := s.policy.Authorize(sess, access.KeySettingsRoles); err != nil {
		writeErr(w, err)
		return
	}
	var req struct {
		Permissions []string `json:"permissions"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	role, err := s.policy.SetRole(r.Context(), r.PathValue("name"), req.Permissions)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.recordAndPublish(r.Context(), events.TopicRoleUpdated, "", sess.User, events.RoleUpdated{Role: role})
	writeJSON(w, http.StatusOK, role)
}

// handleDeleteRole handles DELETE /v1/roles/{name}.
func (s *GateServer) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	sess := currentSession(r)
	if err := s.policy.Authorize(sess, access.KeySettingsRoles); err != nil {
		writeErr(w, err)
		return
	}
	name := r.PathValue("name")
	if err := s.policy.DeleteRole(r.Context(), name); err != nil {
		writeErr(w, err)
		return
	}
	s.recordAndPublish(r.Context(), events.TopicRoleDeleted, "", sess.User, events.RoleDeleted{Name: name})
	w.WriteHeader(http.StatusNoContent)
}
