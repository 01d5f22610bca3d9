package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alfredjeanlab/gatepass/internal/access"
	"github.com/alfredjeanlab/gatepass/internal/gateway/sandbox"
	"github.com/alfredjeanlab/gatepass/internal/model"
	"github.com/alfredjeanlab/gatepass/internal/server"
	"github.com/alfredjeanlab/gatepass/internal/session"
	"github.com/alfredjeanlab/gatepass/internal/store/memory"
)

// testHandler captures the incoming request details and returns a canned response.
type testHandler struct {
	method string
	path   string
	query  string
	body   string
	auth   string

	statusCode   int
	header       map[string]string
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.method = r.Method
	h.path = r.URL.Path
	h.query = r.URL.RawQuery
	h.auth = r.Header.Get("Authorization")
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		h.body = string(data)
	}
	w.Header().Set("Content-Type", "application/json")
	for k, v := range h.header {
		w.Header().Set(k, v)
	}
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if h.responseBody != "" {
		_, _ = w.Write([]byte(h.responseBody))
	}
}

func newTestClient(t *testing.T, h http.Handler, token string) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL+"/", token)
}

func TestHTTPClient_LoginStoresToken(t *testing.T) {
	h := &testHandler{statusCode: http.StatusCreated, responseBody: `{"token":"tok-1","session":{"id":"s1","user":"guard1","role":"Security","plant":"1000"},"screens":["inward.po"]}`}
	c := newTestClient(t, h, "")

	resp, err := c.Login(context.Background(), "guard1", "Security", "1000")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if h.method != http.MethodPost || h.path != "/v1/sessions" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(h.body), &body); err != nil || body["plant"] != "1000" {
		t.Errorf("body = %s", h.body)
	}
	if resp.Session.User != "guard1" || c.Token() != "tok-1" {
		t.Errorf("session=%+v token=%q", resp.Session, c.Token())
	}

	if _, err := c.Screens(context.Background()); err != nil {
		t.Fatalf("Screens: %v", err)
	}
	if h.auth != "Bearer tok-1" {
		t.Errorf("authorization = %q", h.auth)
	}
}

func TestHTTPClient_ListEntriesQuery(t *testing.T) {
	h := &testHandler{responseBody: `{"items":[],"page":2,"page_size":10,"total_pages":3,"total_items":25}`}
	c := newTestClient(t, h, "tok")

	w, err := c.ListEntries(context.Background(), &ListEntriesRequest{
		Kind:     []string{"inward_po", "inward_manual"},
		Status:   []string{"saved"},
		Search:   "MH12",
		Page:     2,
		PageSize: 10,
	})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if h.path != "/v1/entries" {
		t.Errorf("path = %q", h.path)
	}
	for _, want := range []string{"kind=inward_po%2Cinward_manual", "status=saved", "q=MH12", "page=2", "page_size=10"} {
		if !strings.Contains(h.query, want) {
			t.Errorf("query %q missing %q", h.query, want)
		}
	}
	if w.TotalItems != 25 || w.Page != 2 {
		t.Errorf("window = %+v", w)
	}
}

func TestHTTPClient_APIError(t *testing.T) {
	h := &testHandler{
		statusCode:   http.StatusUnprocessableEntity,
		responseBody: `{"error":"rejected","code":"server_rejected","messages":[{"type":"E","text":"PO 4500001234 is blocked"}]}`,
	}
	c := newTestClient(t, h, "tok")

	_, err := c.Submit(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Code != "server_rejected" {
		t.Errorf("api error = %+v", apiErr)
	}
	if len(apiErr.Messages) != 1 || apiErr.Messages[0].Text != "PO 4500001234 is blocked" {
		t.Errorf("messages = %+v", apiErr.Messages)
	}
}

func TestHTTPClient_APIErrorPlainBody(t *testing.T) {
	h := &testHandler{statusCode: http.StatusBadGateway, responseBody: "upstream down"}
	c := newTestClient(t, h, "")
	_, err := c.Health(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "upstream down" {
		t.Fatalf("err = %v", err)
	}
}

func TestHTTPClient_APIErrorFields(t *testing.T) {
	err := &APIError{StatusCode: 422, Fields: []model.FieldError{{Field: "vehicle.number", Message: "is required"}}}
	if got := err.Error(); got != "HTTP 422: vehicle.number: is required" {
		t.Errorf("Error() = %q", got)
	}
}

func TestHTTPClient_Download(t *testing.T) {
	h := &testHandler{
		header:       map[string]string{"Content-Disposition": `attachment; filename="gate_register_2026-03-02.csv"`},
		responseBody: "Gate Entry,Plant\n",
	}
	c := newTestClient(t, h, "tok")
	d, err := c.ExportEntries(context.Background(), &ListEntriesRequest{}, "csv")
	if err != nil {
		t.Fatalf("ExportEntries: %v", err)
	}
	if d.Filename != "gate_register_2026-03-02.csv" || string(d.Data) != "Gate Entry,Plant\n" {
		t.Errorf("download = %+v", d)
	}
	if h.query != "format=csv" {
		t.Errorf("query = %q", h.query)
	}
}

func TestHTTPClient_NoContent(t *testing.T) {
	h := &testHandler{statusCode: http.StatusNoContent}
	c := newTestClient(t, h, "tok")
	if err := c.DeleteRole(context.Background(), "Night Shift"); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	if h.method != http.MethodDelete || h.path != "/v1/roles/Night Shift" {
		t.Errorf("request = %s %s", h.method, h.path)
	}
}

// newLiveClient runs a real gate server on the sandbox gateway.
func newLiveClient(t *testing.T) *HTTPClient {
	t.Helper()
	st := memory.New()
	pol, err := access.New(st)
	if err != nil {
		t.Fatalf("access.New: %v", err)
	}
	sessions, err := session.NewManager(session.Config{Secret: []byte("k"), ValidRole: pol.Exists})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	srv, err := server.New(server.Options{
		Store:    st,
		Sessions: sessions,
		Policy:   pol,
		Gateway:  sandbox.NewSeeded(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	t.Cleanup(srv.Close)
	return newTestClient(t, srv.NewHTTPHandler(), "")
}

func TestHTTPClient_ManualInwardAgainstServer(t *testing.T) {
	c := newLiveClient(t)
	ctx := context.Background()

	if _, err := c.Login(ctx, "guard1", "Security", "1000"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := c.NewDraft(ctx, &NewDraftRequest{Kind: model.KindInwardManual, Rows: 1}); err != nil {
		t.Fatalf("NewDraft: %v", err)
	}
	vendor := "Walk-in supplier"
	vehicle := model.Vehicle{Number: "KA01XY9999"}
	if _, err := c.PatchHeader(ctx, model.HeaderPatch{Vehicle: &vehicle, Counterparty: &vendor}); err != nil {
		t.Fatalf("PatchHeader: %v", err)
	}
	code, qty, packing := "SC-501", "120.5", model.PackingNotApplicable
	v, err := c.PatchItem(ctx, 1, &ItemPatch{MaterialCode: &code, EnteredQty: &qty, Packing: &packing})
	if err != nil {
		t.Fatalf("PatchItem: %v", err)
	}
	if it := v.Draft.Items[0]; it.Unit != "KG" || it.EnteredQty.Decimal.String() != "120.5" {
		t.Errorf("line = %+v", it)
	}
	if err := c.Validate(ctx); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	res, err := c.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Entry.Header.ID == "" || res.Entry.Header.Status != model.StatusSaved {
		t.Fatalf("result = %+v", res.Entry.Header)
	}

	page, err := c.ListEntries(ctx, nil)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if page.TotalItems != 1 {
		t.Errorf("register holds %d entries, want 1", page.TotalItems)
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := c.CurrentSession(ctx); err == nil {
		t.Error("expected error after logout")
	}
}
