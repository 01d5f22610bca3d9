package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/gatepass/internal/access"
	"github.com/alfredjeanlab/gatepass/internal/lifecycle"
	"github.com/alfredjeanlab/gatepass/internal/model"
	"github.com/alfredjeanlab/gatepass/internal/paging"
	"github.com/alfredjeanlab/gatepass/internal/session"
)

// HTTPClient implements GateClient using the gate HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ GateClient = (*HTTPClient)(nil)

// NewHTTPClient creates a client targeting baseURL (e.g.
// "http://localhost:8080"). A non-empty token is sent as a Bearer token.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Token returns the session token the client sends.
func (c *HTTPClient) Token() string { return c.token }

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Sessions ---

// Login starts a session and makes the client use its token.
func (c *HTTPClient) Login(ctx context.Context, user, role, plant string) (*LoginResponse, error) {
	body := map[string]string{"user": user, "role": role, "plant": plant}
	var resp LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions", body, &resp); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp, nil
}

func (c *HTTPClient) Logout(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/v1/sessions/current", nil, nil); err != nil {
		return err
	}
	c.token = ""
	return nil
}

func (c *HTTPClient) CurrentSession(ctx context.Context) (*session.Session, error) {
	var s session.Session
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sessions/current", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) Screens(ctx context.Context) ([]string, error) {
	var resp struct {
		Screens []string `json:"screens"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/screens", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Screens, nil
}

// --- Drafts ---

func (c *HTTPClient) draftCall(ctx context.Context, method, path string, body any) (*DraftView, error) {
	var v DraftView
	if err := c.doJSON(ctx, method, path, body, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *HTTPClient) NewDraft(ctx context.Context, req *NewDraftRequest) (*DraftView, error) {
	return c.draftCall(ctx, http.MethodPost, "/v1/drafts", req)
}

func (c *HTTPClient) Draft(ctx context.Context) (*DraftView, error) {
	return c.draftCall(ctx, http.MethodGet, "/v1/drafts/current", nil)
}

func (c *HTTPClient) DiscardDraft(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/drafts/current", nil, nil)
}

func (c *HTTPClient) PatchHeader(ctx context.Context, p model.HeaderPatch) (*DraftView, error) {
	return c.draftCall(ctx, http.MethodPatch, "/v1/drafts/current/header", p)
}

func (c *HTTPClient) FetchReference(ctx context.Context, number string) (*FetchReferenceResponse, error) {
	var resp FetchReferenceResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/drafts/current/reference", map[string]string{"number": number}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) ResetToManual(ctx context.Context) (*DraftView, error) {
	return c.draftCall(ctx, http.MethodPost, "/v1/drafts/current/manual", nil)
}

func (c *HTTPClient) Items(ctx context.Context, page, size int) (*paging.Window[model.Item], error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if size > 0 {
		q.Set("page_size", strconv.Itoa(size))
	}
	var w paging.Window[model.Item]
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/v1/drafts/current/items", q), nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (c *HTTPClient) AddRows(ctx context.Context, n int) (*DraftView, error) {
	return c.draftCall(ctx, http.MethodPost, "/v1/drafts/current/items", map[string]int{"rows": n})
}

func (c *HTTPClient) PatchItem(ctx context.Context, line int, p *ItemPatch) (*DraftView, error) {
	return c.draftCall(ctx, http.MethodPatch, fmt.Sprintf("/v1/drafts/current/items/%d", line), p)
}

func (c *HTTPClient) RemoveItem(ctx context.Context, line int) (*DraftView, error) {
	return c.draftCall(ctx, http.MethodDelete, fmt.Sprintf("/v1/drafts/current/items/%d", line), nil)
}

func (c *HTTPClient) Validate(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/drafts/current/validate", nil, nil)
}

func (c *HTTPClient) Submit(ctx context.Context) (*lifecycle.Result, error) {
	var res lifecycle.Result
	if err := c.doJSON(ctx, http.MethodPost, "/v1/drafts/current/submit", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// --- Entries ---

func (r *ListEntriesRequest) values() url.Values {
	q := url.Values{}
	if r == nil {
		return q
	}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("plant", r.Plant)
	set("kind", strings.Join(r.Kind, ","))
	set("status", strings.Join(r.Status, ","))
	set("from", r.From)
	set("to", r.To)
	set("q", r.Search)
	set("sort", r.Sort)
	if r.Page > 0 {
		q.Set("page", strconv.Itoa(r.Page))
	}
	if r.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(r.PageSize))
	}
	return q
}

func (c *HTTPClient) ListEntries(ctx context.Context, req *ListEntriesRequest) (*paging.Window[*model.Entry], error) {
	var w paging.Window[*model.Entry]
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/v1/entries", req.values()), nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (c *HTTPClient) ExportEntries(ctx context.Context, req *ListEntriesRequest, format string) (*Download, error) {
	q := req.values()
	q.Set("format", format)
	return c.download(ctx, withQuery("/v1/entries/export", q))
}

func (c *HTTPClient) GetEntry(ctx context.Context, id string) (*model.Entry, error) {
	var e model.Entry
	if err := c.doJSON(ctx, http.MethodGet, "/v1/entries/"+url.PathEscape(id), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *HTTPClient) GetEvents(ctx context.Context, id string) ([]*model.Event, error) {
	var evts []*model.Event
	if err := c.doJSON(ctx, http.MethodGet, "/v1/entries/"+url.PathEscape(id)+"/events", nil, &evts); err != nil {
		return nil, err
	}
	return evts, nil
}

func (c *HTTPClient) Print(ctx context.Context, id string) (*Download, error) {
	return c.download(ctx, "/v1/entries/"+url.PathEscape(id)+"/print")
}

func (c *HTTPClient) Change(ctx context.Context, id string) (*DraftView, error) {
	return c.draftCall(ctx, http.MethodPost, "/v1/entries/"+url.PathEscape(id)+"/change", nil)
}

func (c *HTTPClient) Reuse(ctx context.Context, id string) (*DraftView, error) {
	return c.draftCall(ctx, http.MethodPost, "/v1/entries/"+url.PathEscape(id)+"/reuse", nil)
}

func (c *HTTPClient) Cancel(ctx context.Context, id, reason string, confirmed bool) (*lifecycle.Result, error) {
	body := map[string]any{"reason": reason, "confirmed": confirmed}
	var res lifecycle.Result
	if err := c.doJSON(ctx, http.MethodPost, "/v1/entries/"+url.PathEscape(id)+"/cancel", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) Exit(ctx context.Context, id string, at *time.Time) (*lifecycle.Result, error) {
	body := map[string]any{}
	if at != nil {
		body["at"] = at
	}
	var res lifecycle.Result
	if err := c.doJSON(ctx, http.MethodPost, "/v1/entries/"+url.PathEscape(id)+"/exit", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// --- Administration ---

func (c *HTTPClient) Materials(ctx context.Context, query string, limit int) ([]model.Material, error) {
	q := url.Values{}
	if query != "" {
		q.Set("q", query)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var mats []model.Material
	if err := c.doJSON(ctx, http.MethodGet, withQuery("/v1/materials", q), nil, &mats); err != nil {
		return nil, err
	}
	return mats, nil
}

func (c *HTTPClient) Permissions(ctx context.Context) ([]access.Permission, error) {
	var perms []access.Permission
	if err := c.doJSON(ctx, http.MethodGet, "/v1/permissions", nil, &perms); err != nil {
		return nil, err
	}
	return perms, nil
}

func (c *HTTPClient) Roles(ctx context.Context) ([]model.Role, error) {
	var roles []model.Role
	if err := c.doJSON(ctx, http.MethodGet, "/v1/roles", nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func (c *HTTPClient) SetRole(ctx context.Context, name string, permissions []string) (*model.Role, error) {
	if permissions == nil {
		permissions = []string{}
	}
	var role model.Role
	if err := c.doJSON(ctx, http.MethodPut, "/v1/roles/"+url.PathEscape(name), map[string][]string{"permissions": permissions}, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

func (c *HTTPClient) DeleteRole(ctx context.Context, name string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/roles/"+url.PathEscape(name), nil, nil)
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Field+": "+f.Message)
		}
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do performs the request and returns the body of a successful response.
// Responses with status >= 400 become *APIError.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return nil, nil, apiErr
	}
	return resp, respBody, nil
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	resp, respBody, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNoContent || result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *HTTPClient) download(ctx context.Context, path string) (*Download, error) {
	resp, data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	d := &Download{ContentType: resp.Header.Get("Content-Type"), Data: data}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		d.Filename = params["filename"]
	}
	return d, nil
}
