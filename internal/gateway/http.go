package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alfredjeanlab/gatepass/internal/model"
)

// DefaultTimeout bounds every call made by HTTPGateway.
const DefaultTimeout = 30 * time.Second

// HTTPGateway implements Gateway as JSON over HTTP.
type HTTPGateway struct {
	baseURL    string
	token      string
	httpClient *http.Client
	tracer     trace.Tracer
}

// Option configures an HTTPGateway.
type Option func(*HTTPGateway)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *HTTPGateway) { g.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *HTTPGateway) { g.httpClient = c }
}

// WithTracer sets the tracer used for per-call spans.
func WithTracer(t trace.Tracer) Option {
	return func(g *HTTPGateway) { g.tracer = t }
}

// NewHTTPGateway creates a gateway targeting baseURL. When token is
// non-empty, it is sent as a bearer token on every request.
func NewHTTPGateway(baseURL, token string, opts ...Option) *HTTPGateway {
	g := &HTTPGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		tracer:     otel.Tracer("github.com/alfredjeanlab/gatepass/internal/gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *HTTPGateway) FetchReference(ctx context.Context, req ReferenceRequest) (ref *Reference, err error) {
	ctx, span := g.startSpan(ctx, "FetchReference",
		attribute.String("gate.reference.kind", req.Kind.String()),
		attribute.String("gate.reference.number", req.Number),
		attribute.String("gate.plant", req.Plant))
	defer func() { endSpan(span, err) }()

	path := "/references/" + url.PathEscape(req.Kind.String()) + "/" + url.PathEscape(req.Number) +
		"?plant=" + url.QueryEscape(req.Plant)
	status, body, err := g.do(ctx, "fetch reference", http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}

	var out Reference
	if status == http.StatusNotFound {
		_ = json.Unmarshal(body, &out)
		return nil, &NotFoundError{Kind: req.Kind, Number: req.Number, Messages: out.Messages}
	}
	if status >= 400 {
		return nil, readFailure("fetch reference", status, body)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("fetch reference: %w: %v", ErrMalformedResponse, err)
	}
	if out.Kind == "" {
		out.Kind = req.Kind
	}
	if out.Number == "" {
		out.Number = req.Number
	}
	if out.Plant == "" {
		out.Plant = req.Plant
	}
	return &out, nil
}

func (g *HTTPGateway) CreateEntry(ctx context.Context, entry *model.Entry, idempotencyKey string) (resp *Response, err error) {
	ctx, span := g.startSpan(ctx, "CreateEntry",
		attribute.String("gate.kind", entry.Header.Kind.String()),
		attribute.String("gate.plant", entry.Header.Plant))
	defer func() { endSpan(span, err) }()

	status, body, err := g.do(ctx, "create entry", http.MethodPost, "/entries", idempotencyKey, entry)
	if err != nil {
		return nil, err
	}
	return decodeResponse("create entry", status, body)
}

func (g *HTTPGateway) FetchForChange(ctx context.Context, id string) (entry *model.Entry, err error) {
	ctx, span := g.startSpan(ctx, "FetchForChange", attribute.String("gate.entry.id", id))
	defer func() { endSpan(span, err) }()

	status, body, err := g.do(ctx, "fetch entry", http.MethodGet, "/entries/"+url.PathEscape(id), "", nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if status >= 400 {
		return nil, readFailure("fetch entry", status, body)
	}

	var out model.Entry
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("fetch entry: %w: %v", ErrMalformedResponse, err)
	}
	if out.Header.ID == "" || !out.Header.Kind.IsValid() || !out.Header.Status.IsValid() {
		return nil, fmt.Errorf("fetch entry: %w: missing id, kind or status", ErrMalformedResponse)
	}
	return &out, nil
}

func (g *HTTPGateway) ChangeEntry(ctx context.Context, entry *model.Entry, idempotencyKey string) (resp *Response, err error) {
	ctx, span := g.startSpan(ctx, "ChangeEntry", attribute.String("gate.entry.id", entry.Header.ID))
	defer func() { endSpan(span, err) }()

	status, body, err := g.do(ctx, "change entry", http.MethodPut, "/entries/"+url.PathEscape(entry.Header.ID), idempotencyKey, entry)
	if err != nil {
		return nil, err
	}
	return decodeResponse("change entry", status, body)
}

func (g *HTTPGateway) CancelEntry(ctx context.Context, req CancelRequest) (resp *Response, err error) {
	ctx, span := g.startSpan(ctx, "CancelEntry", attribute.String("gate.entry.id", req.ID))
	defer func() { endSpan(span, err) }()

	status, body, err := g.do(ctx, "cancel entry", http.MethodPost, "/entries/"+url.PathEscape(req.ID)+"/cancel", "", req)
	if err != nil {
		return nil, err
	}
	return decodeResponse("cancel entry", status, body)
}

func (g *HTTPGateway) RecordExit(ctx context.Context, req ExitRequest) (resp *Response, err error) {
	ctx, span := g.startSpan(ctx, "RecordExit", attribute.String("gate.entry.id", req.ID))
	defer func() { endSpan(span, err) }()

	status, body, err := g.do(ctx, "record exit", http.MethodPost, "/entries/"+url.PathEscape(req.ID)+"/exit", "", req)
	if err != nil {
		return nil, err
	}
	return decodeResponse("record exit", status, body)
}

// printableWire is the transport form of Printable.
type printableWire struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Document    string `json:"document"`
}

func (g *HTTPGateway) FetchPrintable(ctx context.Context, id string) (p *Printable, err error) {
	ctx, span := g.startSpan(ctx, "FetchPrintable", attribute.String("gate.entry.id", id))
	defer func() { endSpan(span, err) }()

	status, body, err := g.do(ctx, "fetch printable", http.MethodGet, "/entries/"+url.PathEscape(id)+"/printable", "", nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	if status >= 400 {
		return nil, readFailure("fetch printable", status, body)
	}
	var w printableWire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("fetch printable: %w: %v", ErrMalformedResponse, err)
	}
	return DecodePrintable(id, w.Filename, w.ContentType, w.Document)
}

// DecodePrintable decodes a base64 document payload.
func DecodePrintable(id, filename, contentType, document string) (*Printable, error) {
	if document == "" {
		return nil, fmt.Errorf("fetch printable: %w: empty document", ErrMalformedResponse)
	}
	data, err := base64.StdEncoding.DecodeString(document)
	if err != nil {
		return nil, fmt.Errorf("fetch printable: %w: %v", ErrMalformedResponse, err)
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if filename == "" {
		filename = id + ".pdf"
	}
	return &Printable{ID: id, Filename: filename, ContentType: contentType, Data: data}, nil
}

func (g *HTTPGateway) ListMaterials(ctx context.Context, plant string) (mats []model.Material, err error) {
	ctx, span := g.startSpan(ctx, "ListMaterials", attribute.String("gate.plant", plant))
	defer func() { endSpan(span, err) }()

	status, body, err := g.do(ctx, "list materials", http.MethodGet, "/plants/"+url.PathEscape(plant)+"/materials", "", nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, readFailure("list materials", status, body)
	}
	var out struct {
		Materials []model.Material `json:"materials"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("list materials: %w: %v", ErrMalformedResponse, err)
	}
	for i := range out.Materials {
		if out.Materials[i].Plant == "" {
			out.Materials[i].Plant = plant
		}
	}
	return out.Materials, nil
}

// --- internal helpers ---

func (g *HTTPGateway) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return g.tracer.Start(ctx, "gateway."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// do performs the request and returns the status code and body. Transport
// failures come back as *NetworkError.
func (g *HTTPGateway) do(ctx context.Context, op, method, path, idempotencyKey string, body any) (int, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: marshaling request body: %w", op, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: creating request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return 0, nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &NetworkError{Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}
	return resp.StatusCode, respBody, nil
}

// decodeResponse decodes the reply to a commit call. A body carrying
// messages is returned as-is whatever the status, so the caller sees the
// system's own texts.
func decodeResponse(op string, status int, body []byte) (*Response, error) {
	var resp Response
	decodeErr := json.Unmarshal(body, &resp)
	if decodeErr == nil && len(resp.Messages) > 0 {
		return &resp, nil
	}
	if status >= 400 {
		return nil, &StatusError{StatusCode: status, Message: strings.TrimSpace(string(body))}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrMalformedResponse, decodeErr)
	}
	return &resp, nil
}

// readFailure turns a failed read call into a *RejectedError when the body
// carries E messages, or a *StatusError otherwise.
func readFailure(op string, status int, body []byte) error {
	var r struct {
		Messages []Message `json:"messages"`
		Error    string    `json:"error"`
	}
	if json.Unmarshal(body, &r) == nil {
		if HasErrors(r.Messages) {
			return &RejectedError{Op: op, Messages: r.Messages}
		}
		if r.Error != "" {
			return &StatusError{StatusCode: status, Message: r.Error}
		}
	}
	return &StatusError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}
