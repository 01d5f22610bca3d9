package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alfredjeanlab/gatepass/internal/model"
)

// newTestGateway creates an httptest.Server with the given handler and returns
// an HTTPGateway pointing at it. The server is closed when the test ends.
func newTestGateway(t *testing.T, handler http.HandlerFunc) *HTTPGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPGateway(srv.URL, "erp-token")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func testEntry() *model.Entry {
	return &model.Entry{
		Header: model.Header{
			Plant:     "1000",
			Kind:      model.KindInwardPO,
			Vehicle:   model.Vehicle{Number: "MH12AB1234"},
			Details:   &model.POInward{PONumber: "4500001234"},
			CheckInAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
			Status:    model.StatusDraft,
		},
		Items: []model.Item{{LineNo: 10, MaterialCode: "RM-100", EnteredQty: model.Qty(decimal.NewFromInt(4)), Packing: model.PackingGood}},
	}
}

func TestFetchReference(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/references/purchase_order/4500001234" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("plant"); got != "1000" {
			t.Errorf("plant = %q, want 1000", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer erp-token" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"counterparty": map[string]string{"code": "V100", "name": "Acme"},
			"items": []map[string]any{
				{"line_no": 10, "material_code": "RM-100", "quantity": "100", "unit": "EA", "balance": "40"},
			},
		})
	})

	ref, err := g.FetchReference(context.Background(), ReferenceRequest{Kind: model.ReferencePurchaseOrder, Number: "4500001234", Plant: "1000"})
	if err != nil {
		t.Fatalf("FetchReference: %v", err)
	}
	if ref.Counterparty.Name != "Acme" || len(ref.Lines) != 1 {
		t.Fatalf("reference = %+v", ref)
	}
	if !ref.Lines[0].Balance.Equal(decimal.NewFromInt(40)) {
		t.Errorf("balance = %s, want 40", ref.Lines[0].Balance)
	}
	if ref.Number != "4500001234" || ref.Plant != "1000" {
		t.Errorf("number/plant not defaulted from request: %+v", ref)
	}
}

func TestFetchReference_NotFound(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"messages": []Message{{Type: MessageError, Text: "Purchase order 4500009999 does not exist"}},
		})
	})

	_, err := g.FetchReference(context.Background(), ReferenceRequest{Kind: model.ReferencePurchaseOrder, Number: "4500009999"})
	if !errors.Is(err, ErrReferenceNotFound) {
		t.Fatalf("got %v, want ErrReferenceNotFound", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || len(nf.Messages) != 1 {
		t.Errorf("expected messages carried on NotFoundError, got %v", err)
	}
}

func TestCreateEntry_SendsIdempotencyKey(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/entries" {
			t.Errorf("%s %s, want POST /entries", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "key-1" {
			t.Errorf("Idempotency-Key = %q, want key-1", got)
		}
		var e model.Entry
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if _, ok := e.Header.Details.(*model.POInward); !ok {
			t.Errorf("details = %T, want *model.POInward", e.Header.Details)
		}
		writeJSON(w, http.StatusCreated, Response{
			DocumentNumber: "5000000001",
			Messages:       []Message{{Type: MessageSuccess, Text: "Gate entry 5000000001 created"}},
		})
	})

	resp, err := g.CreateEntry(context.Background(), testEntry(), "key-1")
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if resp.DocumentNumber != "5000000001" {
		t.Errorf("document number = %q", resp.DocumentNumber)
	}
}

func TestCreateEntry_ErrorMessagesReturnedAsResponse(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, Response{
			Messages: []Message{{Type: MessageError, Text: "Item 10: quantity exceeds open quantity"}},
		})
	})

	resp, err := g.CreateEntry(context.Background(), testEntry(), "k")
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if !HasErrors(resp.Messages) {
		t.Errorf("messages = %+v, want an E message", resp.Messages)
	}
}

func TestCreateEntry_ServerErrorWithoutMessages(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	})

	_, err := g.CreateEntry(context.Background(), testEntry(), "k")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("got %v, want *StatusError 502", err)
	}
}

func TestCreateEntry_MalformedBody(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "<html>ok</html>")
	})

	_, err := g.CreateEntry(context.Background(), testEntry(), "k")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("got %v, want ErrMalformedResponse", err)
	}
}

func TestCreateEntry_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	g := NewHTTPGateway(url, "")
	_, err := g.CreateEntry(context.Background(), testEntry(), "k")
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("got %v, want *NetworkError", err)
	}
}

func TestTimeout_IsNetworkError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	g := NewHTTPGateway(srv.URL, "", WithTimeout(50*time.Millisecond))
	_, err := g.RecordExit(context.Background(), ExitRequest{ID: "5000000001", CheckOutAt: time.Now()})
	var ne *NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("got %v, want *NetworkError", err)
	}
}

func TestFetchForChange(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/entries/5000000001":
			e := testEntry()
			e.Header.ID = "5000000001"
			e.Header.Status = model.StatusSaved
			writeJSON(w, http.StatusOK, e)
		case "/entries/5000000002":
			writeJSON(w, http.StatusOK, map[string]any{"header": map[string]any{"kind": "inward_po"}})
		case "/entries/5000000003":
			writeJSON(w, http.StatusConflict, map[string]any{
				"messages": []Message{{Type: MessageError, Text: "Entry is locked by user STORES01"}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	e, err := g.FetchForChange(ctx, "5000000001")
	if err != nil {
		t.Fatalf("FetchForChange: %v", err)
	}
	if e.Header.Status != model.StatusSaved || e.Header.ReferenceNumber() != "4500001234" {
		t.Errorf("entry header = %+v", e.Header)
	}

	if _, err := g.FetchForChange(ctx, "5000000002"); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("missing id: got %v, want ErrMalformedResponse", err)
	}
	var rej *RejectedError
	if _, err := g.FetchForChange(ctx, "5000000003"); !errors.As(err, &rej) || rej.Error() != "Entry is locked by user STORES01" {
		t.Errorf("locked: got %v, want *RejectedError with verbatim text", err)
	}
	if _, err := g.FetchForChange(ctx, "404"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("unknown: got %v, want ErrEntryNotFound", err)
	}
}

func TestCancelEntry_Body(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/entries/5000000001/cancel" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req CancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding: %v", err)
		}
		if req.Reason != "duplicate entry" || req.CancelledBy != "fin1" || !req.CancelledAt.Equal(at) {
			t.Errorf("request = %+v", req)
		}
		writeJSON(w, http.StatusOK, Response{Messages: []Message{{Type: MessageSuccess, Text: "cancelled"}}})
	})

	_, err := g.CancelEntry(context.Background(), CancelRequest{ID: "5000000001", Reason: "duplicate entry", CancelledBy: "fin1", CancelledAt: at})
	if err != nil {
		t.Fatalf("CancelEntry: %v", err)
	}
}

func TestFetchPrintable_DecodesBase64(t *testing.T) {
	pdf := []byte("%PDF-1.4 fake")
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/entries/5000000001/printable":
			writeJSON(w, http.StatusOK, map[string]string{
				"filename": "GE5000000001.pdf",
				"document": base64.StdEncoding.EncodeToString(pdf),
			})
		default:
			writeJSON(w, http.StatusOK, map[string]string{"document": "***not base64***"})
		}
	})

	p, err := g.FetchPrintable(context.Background(), "5000000001")
	if err != nil {
		t.Fatalf("FetchPrintable: %v", err)
	}
	if string(p.Data) != string(pdf) || p.Filename != "GE5000000001.pdf" {
		t.Errorf("printable = %+v", p)
	}
	if p.ContentType != "application/pdf" {
		t.Errorf("content type = %q, want sniffed application/pdf", p.ContentType)
	}

	if _, err := g.FetchPrintable(context.Background(), "5000000002"); !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("bad payload: got %v, want ErrMalformedResponse", err)
	}
}

func TestListMaterials(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/plants/1000/materials" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"materials": []model.Material{{Code: "RM-100", Description: "Grey iron casting", Unit: "EA"}},
		})
	})

	mats, err := g.ListMaterials(context.Background(), "1000")
	if err != nil {
		t.Fatalf("ListMaterials: %v", err)
	}
	if len(mats) != 1 || mats[0].Plant != "1000" {
		t.Errorf("materials = %+v", mats)
	}
}
