package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alfredjeanlab/gatepass/internal/gateway"
	"github.com/alfredjeanlab/gatepass/internal/model"
)

var checkIn = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func poEntry(entered string) *model.Entry {
	return &model.Entry{
		Header: model.Header{
			Plant:     "1000",
			Kind:      model.KindInwardPO,
			Vehicle:   model.Vehicle{Number: "MH12AB1234"},
			Details:   &model.POInward{PONumber: "4500001234"},
			CheckInAt: checkIn,
			Status:    model.StatusDraft,
		},
		Items: []model.Item{{
			LineNo:     10,
			EnteredQty: model.Qty(decimal.RequireFromString(entered)),
			Packing:    model.PackingGood,
		}},
	}
}

func balance(t *testing.T, g *Gateway) decimal.Decimal {
	t.Helper()
	b, ok := g.Balance(model.ReferencePurchaseOrder, "4500001234", 10)
	if !ok {
		t.Fatal("reference line missing")
	}
	return b
}

func TestCreateEntry_ConsumesBalance(t *testing.T) {
	g := NewSeeded()
	ctx := context.Background()

	resp, err := g.CreateEntry(ctx, poEntry("15"), "k1")
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if resp.DocumentNumber != "5000000001" || gateway.HasErrors(resp.Messages) {
		t.Fatalf("response = %+v", resp)
	}
	if got := balance(t, g); !got.Equal(decimal.NewFromInt(25)) {
		t.Errorf("balance = %s, want 25", got)
	}

	e, ok := g.Entry("5000000001")
	if !ok || e.Header.Status != model.StatusSaved {
		t.Errorf("stored entry = %+v", e)
	}
}

func TestCreateEntry_IdempotentReplay(t *testing.T) {
	g := NewSeeded()
	ctx := context.Background()

	first, _ := g.CreateEntry(ctx, poEntry("5"), "same-key")
	second, _ := g.CreateEntry(ctx, poEntry("5"), "same-key")
	if first.DocumentNumber != second.DocumentNumber {
		t.Errorf("replay created %s, want %s", second.DocumentNumber, first.DocumentNumber)
	}
	if got := balance(t, g); !got.Equal(decimal.NewFromInt(35)) {
		t.Errorf("balance = %s, want 35 (consumed once)", got)
	}
}

func TestCreateEntry_OverBalanceRejected(t *testing.T) {
	g := NewSeeded()
	resp, err := g.CreateEntry(context.Background(), poEntry("41"), "k")
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if !gateway.HasErrors(resp.Messages) || resp.DocumentNumber != "" {
		t.Fatalf("response = %+v, want rejection", resp)
	}
	if got := balance(t, g); !got.Equal(decimal.NewFromInt(40)) {
		t.Errorf("balance = %s, want untouched 40", got)
	}
}

func TestCreateEntry_OpenVehicleWarning(t *testing.T) {
	g := NewSeeded()
	ctx := context.Background()
	g.CreateEntry(ctx, poEntry("1"), "a")
	resp, _ := g.CreateEntry(ctx, poEntry("1"), "b")
	if w := gateway.Texts(resp.Messages, gateway.MessageWarning); len(w) != 1 || !strings.Contains(w[0], "5000000001") {
		t.Errorf("warnings = %v", w)
	}
}

func TestChangeEntry_RebalancesAndKeepsCheckIn(t *testing.T) {
	g := NewSeeded()
	ctx := context.Background()
	g.CreateEntry(ctx, poEntry("30"), "k1")

	e, err := g.FetchForChange(ctx, "5000000001")
	if err != nil {
		t.Fatalf("FetchForChange: %v", err)
	}
	if !e.Items[0].BalanceQty.Decimal.Equal(decimal.NewFromInt(40)) {
		t.Errorf("balance seen by change = %s, want 40 (open 10 + held 30)", e.Items[0].BalanceQty.Decimal)
	}

	e.Items[0].EnteredQty = model.Qty(decimal.NewFromInt(40))
	e.Header.CheckInAt = checkIn.Add(time.Hour)
	resp, err := g.ChangeEntry(ctx, e, "k2")
	if err != nil || gateway.HasErrors(resp.Messages) {
		t.Fatalf("ChangeEntry: %v %+v", err, resp)
	}
	if got := balance(t, g); !got.IsZero() {
		t.Errorf("balance = %s, want 0", got)
	}
	stored, _ := g.Entry("5000000001")
	if stored.Header.Status != model.StatusChanged || !stored.Header.CheckInAt.Equal(checkIn) {
		t.Errorf("stored header = %+v", stored.Header)
	}
}

func TestCancelEntry_RestoresBalance(t *testing.T) {
	g := NewSeeded()
	ctx := context.Background()
	g.CreateEntry(ctx, poEntry("10"), "k1")

	resp, _ := g.CancelEntry(ctx, gateway.CancelRequest{ID: "5000000001", Reason: "duplicate entry", CancelledBy: "fin1", CancelledAt: checkIn})
	if gateway.HasErrors(resp.Messages) {
		t.Fatalf("cancel rejected: %+v", resp)
	}
	if got := balance(t, g); !got.Equal(decimal.NewFromInt(40)) {
		t.Errorf("balance = %s, want restored 40", got)
	}

	resp, _ = g.CancelEntry(ctx, gateway.CancelRequest{ID: "5000000001", Reason: "again", CancelledAt: checkIn})
	if !gateway.HasErrors(resp.Messages) {
		t.Error("second cancel should be rejected")
	}
}

func TestCancelEntry_RestoresBalanceForSlashedNumber(t *testing.T) {
	g := NewSeeded()
	ctx := context.Background()
	g.AddReference(gateway.Reference{
		Kind:   model.ReferenceSubcontractOrder,
		Number: "SC/2026/17",
		Plant:  "1000",
		Lines:  []gateway.ReferenceLine{{LineNo: 1, MaterialCode: "SC-501", Quantity: decimal.NewFromInt(50), Unit: "KG", Balance: decimal.NewFromInt(50)}},
	})
	e := &model.Entry{
		Header: model.Header{
			Plant:     "1000",
			Kind:      model.KindInwardSubcontract,
			Vehicle:   model.Vehicle{Number: "MH12AB1234"},
			Details:   &model.SubcontractInward{OrderNumber: "SC/2026/17"},
			CheckInAt: checkIn,
			Status:    model.StatusDraft,
		},
		Items: []model.Item{{LineNo: 1, EnteredQty: model.Qty(decimal.NewFromInt(20)), Packing: model.PackingGood}},
	}
	resp, err := g.CreateEntry(ctx, e, "k-slash")
	if err != nil || gateway.HasErrors(resp.Messages) {
		t.Fatalf("CreateEntry: %v %+v", err, resp)
	}
	if b, _ := g.Balance(model.ReferenceSubcontractOrder, "SC/2026/17", 1); !b.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("balance after create = %s, want 30", b)
	}

	resp, _ = g.CancelEntry(ctx, gateway.CancelRequest{ID: resp.DocumentNumber, Reason: "wrong order", CancelledBy: "fin1", CancelledAt: checkIn})
	if gateway.HasErrors(resp.Messages) {
		t.Fatalf("cancel rejected: %+v", resp)
	}
	if b, _ := g.Balance(model.ReferenceSubcontractOrder, "SC/2026/17", 1); !b.Equal(decimal.NewFromInt(50)) {
		t.Errorf("balance after cancel = %s, want restored 50", b)
	}
}

func TestRecordExit_Once(t *testing.T) {
	g := NewSeeded()
	ctx := context.Background()
	g.CreateEntry(ctx, poEntry("1"), "k1")

	out := checkIn.Add(3 * time.Hour)
	resp, _ := g.RecordExit(ctx, gateway.ExitRequest{ID: "5000000001", CheckOutAt: out})
	if gateway.HasErrors(resp.Messages) {
		t.Fatalf("exit rejected: %+v", resp)
	}
	resp, _ = g.RecordExit(ctx, gateway.ExitRequest{ID: "5000000001", CheckOutAt: out.Add(time.Hour)})
	if !gateway.HasErrors(resp.Messages) {
		t.Error("second exit should be rejected")
	}
	e, _ := g.Entry("5000000001")
	if e.Header.CheckOutAt == nil || !e.Header.CheckOutAt.Equal(out) {
		t.Errorf("check-out = %v, want %v", e.Header.CheckOutAt, out)
	}
}

func TestFetchReference_UnknownPlant(t *testing.T) {
	g := NewSeeded()
	_, err := g.FetchReference(context.Background(), gateway.ReferenceRequest{Kind: model.ReferencePurchaseOrder, Number: "4500001234", Plant: "2000"})
	if !errors.Is(err, gateway.ErrReferenceNotFound) {
		t.Errorf("got %v, want ErrReferenceNotFound", err)
	}
}

func TestFailNextAndDelay(t *testing.T) {
	g := NewSeeded()
	boom := &gateway.NetworkError{Op: OpCreateEntry, Err: errors.New("connection reset")}
	g.FailNext(OpCreateEntry, boom)
	if _, err := g.CreateEntry(context.Background(), poEntry("1"), "k"); !errors.Is(err, boom) {
		t.Fatalf("got %v, want injected error", err)
	}
	if got := balance(t, g); !got.Equal(decimal.NewFromInt(40)) {
		t.Errorf("balance = %s, want untouched 40", got)
	}

	g.Delay = func(ctx context.Context, op string) error {
		<-ctx.Done()
		return ctx.Err()
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var ne *gateway.NetworkError
	if _, err := g.ListMaterials(ctx, "1000"); !errors.As(err, &ne) || !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want NetworkError wrapping context.Canceled", err)
	}
	if g.Calls(OpCreateEntry) != 1 || g.Calls(OpListMaterials) != 1 {
		t.Errorf("calls = %d create, %d materials", g.Calls(OpCreateEntry), g.Calls(OpListMaterials))
	}
}

func TestFetchPrintable(t *testing.T) {
	g := NewSeeded()
	ctx := context.Background()
	g.CreateEntry(ctx, poEntry("2"), "k")

	p, err := g.FetchPrintable(ctx, "5000000001")
	if err != nil {
		t.Fatalf("FetchPrintable: %v", err)
	}
	if !strings.HasPrefix(string(p.Data), "GATE ENTRY 5000000001") {
		t.Errorf("document = %q", p.Data)
	}
	if _, err := g.FetchPrintable(ctx, "nope"); !errors.Is(err, gateway.ErrEntryNotFound) {
		t.Errorf("got %v, want ErrEntryNotFound", err)
	}
}
