package quantity

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alfredjeanlab/gatepass/internal/model"
)

func qty(s string) decimal.NullDecimal {
	return model.Qty(decimal.RequireFromString(s))
}

func line(entered, balance string) model.Item {
	it := model.Item{LineNo: 1, MaterialCode: "RM-1", Packing: model.PackingGood}
	if entered != "" {
		it.EnteredQty = qty(entered)
	}
	if balance != "" {
		it.BalanceQty = qty(balance)
	}
	return it
}

func hasField(err error, field, code string) bool {
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	for _, fe := range ve.Errors {
		if fe.Field == field && fe.Code == code {
			return true
		}
	}
	return false
}

func TestValidate_ReferenceBalance(t *testing.T) {
	tests := []struct {
		name    string
		entered string
		balance string
		wantErr bool
	}{
		{"equal to balance", "12.5", "12.5", false},
		{"below balance", "3", "12.5", false},
		{"zero", "0", "12.5", false},
		{"one over balance", "13.5", "12.5", true},
		{"fraction over balance", "12.501", "12.5", true},
		{"zero balance", "1", "0", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(model.ModeReference, []model.Item{line(tt.entered, tt.balance)})
			if tt.wantErr {
				if !errors.Is(err, model.ErrBalanceExceeded) {
					t.Errorf("got %v, want ErrBalanceExceeded", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestValidate_BalanceBoundary checks entered == balance is always accepted
// and entered == balance + 1 always rejected across a range of balances.
func TestValidate_BalanceBoundary(t *testing.T) {
	for b := int64(0); b <= 500; b += 7 {
		bal := decimal.NewFromInt(b).Div(decimal.NewFromInt(4))
		at := model.Item{LineNo: 1, Packing: model.PackingNotApplicable, BalanceQty: model.Qty(bal), EnteredQty: model.Qty(bal)}
		if err := Validate(model.ModeReference, []model.Item{at}); err != nil {
			t.Fatalf("balance %s: entered == balance rejected: %v", bal, err)
		}
		over := at
		over.EnteredQty = model.Qty(bal.Add(decimal.NewFromInt(1)))
		if err := Validate(model.ModeReference, []model.Item{over}); !errors.Is(err, model.ErrBalanceExceeded) {
			t.Fatalf("balance %s: entered == balance+1 accepted", bal)
		}
	}
}

func TestValidate_ManualIgnoresBalance(t *testing.T) {
	items := []model.Item{line("100", "1"), line("0", ""), line("7.25", "")}
	if err := Validate(model.ModeManual, items); err != nil {
		t.Errorf("manual mode should ignore balance: %v", err)
	}
}

func TestValidate_EmptyAndNegative(t *testing.T) {
	for _, mode := range []model.Mode{model.ModeManual, model.ModeReference} {
		err := Validate(mode, []model.Item{line("", "5"), line("-1", "5")})
		if !hasField(err, "items[0].entered_qty", model.CodeRequired) {
			t.Errorf("%s: expected required error on row 0, got %v", mode, err)
		}
		if !hasField(err, "items[1].entered_qty", model.CodeNegative) {
			t.Errorf("%s: expected negative error on row 1, got %v", mode, err)
		}
	}
}

func TestValidate_PackingRequired(t *testing.T) {
	it := line("1", "5")
	it.Packing = ""
	for _, mode := range []model.Mode{model.ModeManual, model.ModeReference} {
		if err := Validate(mode, []model.Item{it}); !hasField(err, "items[0].packing", model.CodeRequired) {
			t.Errorf("%s: expected packing error, got %v", mode, err)
		}
	}
}

func TestValidate_AggregatesAllRows(t *testing.T) {
	bad := line("9", "5")
	bad.Packing = ""
	items := []model.Item{line("1", "5"), bad, line("", "5")}

	var ve *model.ValidationError
	if !errors.As(Validate(model.ModeReference, items), &ve) {
		t.Fatal("expected *ValidationError")
	}
	if len(ve.Errors) != 3 {
		t.Errorf("got %d errors, want 3: %+v", len(ve.Errors), ve.Errors)
	}
}

func TestValidate_ReferenceLineWithoutBalance(t *testing.T) {
	err := Validate(model.ModeReference, []model.Item{line("1", "")})
	if !hasField(err, "items[0].balance_qty", model.CodeRequired) {
		t.Errorf("expected balance_qty error, got %v", err)
	}
}
