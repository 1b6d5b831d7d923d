package backup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"walletflow/internal/core"
	"walletflow/internal/kv"
	"walletflow/internal/kv/memory"
)

var exportTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestExportDefaults(t *testing.T) {
	svc := NewService(memory.New(), nil)

	out, err := svc.Export(context.Background(), exportTime)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	want := `{
  "transactions": [],
  "budget": {
    "income": 0,
    "expense": 0
  },
  "exportDate": "2024-05-01T12:00:00.000Z"
}`
	if string(out) != want {
		t.Errorf("unexpected export:\n%s\nwant:\n%s", out, want)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := memory.New()
	txs := []core.Transaction{
		{ID: "a", Description: "Salary", Amount: core.NewMoney(2500), Type: core.Income, Category: "salary", Date: core.NewDate(2024, 4, 1)},
		{ID: "b", Description: "Coffee", Amount: core.NewMoney(4.5), Type: core.Expense, Category: "food", Date: core.NewDate(2024, 4, 2)},
	}
	if err := kv.SetJSON(ctx, src, kv.KeyTransactions, txs); err != nil {
		t.Fatal(err)
	}
	if err := kv.SetJSON(ctx, src, kv.KeyBudget, core.Budget{Income: core.NewMoney(5000), Expense: core.NewMoney(3000)}); err != nil {
		t.Fatal(err)
	}

	out, err := NewService(src, nil).Export(ctx, exportTime)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := memory.New()
	if err := NewService(dst, nil).Import(ctx, out); err != nil {
		t.Fatalf("import: %v", err)
	}

	for _, key := range []string{kv.KeyTransactions, kv.KeyBudget} {
		want, _, _ := src.Get(ctx, key)
		got, ok, _ := dst.Get(ctx, key)
		if !ok || string(got) != string(want) {
			t.Errorf("%s differs after round trip:\n%s\n%s", key, want, got)
		}
	}
}

func TestImportRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		empty bool
	}{
		{"blank", "   \n", true},
		{"malformed", `{"transactions": [`, false},
		{"not an object", `[1,2,3]`, false},
		{"missing budget", `{"transactions": []}`, false},
		{"missing transactions", `{"budget": {"income": 1, "expense": 1}}`, false},
		{"null transactions", `{"transactions": null, "budget": {"income": 1, "expense": 1}}`, false},
		{"bad amount", `{"transactions": [{"id":"a","amount":"abc"}], "budget": {"income": 1, "expense": 1}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			err := NewService(store, nil).Import(context.Background(), []byte(tt.input))

			if tt.empty {
				if !errors.Is(err, ErrEmptyImport) {
					t.Fatalf("expected ErrEmptyImport, got %v", err)
				}
			} else {
				var fe *FormatError
				if !errors.As(err, &fe) {
					t.Fatalf("expected *FormatError, got %v", err)
				}
			}
			if keys := store.Keys(); len(keys) != 0 {
				t.Errorf("rejected import wrote %v", keys)
			}
		})
	}
}

func TestParseWithoutExportDate(t *testing.T) {
	doc, err := Parse([]byte(`{"transactions": [], "budget": {"income": 1, "expense": 2}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !doc.ExportDate.IsEmpty() {
		t.Errorf("expected empty export date, got %v", doc.ExportDate)
	}
	if !doc.Budget.Expense.Equal(core.NewMoney(2)) {
		t.Errorf("budget = %+v", doc.Budget)
	}
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	store := memory.NewWithEntries(map[string][]byte{
		kv.KeyTransactions: []byte(`[]`),
		kv.KeyBudget:       []byte(`{"income":0,"expense":0}`),
	})

	if err := NewService(store, nil).ClearAll(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if keys := store.Keys(); len(keys) != 0 {
		t.Errorf("expected empty store, got %v", keys)
	}
}

func TestFormatErrorMessage(t *testing.T) {
	err := &FormatError{Reason: "budget", Err: errors.New("boom")}
	if !strings.Contains(err.Error(), "budget: boom") {
		t.Errorf("unexpected message %q", err.Error())
	}
}
