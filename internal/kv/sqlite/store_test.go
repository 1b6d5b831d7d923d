package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"walletflow/internal/kv"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func countEntries(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM kv_entries`).Scan(&n); err != nil {
		t.Fatalf("count entries: %v", err)
	}
	return n
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, filepath.Join(t.TempDir(), "nested", "walletflow.db"))

	if _, ok, err := s.Get(ctx, kv.KeyTransactions); ok || err != nil {
		t.Fatalf("expected miss on fresh db, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, kv.KeyBudget, []byte(`{"income":1,"expense":2}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, kv.KeyBudget, []byte(`{"income":3,"expense":4}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, ok, err := s.Get(ctx, kv.KeyBudget)
	if err != nil || !ok || string(got) != `{"income":3,"expense":4}` {
		t.Fatalf("unexpected get: %q ok=%v err=%v", got, ok, err)
	}
	if n := countEntries(t, s); n != 1 {
		t.Fatalf("expected one entry, got %d", n)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n := countEntries(t, s); n != 0 {
		t.Fatalf("expected empty table after clear, got %d", n)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "walletflow.db")

	first, err := NewStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Set(ctx, kv.KeyTransactions, []byte(`[]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	first.Close()

	// Migrations are idempotent on an existing database.
	second := newTestStore(t, path)
	got, ok, err := second.Get(ctx, kv.KeyTransactions)
	if err != nil || !ok || string(got) != `[]` {
		t.Fatalf("entry lost across reopen: %q ok=%v err=%v", got, ok, err)
	}
}
