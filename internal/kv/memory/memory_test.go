package memory

import (
	"context"
	"testing"

	"walletflow/internal/kv"
)

func TestMemoryStoreSetGetClear(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	val := []byte(`{"income":1}`)
	if err := s.Set(ctx, kv.KeyBudget, val); err != nil {
		t.Fatalf("set: %v", err)
	}
	val[0] = 'X' // caller mutation must not leak into the store

	got, ok, err := s.Get(ctx, kv.KeyBudget)
	if err != nil || !ok || string(got) != `{"income":1}` {
		t.Fatalf("unexpected get: %q ok=%v err=%v", got, ok, err)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if keys := s.Keys(); len(keys) != 0 {
		t.Fatalf("expected empty store after clear, got %v", keys)
	}
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewWithEntries(map[string][]byte{"nil": []byte("null")})

	var out map[string]int
	if ok, err := kv.GetJSON(ctx, s, "nil", &out); ok || err != nil {
		t.Fatalf("null entry should read as absent, got ok=%v err=%v", ok, err)
	}

	if err := kv.SetJSON(ctx, s, "counts", map[string]int{"a": 1}); err != nil {
		t.Fatalf("set json: %v", err)
	}
	if ok, err := kv.GetJSON(ctx, s, "counts", &out); !ok || err != nil || out["a"] != 1 {
		t.Fatalf("unexpected read: %v ok=%v err=%v", out, ok, err)
	}

	_ = s.Set(ctx, "broken", []byte("{"))
	if _, err := kv.GetJSON(ctx, s, "broken", &out); err == nil {
		t.Fatalf("expected decode error for corrupt entry")
	}
}
