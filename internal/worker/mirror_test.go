package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"walletflow/internal/amqp"
	"walletflow/internal/core"
	"walletflow/internal/kv"
	"walletflow/internal/kv/memory"
	"walletflow/internal/state"
)

// countingStore records writes on top of a memory store.
type countingStore struct {
	*memory.Store
	setErr error

	mu   sync.Mutex
	sets int
}

func (c *countingStore) Set(ctx context.Context, key string, value []byte) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	return c.Store.Set(ctx, key, value)
}

func TestSyncCopiesEntries(t *testing.T) {
	ctx := context.Background()
	source := memory.NewWithEntries(map[string][]byte{
		kv.KeyTransactions: []byte(`[]`),
		kv.KeyBudget:       []byte(`{"income":100,"expense":50}`),
	})
	replica := &countingStore{Store: memory.New()}
	m := NewMirror(source, replica, nil)

	n, err := m.Sync(ctx)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 copied, got %d (err=%v)", n, err)
	}
	got, ok, _ := replica.Get(ctx, kv.KeyBudget)
	if !ok || string(got) != `{"income":100,"expense":50}` {
		t.Fatalf("unexpected replica budget: %q ok=%v", got, ok)
	}

	// Unchanged entries are not rewritten.
	if n, err := m.Sync(ctx); err != nil || n != 0 {
		t.Fatalf("expected no writes on second sync, got %d (err=%v)", n, err)
	}
	if replica.sets != 2 {
		t.Errorf("expected 2 writes total, got %d", replica.sets)
	}
}

func TestSyncSkipsAbsentKeys(t *testing.T) {
	ctx := context.Background()
	source := memory.NewWithEntries(map[string][]byte{kv.KeyBudget: []byte(`{"income":1,"expense":1}`)})
	replica := &countingStore{Store: memory.NewWithEntries(map[string][]byte{kv.KeyTransactions: []byte(`[{"id":"old"}]`)})}

	if n, err := NewMirror(source, replica, nil).Sync(ctx); err != nil || n != 1 {
		t.Fatalf("expected 1 copied, got %d (err=%v)", n, err)
	}
	got, _, _ := replica.Get(ctx, kv.KeyTransactions)
	if string(got) != `[{"id":"old"}]` {
		t.Errorf("replica entry without source counterpart was touched: %s", got)
	}
}

func TestSyncReportsWriteFailure(t *testing.T) {
	source := memory.NewWithEntries(map[string][]byte{kv.KeyBudget: []byte(`{}`)})
	boom := errors.New("quota exceeded")
	replica := &countingStore{Store: memory.New(), setErr: boom}

	if _, err := NewMirror(source, replica, nil).Sync(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped write error, got %v", err)
	}
}

func TestHandleStateChanged(t *testing.T) {
	ctx := context.Background()
	source := memory.New()
	replica := &countingStore{Store: memory.New()}
	m := NewMirror(source, replica, nil)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	m.now = func() time.Time { return clock }

	if err := source.Set(ctx, kv.KeyBudget, []byte(`{"income":1,"expense":0}`)); err != nil {
		t.Fatal(err)
	}
	msg := &amqp.StateChangedMessage{Action: state.KindSetBudget, Timestamp: base.Add(-time.Second)}
	if err := m.HandleStateChanged(ctx, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if replica.sets != 1 {
		t.Fatalf("expected one write, got %d", replica.sets)
	}

	// Older than the last sync: nothing is read or written.
	if err := source.Set(ctx, kv.KeyBudget, []byte(`{"income":2,"expense":0}`)); err != nil {
		t.Fatal(err)
	}
	stale := &amqp.StateChangedMessage{Action: state.KindSetBudget, Timestamp: base.Add(-time.Minute)}
	if err := m.HandleStateChanged(ctx, stale); err != nil {
		t.Fatalf("handle stale: %v", err)
	}
	if replica.sets != 1 {
		t.Fatalf("stale message caused a write")
	}

	loading := &amqp.StateChangedMessage{Action: state.KindSetLoading, Timestamp: base.Add(time.Minute)}
	if err := m.HandleStateChanged(ctx, loading); err != nil || replica.sets != 1 {
		t.Fatalf("loading message should be ignored, sets=%d err=%v", replica.sets, err)
	}

	clock = base.Add(time.Hour)
	fresh := &amqp.StateChangedMessage{Action: state.KindSetBudget, Timestamp: base.Add(time.Minute)}
	if err := m.HandleStateChanged(ctx, fresh); err != nil {
		t.Fatalf("handle fresh: %v", err)
	}
	got, _, _ := replica.Get(ctx, kv.KeyBudget)
	if string(got) != `{"income":2,"expense":0}` {
		t.Errorf("replica not updated: %s", got)
	}
}

// slowStore delays every write.
type slowStore struct {
	*memory.Store
	delay time.Duration
}

func (s *slowStore) Set(ctx context.Context, key string, value []byte) error {
	time.Sleep(s.delay)
	return s.Store.Set(ctx, key, value)
}

// mirrorPublisher hands every message straight to the mirror.
type mirrorPublisher struct {
	m *Mirror
}

func (p mirrorPublisher) PublishStateChanged(ctx context.Context, msg *amqp.StateChangedMessage) error {
	return p.m.HandleStateChanged(ctx, msg)
}

func TestMirrorSeesChangeAfterSlowWrite(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	source := &slowStore{Store: memory.New(), delay: 50 * time.Millisecond}
	replica := memory.New()
	m := NewMirror(source, replica, nil)

	store := state.New(ctx, source)
	if err := store.WaitReady(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}
	n := amqp.NewNotifier(mirrorPublisher{m: m}, nil, 8)
	store.SubscribePersisted(n.Listener())

	in := core.TransactionInput{Description: "Coffee", Amount: core.NewMoney(4.5), Type: core.Expense, Category: "food"}
	if _, err := store.AddTransaction(ctx, in); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Close(ctx); err != nil {
		t.Fatalf("close store: %v", err)
	}
	if err := n.Close(ctx); err != nil {
		t.Fatalf("close notifier: %v", err)
	}

	var txs []core.Transaction
	ok, err := kv.GetJSON(ctx, replica, kv.KeyTransactions, &txs)
	if err != nil || !ok || len(txs) != 1 {
		t.Fatalf("replica has %d transactions (present=%v err=%v), want 1", len(txs), ok, err)
	}
}
