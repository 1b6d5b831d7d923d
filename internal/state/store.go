// Package state owns the application state: the action set, the pure reducer
// and the Store that hydrates from and persists to a kv backend.
package state

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"walletflow/internal/core"
	"walletflow/internal/kv"
	"walletflow/internal/log"
	"walletflow/internal/metrics"
	"walletflow/internal/summary"

	"golang.org/x/sync/errgroup"
)

var ErrTransactionNotFound = errors.New("transaction not found")

// Change pairs an action with the state it produced.
type Change struct {
	Action Action
	State  State
}

// Listener observes changes. It must return quickly and must not call back
// into mutating Store methods.
type Listener func(Change)

type listenerEntry struct {
	id int
	fn Listener
}

type listenerSet struct {
	mu      sync.Mutex
	entries []listenerEntry
	next    int
}

func (ls *listenerSet) add(l Listener) func() {
	ls.mu.Lock()
	id := ls.next
	ls.next++
	ls.entries = append(ls.entries, listenerEntry{id: id, fn: l})
	ls.mu.Unlock()

	return func() {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		ls.entries = slices.DeleteFunc(ls.entries, func(e listenerEntry) bool { return e.id == id })
	}
}

func (ls *listenerSet) notify(c Change) {
	ls.mu.Lock()
	entries := slices.Clone(ls.entries)
	ls.mu.Unlock()

	for _, e := range entries {
		e.fn(c)
	}
}

// Store holds the single authoritative State. Dispatches are serialized;
// reads take a consistent snapshot. Construction starts hydration in the
// background and every mutating call waits until it has finished.
type Store struct {
	backend kv.Store
	log     *log.Logger
	metrics *metrics.Metrics
	opts    options

	// dispatchMu serializes reduce, notify and schedule.
	dispatchMu sync.Mutex

	mu    sync.RWMutex
	state State

	listeners listenerSet
	persisted listenerSet

	ready  chan struct{}
	writer *persister
}

// New creates a Store over backend and starts hydrating from it. ctx bounds
// hydration only.
func New(ctx context.Context, backend kv.Store, opts ...Option) *Store {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger.WithComponent(log.ComponentStore)
	s := &Store{
		backend: backend,
		log:     logger,
		metrics: o.metrics,
		opts:    o,
		state:   Initial(o.categories),
		ready:   make(chan struct{}),
	}
	s.writer = newPersister(backend, o.logger.WithComponent(log.ComponentStorage), o.metrics, o.writeTimeout, s.persisted.notify)

	go s.writer.run()
	go s.hydrate(ctx)
	return s
}

// hydrate loads both keys concurrently. Keys that are present replace the
// defaults; any read failure keeps all defaults. Loading is cleared in every
// case and nothing is written back.
func (s *Store) hydrate(ctx context.Context) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.opts.hydrateTimeout)
	defer cancel()

	var (
		txs                 []core.Transaction
		budget              core.Budget
		haveTxs, haveBudget bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		haveTxs, err = kv.GetJSON(gctx, s.backend, kv.KeyTransactions, &txs)
		return err
	})
	g.Go(func() error {
		var err error
		haveBudget, err = kv.GetJSON(gctx, s.backend, kv.KeyBudget, &budget)
		return err
	})

	err := g.Wait()
	if err != nil {
		s.log.WarnContext(ctx, "Hydration failed, keeping defaults",
			log.NewFields().WithOperation(log.OpHydrate).WithError(err).ToSlice()...)
	} else {
		if haveTxs {
			s.apply(SetTransactions{Transactions: txs})
		}
		if haveBudget {
			s.apply(SetBudget{Budget: budget})
		}
	}
	s.apply(SetLoading{Loading: false})

	elapsed := time.Since(start)
	s.metrics.RecordHydration(elapsed, err != nil)
	s.log.InfoContext(ctx, "Store hydrated",
		log.FieldOperation, log.OpHydrate,
		log.FieldCount, len(s.transactions()),
		log.FieldDuration, elapsed.Milliseconds())
	close(s.ready)
}

// Ready is closed once hydration has finished.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// WaitReady blocks until hydration has finished or ctx is done.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch applies a after hydration has finished. Unknown actions leave the
// state unchanged.
func (s *Store) Dispatch(ctx context.Context, a Action) error {
	if err := s.WaitReady(ctx); err != nil {
		return err
	}
	s.apply(a)
	return nil
}

func (s *Store) apply(a Action) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	s.applyLocked(a)
}

func (s *Store) applyLocked(a Action) {
	s.mu.Lock()
	next, changed := reduce(s.state, a)
	s.state = next
	s.mu.Unlock()

	kind := kindOf(a)
	s.metrics.IncrAction(kind)
	s.log.Debug("Action dispatched",
		log.FieldOperation, log.OpDispatch,
		log.FieldAction, kind,
		log.FieldCount, len(next.Transactions),
		log.FieldLoading, next.Loading)

	c := Change{Action: a, State: next.Clone()}
	if changed && !next.Loading {
		s.writer.schedule(c)
	}
	s.listeners.notify(c)
}

// AddTransaction stores a new transaction with a generated ID. A zero date
// is replaced by the current time. The input is not validated here.
func (s *Store) AddTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	date := in.Date
	if date.IsEmpty() {
		date = core.Date{Time: s.opts.now().UTC().Truncate(time.Millisecond)}
	}
	t := core.Transaction{
		ID:          s.opts.newID(),
		Description: in.Description,
		Amount:      in.Amount,
		Type:        in.Type,
		Category:    in.Category,
		Date:        date,
	}
	if err := s.Dispatch(ctx, AddTransaction{Transaction: t}); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

// UpdateTransaction replaces the stored transaction with t.ID. An unknown ID
// returns ErrTransactionNotFound and dispatches nothing.
func (s *Store) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	return s.applyExisting(ctx, t.ID, UpdateTransaction{Transaction: t})
}

// DeleteTransaction removes the transaction with id. An unknown ID returns
// ErrTransactionNotFound and dispatches nothing.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	return s.applyExisting(ctx, id, DeleteTransaction{ID: id})
}

func (s *Store) applyExisting(ctx context.Context, id string, a Action) error {
	if err := s.WaitReady(ctx); err != nil {
		return err
	}

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.RLock()
	found := slices.ContainsFunc(s.state.Transactions, matchID(id))
	s.mu.RUnlock()
	if !found {
		return fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	s.applyLocked(a)
	return nil
}

func (s *Store) SetBudget(ctx context.Context, b core.Budget) error {
	return s.Dispatch(ctx, SetBudget{Budget: b})
}

// ReplaceAll swaps in a whole transaction list and budget, as an import does.
func (s *Store) ReplaceAll(ctx context.Context, txs []core.Transaction, b core.Budget) error {
	if err := s.WaitReady(ctx); err != nil {
		return err
	}
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	s.applyLocked(SetTransactions{Transactions: txs})
	s.applyLocked(SetBudget{Budget: b})
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Loading
}

func (s *Store) transactions() []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Transactions
}

// CalculateTotals sums the current transactions.
func (s *Store) CalculateTotals() summary.Totals {
	return summary.TotalsOf(s.transactions())
}

// TransactionsByCategory sums amounts per category id. Every known category
// is present, at zero when it has no transactions.
func (s *Store) TransactionsByCategory() map[string]core.Money {
	s.mu.RLock()
	txs, categories := s.state.Transactions, s.state.Categories
	s.mu.RUnlock()
	return summary.ByCategory(txs, categories)
}

// Subscribe registers l for every dispatched action, including those that
// change nothing, and returns a function that removes it. l runs while
// dispatch is serialized.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	return s.listeners.add(l)
}

// SubscribePersisted registers l for snapshots that reached the backend.
// Both keys were written successfully when l runs; snapshots coalesced by the
// writer arrive once, carrying the last action. l runs on the writer
// goroutine.
func (s *Store) SubscribePersisted(l Listener) (unsubscribe func()) {
	return s.persisted.add(l)
}

// Flush waits until every write scheduled so far has been attempted.
func (s *Store) Flush(ctx context.Context) error {
	return s.writer.flush(ctx)
}

// Close waits for hydration, drains pending writes and stops the writer.
// The backend stays open; closing it is the caller's job.
func (s *Store) Close(ctx context.Context) error {
	if err := s.WaitReady(ctx); err != nil {
		return err
	}
	if err := s.writer.close(ctx); err != nil {
		return fmt.Errorf("close persister: %w", err)
	}
	s.log.Info("Store closed", log.FieldOperation, log.OpShutdown)
	return nil
}
