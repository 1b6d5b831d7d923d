package state

import (
	"context"
	"sync"
	"time"

	"walletflow/internal/core"
	"walletflow/internal/kv"
	"walletflow/internal/log"
	"walletflow/internal/metrics"

	"golang.org/x/sync/errgroup"
)

// persister writes state snapshots from a single goroutine. Only the latest
// pending snapshot is kept, so a burst of mutations costs one write per key
// and writes land in dispatch order.
type persister struct {
	backend kv.Writer
	log     *log.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	// onWritten is called on the writer goroutine after both keys of a
	// snapshot were stored, before flush waiters are released.
	onWritten func(Change)

	mu        sync.Mutex
	cond      *sync.Cond
	pending   *Change
	scheduled uint64
	written   uint64
	closed    bool
	done      chan struct{}
}

func newPersister(backend kv.Writer, logger *log.Logger, m *metrics.Metrics, timeout time.Duration, onWritten func(Change)) *persister {
	p := &persister{
		backend:   backend,
		log:       logger,
		metrics:   m,
		timeout:   timeout,
		onWritten: onWritten,
		done:      make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// schedule queues c.State for writing. c.Action is the last action folded
// into the snapshot.
func (p *persister) schedule(c Change) {
	if c.State.Transactions == nil {
		c.State.Transactions = []core.Transaction{}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.log.Warn("Persister closed, dropping snapshot", log.FieldOperation, log.OpPersist)
		return
	}
	p.pending = &c
	p.scheduled++
	p.mu.Unlock()
	p.cond.Broadcast()
}

func (p *persister) run() {
	defer close(p.done)
	for {
		p.mu.Lock()
		for p.pending == nil && !p.closed {
			p.cond.Wait()
		}
		if p.pending == nil {
			p.mu.Unlock()
			return
		}
		snap, seq := p.pending, p.scheduled
		p.pending = nil
		p.mu.Unlock()

		if err := p.write(snap.State); err == nil && p.onWritten != nil {
			p.onWritten(*snap)
		}

		p.mu.Lock()
		p.written = seq
		p.mu.Unlock()
		p.cond.Broadcast()
	}
}

// write stores both keys independently. A failure on one key does not stop
// the other and is never retried; the first failure is returned.
func (p *persister) write(st State) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error { return p.writeKey(ctx, kv.KeyTransactions, st.Transactions) })
	g.Go(func() error { return p.writeKey(ctx, kv.KeyBudget, st.Budget) })
	return g.Wait()
}

func (p *persister) writeKey(ctx context.Context, key string, v any) error {
	if err := kv.SetJSON(ctx, p.backend, key, v); err != nil {
		p.metrics.IncrPersistWrite(key, metrics.ResultError)
		p.log.ErrorContext(ctx, "Failed to persist state",
			log.NewFields().WithOperation(log.OpPersist).WithKey(key).WithError(err).ToSlice()...)
		return err
	}
	p.metrics.IncrPersistWrite(key, metrics.ResultOK)
	return nil
}

// flush blocks until every snapshot scheduled before the call is written.
func (p *persister) flush(ctx context.Context) error {
	p.mu.Lock()
	target := p.scheduled
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.mu.Lock()
		defer p.mu.Unlock()
		for p.written < target && ctx.Err() == nil {
			p.cond.Wait()
		}
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// Wake the waiter under the lock so the broadcast cannot be missed.
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

// close stops accepting snapshots and waits for the pending one to be written.
func (p *persister) close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
