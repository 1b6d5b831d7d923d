// Package worker keeps a replica backend in step with the primary one,
// driven by state change notifications.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"walletflow/internal/amqp"
	"walletflow/internal/kv"
	"walletflow/internal/log"
	"walletflow/internal/state"

	"golang.org/x/sync/errgroup"
)

// Keys copied on every sync.
var Keys = []string{kv.KeyTransactions, kv.KeyBudget}

// Mirror copies the persisted entries of a source backend into a replica.
// Notifications only carry totals, so every sync reads the source.
type Mirror struct {
	source  kv.Reader
	replica kv.Store
	log     *log.Logger
	now     func() time.Time

	mu       sync.Mutex
	lastSync time.Time
}

func NewMirror(source kv.Reader, replica kv.Store, logger *log.Logger) *Mirror {
	if logger == nil {
		logger = log.Discard()
	}
	return &Mirror{
		source:  source,
		replica: replica,
		log:     logger.WithComponent(log.ComponentWorker),
		now:     time.Now,
	}
}

// HandleStateChanged syncs after a notification. Messages stamped before the
// last completed sync are already reflected in the replica and are skipped.
func (m *Mirror) HandleStateChanged(ctx context.Context, msg *amqp.StateChangedMessage) error {
	if msg.Action == state.KindSetLoading {
		return nil
	}

	m.mu.Lock()
	last := m.lastSync
	m.mu.Unlock()
	if !last.IsZero() && msg.Timestamp.Before(last) {
		m.log.DebugContext(ctx, "Skipping stale notification",
			log.FieldAction, msg.Action, "timestamp", msg.Timestamp)
		return nil
	}

	if _, err := m.Sync(ctx); err != nil {
		return fmt.Errorf("mirror %s: %w", msg.Action, err)
	}
	return nil
}

// Sync copies every key present in the source whose value differs from the
// replica's, and returns how many were written. Keys absent from the source
// are left alone.
func (m *Mirror) Sync(ctx context.Context) (int, error) {
	started := m.now()

	var (
		g      errgroup.Group
		mu     sync.Mutex
		copied int
	)
	for _, key := range Keys {
		key := key
		g.Go(func() error {
			wrote, err := m.syncKey(ctx, key)
			if err != nil {
				m.log.ErrorContext(ctx, "Failed to mirror entry",
					log.FieldKey, key, log.FieldError, err)
				return err
			}
			if wrote {
				mu.Lock()
				copied++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return copied, err
	}

	m.mu.Lock()
	m.lastSync = started
	m.mu.Unlock()

	m.log.InfoContext(ctx, "Replica in sync",
		log.FieldCount, copied,
		log.FieldDuration, m.now().Sub(started).Milliseconds())
	return copied, nil
}

func (m *Mirror) syncKey(ctx context.Context, key string) (bool, error) {
	value, ok, err := m.source.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read source %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	current, found, err := m.replica.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read replica %s: %w", key, err)
	}
	if found && bytes.Equal(current, value) {
		return false, nil
	}

	if err := m.replica.Set(ctx, key, value); err != nil {
		return false, fmt.Errorf("write replica %s: %w", key, err)
	}
	m.log.DebugContext(ctx, "Entry mirrored", log.FieldKey, key, "bytes", len(value))
	return true, nil
}
