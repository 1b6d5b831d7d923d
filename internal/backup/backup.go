// Package backup exports, imports and wipes the persisted state as a single
// JSON document.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"walletflow/internal/core"
	"walletflow/internal/kv"
	"walletflow/internal/log"

	"golang.org/x/sync/errgroup"
)

var ErrEmptyImport = errors.New("please paste exported data")

// FormatError reports an import document that cannot be used.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid backup format: %s: %v", e.Reason, e.Err)
	}
	return "invalid backup format: " + e.Reason
}

func (e *FormatError) Unwrap() error { return e.Err }

// Document is the export layout.
type Document struct {
	Transactions []core.Transaction `json:"transactions"`
	Budget       core.Budget        `json:"budget"`
	ExportDate   core.Date          `json:"exportDate"`
}

// Service runs backup operations against one backend.
type Service struct {
	store kv.Store
	log   *log.Logger
}

func NewService(store kv.Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	return &Service{store: store, log: logger.WithComponent(log.ComponentBackup)}
}

// Export reads the persisted entries, not the in-memory state. Missing
// entries export as an empty list and a zero budget.
func (s *Service) Export(ctx context.Context, now time.Time) ([]byte, error) {
	doc := Document{
		Transactions: []core.Transaction{},
		ExportDate:   core.Date{Time: now.UTC().Truncate(time.Millisecond)},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := kv.GetJSON(gctx, s.store, kv.KeyTransactions, &doc.Transactions)
		return err
	})
	g.Go(func() error {
		_, err := kv.GetJSON(gctx, s.store, kv.KeyBudget, &doc.Budget)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	s.log.InfoContext(ctx, "State exported",
		log.FieldOperation, log.OpExport,
		log.FieldCount, len(doc.Transactions))
	return out, nil
}

// Import validates data and overwrites both persisted entries. A running
// Store does not see the new data until it is constructed again.
func (s *Service) Import(ctx context.Context, data []byte) error {
	doc, err := Parse(data)
	if err != nil {
		return err
	}

	if err := kv.SetJSON(ctx, s.store, kv.KeyTransactions, doc.Transactions); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	if err := kv.SetJSON(ctx, s.store, kv.KeyBudget, doc.Budget); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	s.log.InfoContext(ctx, "State imported",
		log.FieldOperation, log.OpImport,
		log.FieldCount, len(doc.Transactions))
	return nil
}

// ClearAll removes every persisted entry.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	s.log.WarnContext(ctx, "All data cleared", log.FieldOperation, log.OpClear)
	return nil
}

// Parse decodes an export document. Both transactions and budget must be
// present and non-null; exportDate is optional.
func Parse(data []byte) (Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Document{}, ErrEmptyImport
	}

	var raw struct {
		Transactions json.RawMessage `json:"transactions"`
		Budget       json.RawMessage `json:"budget"`
		ExportDate   *core.Date      `json:"exportDate"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, &FormatError{Reason: "not a JSON object", Err: err}
	}
	if isMissing(raw.Transactions) || isMissing(raw.Budget) {
		return Document{}, &FormatError{Reason: "transactions and budget are required"}
	}

	var doc Document
	if err := json.Unmarshal(raw.Transactions, &doc.Transactions); err != nil {
		return Document{}, &FormatError{Reason: "transactions", Err: err}
	}
	if err := json.Unmarshal(raw.Budget, &doc.Budget); err != nil {
		return Document{}, &FormatError{Reason: "budget", Err: err}
	}
	if raw.ExportDate != nil {
		doc.ExportDate = *raw.ExportDate
	}
	if doc.Transactions == nil {
		doc.Transactions = []core.Transaction{}
	}
	return doc, nil
}

func isMissing(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
