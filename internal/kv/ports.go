// Package kv defines the durable key-value boundary used to keep application
// state across sessions. Backends live in the sub-packages.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
)

// Keys of the persisted state layout. Each is an independent entry; nothing
// ties writes of one key to the other.
const (
	KeyTransactions = "transactions"
	KeyBudget       = "budget"
)

// Ports for outbound adapters.
type (
	Reader interface {
		// Get returns the stored value and true, or false if the key is absent.
		Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	}

	Writer interface {
		Set(ctx context.Context, key string, value []byte) error
	}

	// Clearer removes every entry owned by the backend.
	Clearer interface {
		Clear(ctx context.Context) error
	}

	Store interface {
		Reader
		Writer
		Clearer
	}
)

// GetJSON decodes the value at key into dst. A missing key leaves dst
// untouched and returns false.
func GetJSON(ctx context.Context, r Reader, key string, dst any) (bool, error) {
	raw, ok, err := r.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it at key.
func SetJSON(ctx context.Context, w Writer, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := w.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
