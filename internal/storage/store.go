package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Ledger() LedgerStore
}

// LedgerStore persists the credential usage ledger. Save always replaces the
// previously stored state as a whole.
type LedgerStore interface {
	Load(ctx context.Context) (*LedgerState, error)
	Save(ctx context.Context, state LedgerState) error
}
