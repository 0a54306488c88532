// Package file stores ledger state as a single JSON document on disk, the
// same layout the assistant historically kept in api_usage.json.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/goodtune/kassist/internal/storage"
)

// Store implements storage.Store on top of a JSON file.
type Store struct {
	ledger *ledgerStore
}

// Open prepares a file-backed store. The file itself is created on the first
// save.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("file store path is required")
	}
	if err := storage.EnsureParentDir(path); err != nil {
		return nil, err
	}
	return &Store{ledger: &ledgerStore{path: path}}, nil
}

// Close is a no-op; every save is flushed before returning.
func (s *Store) Close() error { return nil }

// Ledger returns the ledger store.
func (s *Store) Ledger() storage.LedgerStore { return s.ledger }

type ledgerStore struct {
	path string
	mu   sync.Mutex
}

func (s *ledgerStore) Load(ctx context.Context) (*storage.LedgerState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("read ledger file: %w", err)
	}

	var state storage.LedgerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal ledger file: %w", err)
	}
	return &state, nil
}

// Save writes to a temporary sibling and renames it over the target so a
// crash mid-write never leaves a truncated document.
func (s *ledgerStore) Save(ctx context.Context, state storage.LedgerState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write ledger file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync ledger file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close ledger file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}
