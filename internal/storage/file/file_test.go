package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goodtune/kassist/internal/storage"
)

func TestLedgerStoreMissingFile(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Ledger().Load(context.Background())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLedgerStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	state := storage.LedgerState{
		Usage:       map[string]float64{"voice_api": 42.125, "gemini_api": 9},
		Credentials: map[string]float64{"voice-1": 600, "voice-3": 0.5},
		ActiveIndex: 2,
	}
	if err := store.Ledger().Save(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Ledger().Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.ActiveIndex != 2 {
		t.Fatalf("expected active index 2, got %d", loaded.ActiveIndex)
	}
	if loaded.Usage["voice_api"] != 42.125 || loaded.Credentials["voice-3"] != 0.5 {
		t.Fatalf("unexpected state: %+v", loaded)
	}
}

func TestLedgerStoreCorruptFile(t *testing.T) {
	store := openTestStore(t)
	if err := os.WriteFile(store.ledger.path, []byte("not json"), 0600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	_, err := store.Ledger().Load(context.Background())
	if err == nil {
		t.Fatal("expected error for corrupt file")
	}
	if errors.Is(err, storage.ErrNotFound) {
		t.Fatal("corrupt file should not be reported as missing")
	}
}

func TestLedgerStoreLeavesNoTempFiles(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.Ledger().Save(ctx, storage.LedgerState{ActiveIndex: i}); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(store.ledger.path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the ledger file, found %d entries", len(entries))
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "state", "api_usage.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}
