package sqlite

import (
	"path/filepath"
	"testing"
)

// OpenTest opens a migrated store in t.TempDir() and registers cleanup.
func OpenTest(t testing.TB) *SQLiteStore {
	t.Helper()

	store, err := New(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
