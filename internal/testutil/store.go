package testutil

import (
	"testing"

	"lumen-go/internal/database"
	"lumen-go/internal/lumen"
)

// NewTestStore creates an in-memory document store with the schema applied.
// The store is automatically closed when the test completes.
func NewTestStore(t *testing.T) lumen.Store {
	t.Helper()

	store, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
