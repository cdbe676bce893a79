package testutil

import (
	"testing"

	"github.com/lordkekz/KosmikAutoUpdate/internal/database"
	"github.com/lordkekz/KosmikAutoUpdate/internal/update"
)

// NewTestIndex creates a new in-memory SQLite index with migrations applied.
// The index is automatically closed when the test completes.
func NewTestIndex(t *testing.T) update.Index {
	t.Helper()

	idx, err := database.NewSQLiteIndex(":memory:")
	if err != nil {
		t.Fatalf("failed to open index: %v", err)
	}

	t.Cleanup(func() {
		idx.Close()
	})

	return idx
}
