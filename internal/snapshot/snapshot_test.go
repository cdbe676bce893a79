package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lordkekz/KosmikAutoUpdate/internal/database"
	"github.com/lordkekz/KosmikAutoUpdate/internal/update"
)

func newPopulatedIndex(t *testing.T, dir string) *database.SQLiteIndex {
	t.Helper()
	idx, err := database.NewSQLiteIndex(filepath.Join(dir, "index.db"))
	if err != nil {
		t.Fatalf("NewSQLiteIndex() failed: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	err = idx.WithIngest(func(tx update.IngestTx) error {
		return tx.InsertVersion("1.0.0", time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
	})
	if err != nil {
		t.Fatalf("inserting version: %v", err)
	}
	return idx
}

func TestWriteRestore(t *testing.T) {
	t.Run("round trips through an encrypted snapshot", func(t *testing.T) {
		dir := t.TempDir()
		idx := newPopulatedIndex(t, dir)

		snapPath := filepath.Join(dir, "index.snapshot")
		if err := Write(idx, snapPath, "correct horse"); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		// The snapshot must not be a readable SQLite file.
		raw, err := os.ReadFile(snapPath)
		if err != nil {
			t.Fatalf("reading snapshot: %v", err)
		}
		if len(raw) == 0 {
			t.Fatal("snapshot is empty")
		}
		if string(raw[:15]) == "SQLite format 3" {
			t.Error("snapshot is not encrypted")
		}

		restoredPath := filepath.Join(dir, "restored.db")
		if err := Restore(snapPath, restoredPath, "correct horse"); err != nil {
			t.Fatalf("Restore() error = %v", err)
		}

		restored, err := database.NewSQLiteIndex(restoredPath)
		if err != nil {
			t.Fatalf("opening restored index: %v", err)
		}
		defer restored.Close()

		rec, err := restored.GetVersion("1.0.0")
		if err != nil {
			t.Fatalf("GetVersion() error = %v", err)
		}
		if rec == nil {
			t.Error("restored index is missing the version row")
		}
	})

	t.Run("restore fails with a wrong passphrase", func(t *testing.T) {
		dir := t.TempDir()
		idx := newPopulatedIndex(t, dir)

		snapPath := filepath.Join(dir, "index.snapshot")
		if err := Write(idx, snapPath, "correct horse"); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		err := Restore(snapPath, filepath.Join(dir, "restored.db"), "battery staple")
		if err == nil {
			t.Error("Restore() succeeded with a wrong passphrase")
		}
	})

	t.Run("restore refuses to overwrite an existing file", func(t *testing.T) {
		dir := t.TempDir()
		idx := newPopulatedIndex(t, dir)

		snapPath := filepath.Join(dir, "index.snapshot")
		if err := Write(idx, snapPath, "correct horse"); err != nil {
			t.Fatalf("Write() error = %v", err)
		}

		existing := filepath.Join(dir, "existing.db")
		if err := os.WriteFile(existing, []byte("precious"), 0644); err != nil {
			t.Fatalf("writing existing file: %v", err)
		}

		if err := Restore(snapPath, existing, "correct horse"); err == nil {
			t.Error("Restore() overwrote an existing file")
		}
	})
}
