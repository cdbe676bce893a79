package update_test

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/lordkekz/KosmikAutoUpdate/internal/store"
	"github.com/lordkekz/KosmikAutoUpdate/internal/testutil"
	"github.com/lordkekz/KosmikAutoUpdate/internal/update"
)

func TestArchiveBuilder_BuildVersionArchive(t *testing.T) {
	st := store.NewMemoryStore()
	builder := update.NewArchiveBuilder(st, update.NewNopLogger())

	root := testutil.WriteTree(t, map[string]string{
		"app.bin":  "binary content",
		"data.txt": "data",
	})

	size, sum, err := builder.BuildVersionArchive("1.2.3", []update.ArchiveEntry{
		{Path: "app.bin", SourcePath: filepath.Join(root, "app.bin")},
		{Path: "data.txt", SourcePath: filepath.Join(root, "data.txt")},
	})
	if err != nil {
		t.Fatalf("BuildVersionArchive() error = %v", err)
	}

	blob, err := st.Open(update.ArchiveKey("1.2.3"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer blob.Close()

	data, err := io.ReadAll(blob)
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}

	if int64(len(data)) != size {
		t.Errorf("stored %d bytes, BuildVersionArchive() reported %d", len(data), size)
	}
	h := md5.Sum(data)
	if got := hex.EncodeToString(h[:]); got != sum {
		t.Errorf("stored archive md5 = %q, BuildVersionArchive() reported %q", got, sum)
	}
}

func TestArchiveBuilder_MissingSource(t *testing.T) {
	builder := update.NewArchiveBuilder(store.NewMemoryStore(), update.NewNopLogger())

	_, _, err := builder.BuildVersionArchive("1.2.3", []update.ArchiveEntry{
		{Path: "app.bin", SourcePath: filepath.Join(t.TempDir(), "missing")},
	})
	if err == nil {
		t.Error("BuildVersionArchive() succeeded with a missing source file")
	}
}

func TestListSourceFiles(t *testing.T) {
	t.Run("walks in lexical order with slash paths", func(t *testing.T) {
		root := testutil.WriteTree(t, map[string]string{
			"b.txt":        "b",
			"a.txt":        "a",
			"sub/deep.txt": "d",
		})

		files, err := update.ListSourceFiles(root)
		if err != nil {
			t.Fatalf("ListSourceFiles() error = %v", err)
		}

		want := []string{"a.txt", "b.txt", "sub/deep.txt"}
		if len(files) != len(want) {
			t.Fatalf("ListSourceFiles() returned %d files, want %d", len(files), len(want))
		}
		for i, rel := range want {
			if files[i].RelativePath != rel {
				t.Errorf("files[%d].RelativePath = %q, want %q", i, files[i].RelativePath, rel)
			}
		}
		if files[0].Bytes != 1 {
			t.Errorf("files[0].Bytes = %d, want 1", files[0].Bytes)
		}
	})

	t.Run("fails for a file root", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("writing file: %v", err)
		}

		if _, err := update.ListSourceFiles(path); err == nil {
			t.Error("ListSourceFiles() succeeded for a non-directory root")
		}
	})
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	got, err := update.HashFile(path)
	if err != nil {
		t.Fatalf("HashFile() error = %v", err)
	}
	if want := testutil.MD5Hex([]byte("hello")); got != want {
		t.Errorf("HashFile() = %q, want %q", got, want)
	}
}
