package update_test

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/lordkekz/KosmikAutoUpdate/internal/testutil"
	"github.com/lordkekz/KosmikAutoUpdate/internal/update"
)

func TestManager_AddVersion(t *testing.T) {
	t.Run("ingests a release tree", func(t *testing.T) {
		mgr, st := newTestManager(t)

		manifest := addVersion(t, mgr, "1.0.0", map[string]string{
			"app.bin":         "binary content",
			"assets/logo.png": "logo bytes",
		})

		if manifest.VersionID != "1.0.0" {
			t.Errorf("VersionID = %q, want %q", manifest.VersionID, "1.0.0")
		}
		if len(manifest.Files) != 2 {
			t.Fatalf("manifest has %d files, want 2", len(manifest.Files))
		}

		f, ok := manifest.Files["assets/logo.png"]
		if !ok {
			t.Fatal("manifest is missing assets/logo.png")
		}
		if want := testutil.MD5Hex([]byte("logo bytes")); f.MD5 != want {
			t.Errorf("MD5 = %q, want %q", f.MD5, want)
		}
		if f.Bytes != int64(len("logo bytes")) {
			t.Errorf("Bytes = %d, want %d", f.Bytes, len("logo bytes"))
		}

		// Every blob plus the bundled archive made it into the store.
		for _, key := range []string{
			update.BlobKey(manifest.Files["app.bin"].MD5),
			update.BlobKey(f.MD5),
			update.ArchiveKey("1.0.0"),
		} {
			ok, err := st.Has(key)
			if err != nil {
				t.Fatalf("Has(%q) error = %v", key, err)
			}
			if !ok {
				t.Errorf("store is missing %q", key)
			}
		}

		if manifest.ArchiveBytes <= 0 {
			t.Errorf("ArchiveBytes = %d, want > 0", manifest.ArchiveBytes)
		}
		if manifest.ArchiveMD5 == "" {
			t.Error("ArchiveMD5 is empty")
		}
	})

	t.Run("canonicalizes the version id", func(t *testing.T) {
		mgr, _ := newTestManager(t)

		manifest := addVersion(t, mgr, "1.0.0+0", map[string]string{"app.bin": "v1"})
		if manifest.VersionID != "1.0.0" {
			t.Errorf("VersionID = %q, want canonical %q", manifest.VersionID, "1.0.0")
		}
	})

	t.Run("rejects a malformed version id", func(t *testing.T) {
		mgr, _ := newTestManager(t)

		_, err := mgr.AddVersion("not-a-version", t.TempDir())
		if !errors.Is(err, update.ErrMalformedVersion) {
			t.Errorf("AddVersion() error = %v, want ErrMalformedVersion", err)
		}
	})

	t.Run("rejects a duplicate version id", func(t *testing.T) {
		mgr, _ := newTestManager(t)
		addVersion(t, mgr, "1.0.0", map[string]string{"app.bin": "v1"})

		_, err := mgr.AddVersion("1.0.0", testutil.WriteTree(t, map[string]string{"app.bin": "v1"}))
		if !errors.Is(err, update.ErrVersionExists) {
			t.Errorf("AddVersion() error = %v, want ErrVersionExists", err)
		}
	})

	t.Run("deduplicates identical content within a version", func(t *testing.T) {
		mgr, st := newTestManager(t)

		manifest := addVersion(t, mgr, "1.0.0", map[string]string{
			"a.txt": "hi",
			"b.txt": "hi",
		})

		hash := testutil.MD5Hex([]byte("hi"))
		if manifest.Files["a.txt"].MD5 != hash || manifest.Files["b.txt"].MD5 != hash {
			t.Error("identical files hash differently")
		}
		if n := st.PutCount(update.BlobKey(hash)); n != 1 {
			t.Errorf("blob written %d times, want 1", n)
		}
	})

	t.Run("deduplicates identical content across versions", func(t *testing.T) {
		mgr, st := newTestManager(t)

		addVersion(t, mgr, "1.0.0", map[string]string{"app.bin": "shared"})
		addVersion(t, mgr, "1.1.0", map[string]string{"app.bin": "shared"})

		if n := st.PutCount(update.BlobKey(testutil.MD5Hex([]byte("shared")))); n != 1 {
			t.Errorf("blob written %d times across versions, want 1", n)
		}
	})

	t.Run("bundled archive contains every file", func(t *testing.T) {
		mgr, st := newTestManager(t)

		addVersion(t, mgr, "1.0.0", map[string]string{
			"app.bin":         "binary content",
			"assets/logo.png": "logo bytes",
		})

		blob, err := st.Open(update.ArchiveKey("1.0.0"))
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer blob.Close()

		data, err := io.ReadAll(blob)
		if err != nil {
			t.Fatalf("reading archive: %v", err)
		}
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			t.Fatalf("opening archive: %v", err)
		}

		entries := make(map[string]string)
		for _, zf := range zr.File {
			rc, err := zf.Open()
			if err != nil {
				t.Fatalf("opening entry %s: %v", zf.Name, err)
			}
			content, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				t.Fatalf("reading entry %s: %v", zf.Name, err)
			}
			entries[zf.Name] = string(content)
		}

		want := map[string]string{
			"app.bin":         "binary content",
			"assets/logo.png": "logo bytes",
		}
		if len(entries) != len(want) {
			t.Fatalf("archive has %d entries, want %d", len(entries), len(want))
		}
		for name, content := range want {
			if entries[name] != content {
				t.Errorf("entry %s = %q, want %q", name, entries[name], content)
			}
		}
	})

	t.Run("blob round trips through the store", func(t *testing.T) {
		mgr, st := newTestManager(t)

		addVersion(t, mgr, "1.0.0", map[string]string{"app.bin": "binary content"})

		hash := testutil.MD5Hex([]byte("binary content"))
		blob, err := st.Open(update.BlobKey(hash))
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer blob.Close()

		data, err := io.ReadAll(blob)
		if err != nil {
			t.Fatalf("reading blob: %v", err)
		}
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			t.Fatalf("opening blob archive: %v", err)
		}
		if len(zr.File) != 1 {
			t.Fatalf("blob archive has %d entries, want 1", len(zr.File))
		}
		if zr.File[0].Name != hash {
			t.Errorf("blob entry named %q, want %q", zr.File[0].Name, hash)
		}

		rc, err := zr.File[0].Open()
		if err != nil {
			t.Fatalf("opening blob entry: %v", err)
		}
		defer rc.Close()
		content, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("reading blob entry: %v", err)
		}
		if string(content) != "binary content" {
			t.Errorf("blob content = %q, want %q", content, "binary content")
		}
	})

	t.Run("ingests an empty release tree", func(t *testing.T) {
		mgr, _ := newTestManager(t)

		manifest, err := mgr.AddVersion("1.0.0", t.TempDir())
		if err != nil {
			t.Fatalf("AddVersion() error = %v", err)
		}
		if len(manifest.Files) != 0 {
			t.Errorf("manifest has %d files, want 0", len(manifest.Files))
		}
	})

	t.Run("fails for a missing release directory", func(t *testing.T) {
		mgr, _ := newTestManager(t)

		if _, err := mgr.AddVersion("1.0.0", "/does/not/exist"); err == nil {
			t.Error("AddVersion() succeeded for a missing directory")
		}
	})
}
