package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lordkekz/KosmikAutoUpdate/internal/update"
)

// FileSystemStore keeps download artifacts as plain files under a root
// directory:
//
//	<root>/
//	  hashed_files/<md5>.zip     (deduplicated per-file blobs)
//	  version_zips/<id>.zip      (bundled per-version archives)
//
// The layout mirrors the paths in download URLs, so the root can also be
// served directly by a reverse proxy.
type FileSystemStore struct {
	root string
}

var _ update.Store = (*FileSystemStore)(nil)

// NewFileSystemStore creates a store rooted at the given path, creating
// the known subdirectories.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	for _, dir := range []string{"hashed_files", "version_zips"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}
	return &FileSystemStore{root: root}, nil
}

// Root returns the store's root directory.
func (s *FileSystemStore) Root() string { return s.root }

func (s *FileSystemStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Has reports whether a blob exists for the key.
func (s *FileSystemStore) Has(key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat blob: %w", err)
	}
	return true, nil
}

// Size returns the stored size of the blob for the key.
func (s *FileSystemStore) Size(key string) (int64, error) {
	info, err := os.Stat(s.path(key))
	if err != nil {
		return 0, fmt.Errorf("stat blob: %w", err)
	}
	return info.Size(), nil
}

// Put stores a blob under the key using an atomic write (temp file +
// rename). An existing file is replaced: version archives are not
// content-addressed, so a retry after a failed ingest must not leave
// stale bytes behind the key.
func (s *FileSystemStore) Put(key string, r io.Reader, size int64) error {
	destPath := s.path(key)

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("creating blob directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing blob: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}

// Open returns a reader over the blob for the key.
func (s *FileSystemStore) Open(key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("blob not found: %s", key)
	}
	if err != nil {
		return nil, fmt.Errorf("opening blob: %w", err)
	}
	return f, nil
}

// ValidateSetup verifies that the store directories are accessible.
func (s *FileSystemStore) ValidateSetup() error {
	for _, dir := range []string{s.root, filepath.Join(s.root, "hashed_files"), filepath.Join(s.root, "version_zips")} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("store directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("store path is not a directory: %s", dir)
		}
	}
	return nil
}
