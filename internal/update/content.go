package update

import (
	"fmt"
	"os"
)

// ContentStore manages the deduplicated per-file blobs: each distinct
// content hash is stored exactly once as a single-entry compressed
// archive keyed by the hash. Blobs are never deleted, even when no
// version references them anymore.
type ContentStore struct {
	index  Index
	store  Store
	logger Logger
}

// NewContentStore creates a ContentStore over the given index and store.
func NewContentStore(index Index, store Store, logger Logger) *ContentStore {
	return &ContentStore{index: index, store: store, logger: logger}
}

// HasFile reports whether a content hash is already indexed.
func (c *ContentStore) HasFile(md5 string) (bool, error) {
	rec, err := c.index.FileInfo(md5)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// FileInfo returns the indexed size metadata for a content hash, or nil.
func (c *ContentStore) FileInfo(md5 string) (*FileRecord, error) {
	return c.index.FileInfo(md5)
}

// StoreFile ensures the blob for the given content hash exists in the
// store and returns its compressed size.
//
// If the hash is already indexed, nothing is written (dedup
// short-circuit). If the blob exists but the index row does not — an
// earlier ingestion staged it and failed before commit — the blob is
// reused as-is. Otherwise the file at sourcePath is compressed into a
// single-entry archive named by the hash and uploaded.
//
// Index rows are not written here: ingestion commits them in one
// transaction after all blobs are staged.
func (c *ContentStore) StoreFile(md5 string, sourcePath string) (int64, error) {
	rec, err := c.index.FileInfo(md5)
	if err != nil {
		return 0, fmt.Errorf("checking for existing content: %w", err)
	}
	if rec != nil {
		c.logger.Debug("content deduplicated", "md5", md5)
		return rec.ArchiveBytes, nil
	}

	key := BlobKey(md5)
	exists, err := c.store.Has(key)
	if err != nil {
		return 0, fmt.Errorf("checking store for blob: %w", err)
	}
	if exists {
		return c.store.Size(key)
	}

	return c.writeBlob(key, md5, sourcePath)
}

// writeBlob compresses sourcePath into a single-entry archive and
// uploads it under key. The entry inside the archive is named by the
// content hash, not the original path, since many paths may share it.
func (c *ContentStore) writeBlob(key, md5, sourcePath string) (int64, error) {
	tmp, err := os.CreateTemp("", "kosmik-blob-*.zip")
	if err != nil {
		return 0, fmt.Errorf("creating blob temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	defer tmp.Close()

	zw := newZipWriter(tmp)
	if err := addZipEntry(zw, md5, sourcePath); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finalizing blob archive: %w", err)
	}

	size, _, err := hashAndRewind(tmp)
	if err != nil {
		return 0, err
	}

	if err := c.store.Put(key, tmp, size); err != nil {
		return 0, fmt.Errorf("storing blob: %w", err)
	}

	c.logger.Debug("blob stored", "md5", md5, "archive_bytes", size)
	return size, nil
}
