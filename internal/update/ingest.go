package update

import (
	"fmt"
)

// AddVersion ingests a new version from a directory tree of release
// files. The id must parse as a semantic version and must not be indexed
// yet.
//
// Blobs and the bundled archive are staged in the store first, then
// every index row commits in a single transaction. A crash before the
// commit leaves only orphaned blobs behind, which are harmless: a later
// retry of the same id reuses them by hash.
func (m *Manager) AddVersion(versionID string, root string) (*Manifest, error) {
	v, err := ParseVersion(versionID)
	if err != nil {
		return nil, err
	}
	id := v.String() // canonical form

	unlock := m.lockIngest(id)
	defer unlock()

	existing, err := m.index.GetVersion(id)
	if err != nil {
		return nil, fmt.Errorf("checking for existing version: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %q", ErrVersionExists, id)
	}

	sources, err := ListSourceFiles(root)
	if err != nil {
		return nil, err
	}

	opID := m.idgen.New()
	createdAt := m.clock.Now().UTC()
	m.logger.Info("ingesting version", "op", opID, "version", id, "files", len(sources))

	// Stage blobs: hash every file and store each distinct hash once.
	type ingested struct {
		path         string
		md5          string
		rawBytes     int64
		archiveBytes int64
	}
	files := make([]ingested, 0, len(sources))
	blobs := make(map[string]FileRecord) // distinct hashes staged by this ingestion

	for _, src := range sources {
		hash, err := HashFile(src.AbsolutePath)
		if err != nil {
			return nil, err
		}

		blob, ok := blobs[hash]
		if !ok {
			archiveBytes, err := m.content.StoreFile(hash, src.AbsolutePath)
			if err != nil {
				return nil, fmt.Errorf("storing %s: %w", src.RelativePath, err)
			}
			blob = FileRecord{MD5: hash, Bytes: src.Bytes, ArchiveBytes: archiveBytes}
			blobs[hash] = blob
		}

		m.logger.Debug("file processed", "op", opID, "path", src.RelativePath, "md5", hash, "bytes", src.Bytes)
		files = append(files, ingested{
			path:         src.RelativePath,
			md5:          hash,
			rawBytes:     src.Bytes,
			archiveBytes: blob.ArchiveBytes,
		})
	}

	// Stage the bundled archive.
	entries := make([]ArchiveEntry, len(sources))
	for i, src := range sources {
		entries[i] = ArchiveEntry{Path: src.RelativePath, SourcePath: src.AbsolutePath}
	}
	archiveBytes, archiveMD5, err := m.archive.BuildVersionArchive(id, entries)
	if err != nil {
		return nil, err
	}

	// Commit every row at once. Readers never observe a version with a
	// partial file set.
	err = m.index.WithIngest(func(tx IngestTx) error {
		if err := tx.InsertVersion(id, createdAt); err != nil {
			return err
		}
		for _, blob := range blobs {
			if err := tx.InsertFile(blob.MD5, blob.Bytes, blob.ArchiveBytes); err != nil {
				return err
			}
		}
		for _, f := range files {
			if err := tx.InsertVersionFile(id, f.path, f.md5); err != nil {
				return err
			}
		}
		return tx.FinalizeVersionArchive(id, archiveBytes, archiveMD5)
	})
	if err != nil {
		return nil, fmt.Errorf("committing version %q: %w", id, err)
	}

	m.logger.Info("version ingested", "op", opID, "version", id, "archive_bytes", archiveBytes, "archive_md5", archiveMD5)
	return m.GetVersionManifest(id)
}
