package update

import "io"

// Store provides durable blob storage for download artifacts. All
// operations use io.Reader/io.ReadCloser for streaming so large release
// files never have to fit in memory.
//
// Keys are slash-separated relative paths under the download root, the
// same paths that appear in download URLs.
type Store interface {
	// Has reports whether a blob exists for the given key.
	Has(key string) (bool, error)

	// Size returns the stored size of the blob for the given key.
	Size(key string) (int64, error)

	// Put stores a blob under the given key, replacing any existing
	// blob. size is the number of bytes that will be read from r.
	Put(key string, r io.Reader, size int64) error

	// Open returns a reader over the blob for the given key. The caller
	// must close it.
	Open(key string) (io.ReadCloser, error)

	// ValidateSetup verifies that the store is accessible and properly
	// configured.
	ValidateSetup() error
}

// BlobKey returns the storage key for a deduplicated single-file archive.
func BlobKey(md5 string) string {
	return "hashed_files/" + md5 + ".zip"
}

// ArchiveKey returns the storage key for a version's bundled archive.
func ArchiveKey(versionID string) string {
	return "version_zips/" + versionID + ".zip"
}
