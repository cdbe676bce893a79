package update

import "time"

// VersionRecord is a row in the versions table. ArchiveBytes and
// ArchiveMD5 describe the bundled per-version archive.
type VersionRecord struct {
	VersionID    string
	CreatedAt    time.Time
	ArchiveBytes int64
	ArchiveMD5   string
}

// FileRecord is a row in the files table: one per distinct content hash,
// shared by every version that references the same content.
type FileRecord struct {
	MD5          string
	Bytes        int64 // uncompressed size
	ArchiveBytes int64 // size of the stored single-entry archive
}

// VersionFileRecord maps a path within a version's file tree to its
// content hash, joined with the file's size metadata.
type VersionFileRecord struct {
	Path         string
	MD5          string
	Bytes        int64
	ArchiveBytes int64
}

// ChannelRecord is a named pointer to a version.
type ChannelRecord struct {
	Name      string
	VersionID string
}

// TokenRecord is a download grant for one (path, client) pair.
type TokenRecord struct {
	Token      string
	Expiration time.Time
}

// Index provides durable metadata storage for versions, files, channels
// and download tokens. Lookup methods return (nil, nil) on a miss; each
// mutation commits atomically.
type Index interface {
	// ListChannels returns all channels ordered by name.
	ListChannels() ([]ChannelRecord, error)

	// ResolveChannel returns the channel with the given name, or nil.
	ResolveChannel(name string) (*ChannelRecord, error)

	// GetVersion returns the version with the given id, or nil.
	GetVersion(versionID string) (*VersionRecord, error)

	// ListVersionFiles returns a version's file tree ordered by path.
	ListVersionFiles(versionID string) ([]VersionFileRecord, error)

	// FileInfo returns the file row for a content hash, or nil.
	FileInfo(md5 string) (*FileRecord, error)

	// UpsertChannel points a channel at a version, creating the channel
	// on first use. Fails with ErrUnknownVersion if the version is not
	// indexed.
	UpsertChannel(name, versionID string) error

	// WithIngest runs fn inside a single transaction. All row mutations
	// made through the IngestTx become visible together on commit, or
	// not at all.
	WithIngest(fn func(tx IngestTx) error) error

	// GetToken returns the download token for a (path, client) pair, or nil.
	GetToken(relativePath, ip string) (*TokenRecord, error)

	// PutToken stores a download token, replacing any existing row for
	// the same (path, client) pair.
	PutToken(relativePath, ip, token string, expiration time.Time) error

	// PurgeExpiredTokens deletes all tokens with expiration <= now and
	// returns the number of rows removed.
	PurgeExpiredTokens(now time.Time) (int64, error)

	// SnapshotTo writes a consistent copy of the index to the given path.
	SnapshotTo(path string) error

	// Close closes the underlying storage.
	Close() error
}

// IngestTx is the transactional scope used by version ingestion.
type IngestTx interface {
	// InsertVersion creates the version row. Fails with ErrVersionExists
	// if the id is already present.
	InsertVersion(versionID string, createdAt time.Time) error

	// InsertFile records a content hash with its size metadata. Inserting
	// a hash that is already present is a no-op.
	InsertFile(md5 string, rawBytes, archiveBytes int64) error

	// InsertVersionFile links a path within a version to a content hash.
	// Fails with ErrUnknownVersion or ErrUnknownFile if either side of
	// the link is missing.
	InsertVersionFile(versionID, path, md5 string) error

	// FinalizeVersionArchive records the bundled archive's size and hash
	// on the version row.
	FinalizeVersionArchive(versionID string, archiveBytes int64, archiveMD5 string) error
}
