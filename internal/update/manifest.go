package update

import "time"

// ManifestFile describes one file within a version manifest.
type ManifestFile struct {
	MD5          string
	Bytes        int64
	ArchiveBytes int64
}

// Manifest is the full description of a version: its metadata plus the
// file tree keyed by path. The HTTP adapter decorates it with download
// URLs before serialization.
type Manifest struct {
	VersionID    string
	Date         time.Time
	ArchiveBytes int64
	ArchiveMD5   string
	Files        map[string]ManifestFile
}
