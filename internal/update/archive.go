package update

import (
	"archive/zip"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/flate"
)

// ArchiveEntry is one file to place into a version's bundled archive.
type ArchiveEntry struct {
	Path       string // slash-separated path within the archive
	SourcePath string // absolute path on disk
}

// ArchiveBuilder composes per-version bundled archives and writes them
// to the store. The bundle is a complete, non-deduplicated copy of the
// version, convenient for single-request bulk download.
type ArchiveBuilder struct {
	store  Store
	logger Logger
}

// NewArchiveBuilder creates an ArchiveBuilder writing to the given store.
func NewArchiveBuilder(store Store, logger Logger) *ArchiveBuilder {
	return &ArchiveBuilder{store: store, logger: logger}
}

// BuildVersionArchive writes every entry into a single compressed archive
// keyed by versionID and returns the archive's byte size and MD5.
// Entries are written in the order given; callers pass them in lexical
// path order so the archive bytes are deterministic.
func (b *ArchiveBuilder) BuildVersionArchive(versionID string, entries []ArchiveEntry) (int64, string, error) {
	tmp, err := os.CreateTemp("", "kosmik-archive-*.zip")
	if err != nil {
		return 0, "", fmt.Errorf("creating archive temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	defer tmp.Close()

	zw := newZipWriter(tmp)
	for _, e := range entries {
		if err := addZipEntry(zw, e.Path, e.SourcePath); err != nil {
			return 0, "", err
		}
	}
	if err := zw.Close(); err != nil {
		return 0, "", fmt.Errorf("finalizing archive: %w", err)
	}

	size, sum, err := hashAndRewind(tmp)
	if err != nil {
		return 0, "", err
	}

	if err := b.store.Put(ArchiveKey(versionID), tmp, size); err != nil {
		return 0, "", fmt.Errorf("storing version archive: %w", err)
	}

	b.logger.Debug("version archive built", "version", versionID, "bytes", size, "md5", sum)
	return size, sum, nil
}

// newZipWriter returns a zip.Writer with klauspost's flate registered as
// the Deflate compressor.
func newZipWriter(w io.Writer) *zip.Writer {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.DefaultCompression)
	})
	return zw
}

// addZipEntry copies the file at sourcePath into the archive under name.
func addZipEntry(zw *zip.Writer, name, sourcePath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", sourcePath, err)
	}
	defer src.Close()

	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("creating archive entry %s: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("writing archive entry %s: %w", name, err)
	}
	return nil
}

// hashAndRewind returns the size and hex MD5 of the file's contents and
// leaves the offset at the start, ready for upload.
func hashAndRewind(f *os.File) (int64, string, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, "", fmt.Errorf("rewinding temp file: %w", err)
	}
	h := md5.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return 0, "", fmt.Errorf("hashing temp file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, "", fmt.Errorf("rewinding temp file: %w", err)
	}
	return size, hex.EncodeToString(h.Sum(nil)), nil
}
