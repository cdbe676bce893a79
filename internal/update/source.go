package update

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// SourceFile is one file discovered under a release directory.
type SourceFile struct {
	RelativePath string // slash-separated path within the release
	AbsolutePath string
	Bytes        int64
}

// ListSourceFiles discovers the regular files under root in lexical
// order. The order is deterministic so repeated ingestions of the same
// tree produce identical archives.
func ListSourceFiles(root string) ([]SourceFile, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving release root: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat release root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("release root is not a directory: %s", absRoot)
	}

	var files []SourceFile
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return fmt.Errorf("calculating relative path: %w", err)
		}
		files = append(files, SourceFile{
			RelativePath: filepath.ToSlash(rel),
			AbsolutePath: p,
			Bytes:        fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking release directory: %w", err)
	}

	return files, nil
}

// HashFile returns the hex MD5 digest of the file's raw bytes. MD5 is
// the content-address of the files table; its strength as a dedup key is
// an assumption inherited from the persisted schema.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file for hashing: %w", err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
