// Package snapshot writes passphrase-encrypted copies of the version
// index for offsite backup. The copy is taken with the index's own
// snapshot mechanism and encrypted with age's scrypt-based passphrase
// encryption.
package snapshot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"github.com/lordkekz/KosmikAutoUpdate/internal/update"
)

// Write snapshots the index and writes the encrypted copy to outPath.
func Write(index update.Index, outPath, passphrase string) error {
	tmp, err := os.CreateTemp("", "kosmik-snapshot-*.db")
	if err != nil {
		return fmt.Errorf("creating snapshot temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	// VACUUM INTO refuses to overwrite; hand it a fresh path.
	os.Remove(tmpPath)
	defer os.Remove(tmpPath)

	if err := index.SnapshotTo(tmpPath); err != nil {
		return err
	}

	src, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer src.Close()

	return encryptTo(src, outPath, passphrase)
}

// Restore decrypts an encrypted snapshot into a plain index database
// file at dbPath. Fails if dbPath already exists.
func Restore(snapshotPath, dbPath, passphrase string) error {
	if _, err := os.Stat(dbPath); err == nil {
		return fmt.Errorf("refusing to overwrite existing index at %s", dbPath)
	}

	src, err := os.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer src.Close()

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt identity: %w", err)
	}

	plain, err := age.Decrypt(src, identity)
	if err != nil {
		return fmt.Errorf("decrypting snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	dst, err := os.OpenFile(dbPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating index file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, plain); err != nil {
		return fmt.Errorf("writing index file: %w", err)
	}
	return nil
}

// encryptTo writes the age-encrypted contents of r to outPath.
func encryptTo(r io.Reader, outPath, passphrase string) error {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	defer out.Close()

	w, err := age.Encrypt(out, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}

	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("encrypting snapshot: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted snapshot: %w", err)
	}
	return nil
}
