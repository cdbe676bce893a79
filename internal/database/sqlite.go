package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lordkekz/KosmikAutoUpdate/internal/database/migrations"
	"github.com/lordkekz/KosmikAutoUpdate/internal/update"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// timeLayout is the text encoding for datetime columns. Stored in UTC;
// lexicographic order matches chronological order, so the token purge
// can compare expirations in SQL.
const timeLayout = "2006-01-02 15:04:05"

// SQLiteIndex implements the update.Index interface using SQLite.
type SQLiteIndex struct {
	db   *sql.DB
	path string
}

var _ update.Index = (*SQLiteIndex)(nil)

// NewSQLiteIndex opens the index at path, creating it and running any
// pending schema migrations. path can be ":memory:" for tests.
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating index schema: %w", err)
	}

	return &SQLiteIndex{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection with the
// PRAGMAs the index relies on. Exported for tools and tests that need a
// properly configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection; keep the pool at one
	// so every query sees the same schema.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	return db, nil
}

// Channel operations

func (s *SQLiteIndex) ListChannels() ([]update.ChannelRecord, error) {
	rows, err := s.db.Query("SELECT name, version_id FROM channels ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}
	defer rows.Close()

	var channels []update.ChannelRecord
	for rows.Next() {
		var ch update.ChannelRecord
		if err := rows.Scan(&ch.Name, &ch.VersionID); err != nil {
			return nil, fmt.Errorf("scanning channel: %w", err)
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}
	return channels, nil
}

func (s *SQLiteIndex) ResolveChannel(name string) (*update.ChannelRecord, error) {
	ch := update.ChannelRecord{Name: name}
	err := s.db.QueryRow("SELECT version_id FROM channels WHERE name = ?", name).Scan(&ch.VersionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving channel: %w", err)
	}
	return &ch, nil
}

func (s *SQLiteIndex) UpsertChannel(name, versionID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := versionMustExist(tx, versionID); err != nil {
		return err
	}

	_, err = tx.Exec(`INSERT INTO channels (name, version_id) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET version_id = excluded.version_id`,
		name, versionID)
	if err != nil {
		return fmt.Errorf("upserting channel: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing channel: %w", err)
	}
	return nil
}

// Version operations

func (s *SQLiteIndex) GetVersion(versionID string) (*update.VersionRecord, error) {
	var (
		rec          update.VersionRecord
		created      string
		archiveBytes sql.NullInt64
		archiveMD5   sql.NullString
	)
	err := s.db.QueryRow(
		"SELECT version_id, ver_datetime, archive_bytes, archive_md5 FROM versions WHERE version_id = ?",
		versionID).Scan(&rec.VersionID, &created, &archiveBytes, &archiveMD5)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding version: %w", err)
	}

	rec.CreatedAt, err = time.ParseInLocation(timeLayout, created, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parsing version datetime: %w", err)
	}
	rec.ArchiveBytes = archiveBytes.Int64
	rec.ArchiveMD5 = archiveMD5.String
	return &rec, nil
}

func (s *SQLiteIndex) ListVersionFiles(versionID string) ([]update.VersionFileRecord, error) {
	rows, err := s.db.Query(`SELECT vf.path, vf.md5, f.bytes, f.archive_bytes
		FROM version_files vf
		JOIN files f ON f.md5 = vf.md5
		WHERE vf.version_id = ?
		ORDER BY vf.path`, versionID)
	if err != nil {
		return nil, fmt.Errorf("listing version files: %w", err)
	}
	defer rows.Close()

	var files []update.VersionFileRecord
	for rows.Next() {
		var f update.VersionFileRecord
		if err := rows.Scan(&f.Path, &f.MD5, &f.Bytes, &f.ArchiveBytes); err != nil {
			return nil, fmt.Errorf("scanning version file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing version files: %w", err)
	}
	return files, nil
}

// File operations

func (s *SQLiteIndex) FileInfo(md5 string) (*update.FileRecord, error) {
	rec := update.FileRecord{MD5: md5}
	err := s.db.QueryRow("SELECT bytes, archive_bytes FROM files WHERE md5 = ?", md5).
		Scan(&rec.Bytes, &rec.ArchiveBytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	return &rec, nil
}

// Ingestion

// WithIngest runs fn inside a single transaction so a version's rows
// become visible all at once, or not at all.
func (s *SQLiteIndex) WithIngest(fn func(tx update.IngestTx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting ingest transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&ingestTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing ingest transaction: %w", err)
	}
	return nil
}

type ingestTx struct {
	tx *sql.Tx
}

var _ update.IngestTx = (*ingestTx)(nil)

func (t *ingestTx) InsertVersion(versionID string, createdAt time.Time) error {
	var exists int
	err := t.tx.QueryRow("SELECT 1 FROM versions WHERE version_id = ?", versionID).Scan(&exists)
	if err == nil {
		return fmt.Errorf("%w: %q", update.ErrVersionExists, versionID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking for version: %w", err)
	}

	_, err = t.tx.Exec("INSERT INTO versions (version_id, ver_datetime) VALUES (?, ?)",
		versionID, createdAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("inserting version: %w", err)
	}
	return nil
}

func (t *ingestTx) InsertFile(md5 string, rawBytes, archiveBytes int64) error {
	_, err := t.tx.Exec(`INSERT INTO files (md5, bytes, archive_bytes) VALUES (?, ?, ?)
		ON CONFLICT(md5) DO NOTHING`,
		md5, rawBytes, archiveBytes)
	if err != nil {
		return fmt.Errorf("inserting file: %w", err)
	}
	return nil
}

func (t *ingestTx) InsertVersionFile(versionID, path, md5 string) error {
	if err := versionMustExist(t.tx, versionID); err != nil {
		return err
	}

	var exists int
	err := t.tx.QueryRow("SELECT 1 FROM files WHERE md5 = ?", md5).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %q", update.ErrUnknownFile, md5)
	}
	if err != nil {
		return fmt.Errorf("checking for file: %w", err)
	}

	_, err = t.tx.Exec("INSERT INTO version_files (version_id, path, md5) VALUES (?, ?, ?)",
		versionID, path, md5)
	if err != nil {
		return fmt.Errorf("inserting version file: %w", err)
	}
	return nil
}

func (t *ingestTx) FinalizeVersionArchive(versionID string, archiveBytes int64, archiveMD5 string) error {
	res, err := t.tx.Exec("UPDATE versions SET archive_bytes = ?, archive_md5 = ? WHERE version_id = ?",
		archiveBytes, archiveMD5, versionID)
	if err != nil {
		return fmt.Errorf("finalizing version archive: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalizing version archive: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", update.ErrUnknownVersion, versionID)
	}
	return nil
}

// Token operations

func (s *SQLiteIndex) GetToken(relativePath, ip string) (*update.TokenRecord, error) {
	var (
		rec        update.TokenRecord
		expiration string
	)
	err := s.db.QueryRow(
		"SELECT token, expiration FROM download_tokens WHERE relative_path = ? AND ip = ?",
		relativePath, ip).Scan(&rec.Token, &expiration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding token: %w", err)
	}

	rec.Expiration, err = time.ParseInLocation(timeLayout, expiration, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parsing token expiration: %w", err)
	}
	return &rec, nil
}

func (s *SQLiteIndex) PutToken(relativePath, ip, token string, expiration time.Time) error {
	// Replace-on-insert over the (relative_path, ip) primary key:
	// concurrent issuers for the same pair are last-writer-wins, which is
	// benign since both rows would be near-identical valid tokens.
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO download_tokens (relative_path, ip, token, expiration) VALUES (?, ?, ?, ?)",
		relativePath, ip, token, expiration.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("storing token: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) PurgeExpiredTokens(now time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM download_tokens WHERE expiration <= ?",
		now.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("purging tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purging tokens: %w", err)
	}
	return n, nil
}

// SnapshotTo writes a consistent copy of the index to the given path
// using VACUUM INTO, which snapshots without blocking readers.
func (s *SQLiteIndex) SnapshotTo(path string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("snapshotting index to %s: %w", path, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// querier is the subset of *sql.DB / *sql.Tx used by shared checks.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
}

// versionMustExist fails with ErrUnknownVersion if the version id has no
// row. Run inside the same transaction as the dependent write so the
// referential check and the write are atomic.
func versionMustExist(q querier, versionID string) error {
	var exists int
	err := q.QueryRow("SELECT 1 FROM versions WHERE version_id = ?", versionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %q", update.ErrUnknownVersion, versionID)
	}
	if err != nil {
		return fmt.Errorf("checking for version: %w", err)
	}
	return nil
}
