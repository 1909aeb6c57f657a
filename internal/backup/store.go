// Package backup provides the local persisted state: draft backup records
// and the content-hash file-metadata cache, stored in a SQLite database.
// It is a best-effort convenience cache, never the source of truth.
package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/statichq/gitcms/internal/entry"
)

// AnonymousKey addresses the unnamed backup used for drafts that have no
// slug yet. It is purged on every application load.
const AnonymousKey = "backup"

// EntryKey returns the backup key for a collection and slug. An empty slug
// yields the collection's "most recent new entry" alias key.
func EntryKey(collection, slug string) string {
	if slug == "" {
		return "backup::" + collection
	}
	return "backup::" + collection + "::" + slug
}

// Metadata is a cached commit lookup for one content hash.
type Metadata struct {
	Author    string    `json:"author"`
	UpdatedOn time.Time `json:"updatedOn"`
}

// Store is a SQLite-backed key-value store. Callers serialize write access
// through the backend's backup lock; the store itself only guarantees
// statement-level atomicity.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures the store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Open opens (or creates) the backup database at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open backup db: %w", err)
	}

	store := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS backups (
	key    TEXT PRIMARY KEY,
	record BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS file_metadata (
	sha    TEXT PRIMARY KEY,
	record BLOB NOT NULL
);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate backup db: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetBackup writes (or overwrites) a backup record.
func (s *Store) SetBackup(ctx context.Context, key string, record *entry.BackupEntry) error {
	blob, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal backup: %w", err)
	}

	s.logger.DebugContext(ctx, "writing backup", "key", key, "size", len(blob))
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO backups (key, record) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET record = excluded.record`, key, blob)
	if err != nil {
		return fmt.Errorf("write backup %s: %w", key, err)
	}
	return nil
}

// GetBackup reads a backup record. A missing key returns (nil, nil).
func (s *Store) GetBackup(ctx context.Context, key string) (*entry.BackupEntry, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT record FROM backups WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup %s: %w", key, err)
	}

	var record entry.BackupEntry
	if err := json.Unmarshal(blob, &record); err != nil {
		return nil, fmt.Errorf("unmarshal backup %s: %w", key, err)
	}
	return &record, nil
}

// DeleteBackup removes a backup record. Deleting a missing key is not an
// error.
func (s *Store) DeleteBackup(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM backups WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete backup %s: %w", key, err)
	}
	return nil
}

// SetFileMetadata caches the commit metadata for a content hash.
func (s *Store) SetFileMetadata(ctx context.Context, sha string, meta Metadata) error {
	blob, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO file_metadata (sha, record) VALUES (?, ?)
		 ON CONFLICT(sha) DO UPDATE SET record = excluded.record`, sha, blob)
	if err != nil {
		return fmt.Errorf("write metadata %s: %w", sha, err)
	}
	return nil
}

// GetFileMetadata reads cached commit metadata. A missing hash returns
// (nil, nil).
func (s *Store) GetFileMetadata(ctx context.Context, sha string) (*Metadata, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT record FROM file_metadata WHERE sha = ?`, sha).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata %s: %w", sha, err)
	}

	var meta Metadata
	if err := json.Unmarshal(blob, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata %s: %w", sha, err)
	}
	return &meta, nil
}
