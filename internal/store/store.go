// Package store persists the artifact index: one row per generated or edited
// image, keyed by local path, with the remote mirror's id/uri/expiry alongside.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nanobanana/imagemcp/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS images (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    thumb_path TEXT NOT NULL,
    mime_type TEXT NOT NULL,
    width INTEGER NOT NULL,
    height INTEGER NOT NULL,
    size_bytes INTEGER NOT NULL,
    remote_id TEXT,
    remote_uri TEXT,
    expires_at DATETIME,
    parent_remote_id TEXT,
    metadata TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_images_remote_id ON images(remote_id);
CREATE INDEX IF NOT EXISTS idx_images_parent_remote_id ON images(parent_remote_id);
CREATE INDEX IF NOT EXISTS idx_images_expires_at ON images(expires_at);
`

const recordColumns = `id, path, thumb_path, mime_type, width, height, size_bytes,
	remote_id, remote_uri, expires_at, parent_remote_id, metadata, created_at, updated_at`

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts a record, or updates the existing row with the same local
// path. Returns the row id.
func (s *Store) Upsert(ctx context.Context, rec *models.ImageRecord) (int64, error) {
	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return 0, fmt.Errorf("failed to encode metadata: %w", err)
	}
	now := time.Now().UTC()
	createdAt := now
	if !rec.CreatedAt.IsZero() {
		createdAt = rec.CreatedAt.UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var existingID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM images WHERE path = ?`, rec.Path).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		result, err := tx.ExecContext(ctx,
			`INSERT INTO images (path, thumb_path, mime_type, width, height, size_bytes,
			 remote_id, remote_uri, expires_at, parent_remote_id, metadata, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.Path, rec.ThumbPath, rec.MimeType, rec.Width, rec.Height, rec.SizeBytes,
			nullString(rec.RemoteID), nullString(rec.RemoteURI), nullTime(rec.ExpiresAt),
			nullString(rec.ParentRemoteID), string(metadataJSON), createdAt, now)
		if err != nil {
			return 0, err
		}
		existingID, err = result.LastInsertId()
		if err != nil {
			return 0, err
		}
	case err != nil:
		return 0, err
	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE images SET thumb_path = ?, mime_type = ?, width = ?, height = ?,
			 size_bytes = ?, remote_id = ?, remote_uri = ?, expires_at = ?,
			 parent_remote_id = ?, metadata = ?, updated_at = ?
			 WHERE id = ?`,
			rec.ThumbPath, rec.MimeType, rec.Width, rec.Height, rec.SizeBytes,
			nullString(rec.RemoteID), nullString(rec.RemoteURI), nullTime(rec.ExpiresAt),
			nullString(rec.ParentRemoteID), string(metadataJSON), now, existingID)
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return existingID, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*models.ImageRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM images WHERE id = ?`, id)
	return scanRecord(row)
}

func (s *Store) GetByPath(ctx context.Context, path string) (*models.ImageRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM images WHERE path = ?`, path)
	return scanRecord(row)
}

func (s *Store) GetByRemoteID(ctx context.Context, remoteID string) (*models.ImageRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM images WHERE remote_id = ?`, remoteID)
	return scanRecord(row)
}

// ListExpiring returns records whose remote mirror is expired or expires
// within the buffer, soonest first.
func (s *Store) ListExpiring(ctx context.Context, buffer time.Duration) ([]*models.ImageRecord, error) {
	cutoff := time.Now().UTC().Add(buffer)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM images
		 WHERE remote_id IS NOT NULL AND expires_at IS NOT NULL AND expires_at <= ?
		 ORDER BY expires_at ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Store) ListAll(ctx context.Context) ([]*models.ImageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM images ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// RefreshRemoteInfo replaces the remote identity of a record, typically after
// a re-upload. Returns false if no row with that id exists.
func (s *Store) RefreshRemoteInfo(ctx context.Context, id int64, remoteID, remoteURI string, expiresAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE images SET remote_id = ?, remote_uri = ?, expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		remoteID, remoteURI, expiresAt.UTC(), time.Now().UTC(), id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// ClearRemoteInfo nulls the remote mirror fields, leaving the local copy as
// the only surviving source.
func (s *Store) ClearRemoteInfo(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE images SET remote_id = NULL, remote_uri = NULL, expires_at = NULL, updated_at = ?
		 WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id)
	return err
}

// MissingLocalFiles returns records whose full-resolution file or thumbnail
// no longer exists on disk.
func (s *Store) MissingLocalFiles(ctx context.Context) ([]*models.ImageRecord, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var missing []*models.ImageRecord
	for _, rec := range all {
		if !fileExists(rec.Path) || !fileExists(rec.ThumbPath) {
			missing = append(missing, rec)
		}
	}
	return missing, nil
}

// PruneMissingLocalFiles deletes every record whose local files are gone.
// Returns the number of rows removed.
func (s *Store) PruneMissingLocalFiles(ctx context.Context) (int, error) {
	missing, err := s.MissingLocalFiles(ctx)
	if err != nil {
		return 0, err
	}
	for _, rec := range missing {
		if err := s.Delete(ctx, rec.ID); err != nil {
			return 0, err
		}
	}
	return len(missing), nil
}

type Stats struct {
	TotalImages    int
	TotalSizeBytes int64
	Mirrored       int
	Edited         int
	RemoteActive   int
	RemoteExpired  int
}

func (s *Store) UsageStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	var totalSize sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(size_bytes), 0),
		        COUNT(CASE WHEN remote_id IS NOT NULL THEN 1 END),
		        COUNT(CASE WHEN parent_remote_id IS NOT NULL THEN 1 END)
		 FROM images`).
		Scan(&stats.TotalImages, &totalSize, &stats.Mirrored, &stats.Edited)
	if err != nil {
		return nil, err
	}
	stats.TotalSizeBytes = totalSize.Int64

	now := time.Now().UTC()
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(CASE WHEN expires_at IS NOT NULL AND expires_at > ? THEN 1 END),
		        COUNT(CASE WHEN expires_at IS NOT NULL AND expires_at <= ? THEN 1 END)
		 FROM images`, now, now).
		Scan(&stats.RemoteActive, &stats.RemoteExpired)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.ImageRecord, error) {
	rec := &models.ImageRecord{}
	var remoteID, remoteURI, parentRemoteID, metadataJSON sql.NullString
	var expiresAt sql.NullTime

	err := row.Scan(&rec.ID, &rec.Path, &rec.ThumbPath, &rec.MimeType,
		&rec.Width, &rec.Height, &rec.SizeBytes,
		&remoteID, &remoteURI, &expiresAt, &parentRemoteID, &metadataJSON,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec.RemoteID = remoteID.String
	rec.RemoteURI = remoteURI.String
	rec.ParentRemoteID = parentRemoteID.String
	if expiresAt.Valid {
		t := expiresAt.Time
		rec.ExpiresAt = &t
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &rec.Metadata); err != nil {
			rec.Metadata = map[string]any{}
		}
	}
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]*models.ImageRecord, error) {
	var records []*models.ImageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
