package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/router-for-me/authflow/sdk/authflow"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS fingerprints (
	scope      TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLiteDB owns a SQLite database holding fingerprints for many scopes.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err = db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err = db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init fingerprints schema: %w", err)
	}
	return &SQLiteDB{db: db}, nil
}

// Scope returns the store for one scope.
func (d *SQLiteDB) Scope(scope string) *SQLiteStore {
	if scope == "" {
		scope = authflow.DefaultStorageKey
	}
	return &SQLiteStore{db: d.db, scope: scope}
}

// Close closes the database.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

// SQLiteStore is the fingerprint slot of one scope in a SQLiteDB.
type SQLiteStore struct {
	db    *sql.DB
	scope string
}

// Get implements authflow.FingerprintStore.
func (s *SQLiteStore) Get(ctx context.Context) (*authflow.Fingerprint, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM fingerprints WHERE scope = ?`, s.scope).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sqlite store %s: %w", s.scope, authflow.ErrFingerprintNotFound)
		}
		return nil, fmt.Errorf("sqlite store %s: %w", s.scope, err)
	}
	return authflow.DecodeFingerprint(payload)
}

// Set implements authflow.FingerprintStore.
func (s *SQLiteStore) Set(ctx context.Context, fingerprint *authflow.Fingerprint) error {
	payload, err := authflow.EncodeFingerprint(fingerprint)
	if err != nil {
		return fmt.Errorf("sqlite store: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fingerprints (scope, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		s.scope, payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite store %s: %w", s.scope, err)
	}
	return nil
}

// Clear implements authflow.FingerprintClearer.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM fingerprints WHERE scope = ?`, s.scope); err != nil {
		return fmt.Errorf("sqlite store %s: %w", s.scope, err)
	}
	return nil
}

// Take implements authflow.FingerprintTaker with DELETE ... RETURNING.
func (s *SQLiteStore) Take(ctx context.Context) (*authflow.Fingerprint, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `DELETE FROM fingerprints WHERE scope = ? RETURNING payload`, s.scope).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sqlite store %s: %w", s.scope, authflow.ErrFingerprintNotFound)
		}
		return nil, fmt.Errorf("sqlite store %s: %w", s.scope, err)
	}
	return authflow.DecodeFingerprint(payload)
}
