package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/router-for-me/authflow/sdk/authflow"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS authflow_fingerprints (
	scope      TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PgxQuerier is the subset of pgx used by PostgresStore. *pgxpool.Pool and *pgx.Conn satisfy it.
type PgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OpenPostgres connects a pool to dsn and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if err = MigratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// MigratePostgres creates the fingerprint table if it does not exist.
func MigratePostgres(ctx context.Context, db PgxQuerier) error {
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("init authflow_fingerprints schema: %w", err)
	}
	return nil
}

// PostgresStore is the fingerprint slot of one scope in PostgreSQL.
type PostgresStore struct {
	db    PgxQuerier
	scope string
}

// NewPostgresStore returns the slot for scope.
func NewPostgresStore(db PgxQuerier, scope string) *PostgresStore {
	if scope == "" {
		scope = authflow.DefaultStorageKey
	}
	return &PostgresStore{db: db, scope: scope}
}

// Get implements authflow.FingerprintStore.
func (s *PostgresStore) Get(ctx context.Context) (*authflow.Fingerprint, error) {
	var payload []byte
	err := s.db.QueryRow(ctx, `SELECT payload FROM authflow_fingerprints WHERE scope = $1`, s.scope).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres store %s: %w", s.scope, authflow.ErrFingerprintNotFound)
		}
		return nil, fmt.Errorf("postgres store %s: %w", s.scope, err)
	}
	return authflow.DecodeFingerprint(payload)
}

// Set implements authflow.FingerprintStore.
func (s *PostgresStore) Set(ctx context.Context, fingerprint *authflow.Fingerprint) error {
	payload, err := authflow.EncodeFingerprint(fingerprint)
	if err != nil {
		return fmt.Errorf("postgres store: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO authflow_fingerprints (scope, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (scope) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`,
		s.scope, payload)
	if err != nil {
		return fmt.Errorf("postgres store %s: %w", s.scope, err)
	}
	return nil
}

// Clear implements authflow.FingerprintClearer.
func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM authflow_fingerprints WHERE scope = $1`, s.scope); err != nil {
		return fmt.Errorf("postgres store %s: %w", s.scope, err)
	}
	return nil
}

// Take implements authflow.FingerprintTaker with DELETE ... RETURNING.
func (s *PostgresStore) Take(ctx context.Context) (*authflow.Fingerprint, error) {
	var payload []byte
	err := s.db.QueryRow(ctx, `DELETE FROM authflow_fingerprints WHERE scope = $1 RETURNING payload`, s.scope).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres store %s: %w", s.scope, authflow.ErrFingerprintNotFound)
		}
		return nil, fmt.Errorf("postgres store %s: %w", s.scope, err)
	}
	return authflow.DecodeFingerprint(payload)
}
