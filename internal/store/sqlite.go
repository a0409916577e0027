package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"idflow/internal/domain"
)

// SQLite stores keys in the local metastore's shared_store table. Suitable
// when both organizations run against the same host (dev and test setups);
// cross-organization deployments use one of the bucket backends.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps an opened metastore handle. The shared_store table is
// created by the goose migrations.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM shared_store WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("key %q not found", key)
	}
	if err != nil {
		return nil, fmt.Errorf("shared_store get %q: %w", key, err)
	}
	return value, nil
}

func (s *SQLite) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shared_store (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("shared_store put %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM shared_store WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("shared_store delete %q: %w", key, err)
	}
	return nil
}

var _ domain.SharedStore = (*SQLite)(nil)
