package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresKeyStore persists API keys in PostgreSQL.
type PostgresKeyStore struct {
	db *sql.DB
}

// NewPostgresKeyStore creates a store backed by the given database handle.
func NewPostgresKeyStore(db *sql.DB) *PostgresKeyStore {
	return &PostgresKeyStore{db: db}
}

// Migrate creates the api_keys table if it does not exist.
func (p *PostgresKeyStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS api_keys (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL,
			key_hash TEXT NOT NULL UNIQUE,
			created_at BIGINT NOT NULL,
			last_used BIGINT NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_api_keys_address ON api_keys(address);
	`)
	if err != nil {
		return fmt.Errorf("migrate api_keys: %w", err)
	}
	return nil
}

func (p *PostgresKeyStore) Create(ctx context.Context, k *APIKey) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, name, address, key_hash, created_at, last_used)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		k.ID, k.Name, k.Address, k.KeyHash, k.CreatedAt, k.LastUsed,
	)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

func (p *PostgresKeyStore) GetByHash(ctx context.Context, hash string) (*APIKey, error) {
	var k APIKey
	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, address, key_hash, created_at, last_used
		FROM api_keys WHERE key_hash = $1`, hash).
		Scan(&k.ID, &k.Name, &k.Address, &k.KeyHash, &k.CreatedAt, &k.LastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &k, nil
}

func (p *PostgresKeyStore) ListByAddress(ctx context.Context, address string) ([]*APIKey, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, address, key_hash, created_at, last_used
		FROM api_keys WHERE address = $1 ORDER BY created_at`, address)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var out []*APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.Address, &k.KeyHash, &k.CreatedAt, &k.LastUsed); err != nil {
			return nil, err
		}
		out = append(out, &k)
	}
	return out, rows.Err()
}

func (p *PostgresKeyStore) Delete(ctx context.Context, id, address string) error {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM api_keys WHERE id = $1 AND address = $2`, id, address)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (p *PostgresKeyStore) Touch(ctx context.Context, id string, when int64) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE api_keys SET last_used = $2 WHERE id = $1`, id, when)
	return err
}
