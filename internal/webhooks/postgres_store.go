package webhooks

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists webhook subscriptions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by the given database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the webhook_subscriptions table if it does not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS webhook_subscriptions (
			id TEXT PRIMARY KEY,
			address TEXT NOT NULL,
			url TEXT NOT NULL,
			event_types TEXT[] NOT NULL DEFAULT '{}',
			secret TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_webhook_subscriptions_address
			ON webhook_subscriptions(address);
	`)
	if err != nil {
		return fmt.Errorf("migrate webhook_subscriptions: %w", err)
	}
	return nil
}

func (p *PostgresStore) Create(ctx context.Context, s *Subscription) error {
	eventTypes := s.EventTypes
	if eventTypes == nil {
		eventTypes = []string{}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO webhook_subscriptions (id, address, url, event_types, secret, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		s.ID, s.Address, s.URL, pq.Array(eventTypes), s.Secret, s.Active, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook subscription: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListByAddress(ctx context.Context, address string) ([]*Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, address, url, event_types, active, created_at
		FROM webhook_subscriptions WHERE address = $1 ORDER BY created_at`, address)
	if err != nil {
		return nil, fmt.Errorf("list webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*Subscription
	for rows.Next() {
		var s Subscription
		var eventTypes pq.StringArray
		if err := rows.Scan(&s.ID, &s.Address, &s.URL, &eventTypes, &s.Active, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.EventTypes = []string(eventTypes)
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ListActive(ctx context.Context) ([]*Subscription, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, address, url, event_types, secret, active, created_at
		FROM webhook_subscriptions WHERE active`)
	if err != nil {
		return nil, fmt.Errorf("list active webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*Subscription
	for rows.Next() {
		var s Subscription
		var eventTypes pq.StringArray
		if err := rows.Scan(&s.ID, &s.Address, &s.URL, &eventTypes, &s.Secret, &s.Active, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.EventTypes = []string(eventTypes)
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Delete(ctx context.Context, id, address string) error {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM webhook_subscriptions WHERE id = $1 AND address = $2`, id, address)
	if err != nil {
		return fmt.Errorf("delete webhook subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
