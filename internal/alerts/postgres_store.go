package alerts

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists alerts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by the given database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the shield_alerts table if it does not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS shield_alerts (
			id TEXT PRIMARY KEY,
			agent_wallet TEXT NOT NULL,
			kind TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			rule TEXT NOT NULL DEFAULT '',
			tx_signature TEXT NOT NULL DEFAULT '',
			value BIGINT NOT NULL DEFAULT 0,
			anomaly_count SMALLINT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_shield_alerts_wallet_created
			ON shield_alerts(agent_wallet, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("migrate shield_alerts: %w", err)
	}
	return nil
}

func (p *PostgresStore) Create(ctx context.Context, a *Alert) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO shield_alerts
			(id, agent_wallet, kind, reason, rule, tx_signature, value, anomaly_count, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.AgentWallet, a.Kind, a.Reason, a.Rule, a.TxSignature,
		int64(a.Value), a.AnomalyCount, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListByWallet(ctx context.Context, agentWallet string, limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, agent_wallet, kind, reason, rule, tx_signature, value, anomaly_count, created_at
		FROM shield_alerts
		WHERE agent_wallet = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, agentWallet, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []*Alert
	for rows.Next() {
		var a Alert
		var value int64
		if err := rows.Scan(&a.ID, &a.AgentWallet, &a.Kind, &a.Reason, &a.Rule,
			&a.TxSignature, &value, &a.AnomalyCount, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Value = uint64(value)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (p *PostgresStore) DeleteByWallet(ctx context.Context, agentWallet string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM shield_alerts WHERE agent_wallet = $1`, agentWallet)
	return err
}
