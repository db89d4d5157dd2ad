package shield

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists protection records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by the given database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the shields table if it does not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS shields (
			agent_wallet TEXT PRIMARY KEY,
			authority TEXT NOT NULL,
			max_transaction_value BIGINT NOT NULL DEFAULT 0,
			daily_spend_limit BIGINT NOT NULL DEFAULT 0,
			approval_threshold BIGINT NOT NULL DEFAULT 0,
			anomaly_threshold SMALLINT NOT NULL,
			time_window_seconds BIGINT NOT NULL DEFAULT 0,
			cooldown_seconds BIGINT NOT NULL DEFAULT 0,
			allowed_programs TEXT[] NOT NULL DEFAULT '{}',
			blocked_programs TEXT[] NOT NULL DEFAULT '{}',
			state SMALLINT NOT NULL DEFAULT 0,
			anomaly_count SMALLINT NOT NULL DEFAULT 0,
			total_transactions BIGINT NOT NULL DEFAULT 0,
			blocked_transactions BIGINT NOT NULL DEFAULT 0,
			last_triggered_at BIGINT NOT NULL DEFAULT 0,
			cooldown_ends_at BIGINT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_shields_authority ON shields(authority);
	`)
	if err != nil {
		return fmt.Errorf("migrate shields: %w", err)
	}
	return nil
}

const shieldColumns = `agent_wallet, authority,
	max_transaction_value, daily_spend_limit, approval_threshold,
	anomaly_threshold, time_window_seconds, cooldown_seconds,
	allowed_programs, blocked_programs,
	state, anomaly_count, total_transactions, blocked_transactions,
	last_triggered_at, cooldown_ends_at, created_at`

func (p *PostgresStore) Create(ctx context.Context, s *Shield) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO shields (`+shieldColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		s.AgentWallet, s.Authority,
		int64(s.Config.MaxTransactionValue), int64(s.Config.DailySpendLimit), int64(s.Config.ApprovalThreshold),
		s.Config.AnomalyThreshold, s.Config.TimeWindowSeconds, s.Config.CooldownSeconds,
		pq.Array(emptyIfNil(s.Config.AllowedPrograms)), pq.Array(emptyIfNil(s.Config.BlockedPrograms)),
		int(s.State), s.AnomalyCount, int64(s.TotalTransactions), int64(s.BlockedTransactions),
		s.LastTriggeredAt, s.CooldownEndsAt, s.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert shield: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, agentWallet string) (*Shield, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+shieldColumns+` FROM shields WHERE agent_wallet = $1`, agentWallet)
	return scanShield(row)
}

func (p *PostgresStore) Update(ctx context.Context, s *Shield) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE shields SET
			authority = $2,
			max_transaction_value = $3, daily_spend_limit = $4, approval_threshold = $5,
			anomaly_threshold = $6, time_window_seconds = $7, cooldown_seconds = $8,
			allowed_programs = $9, blocked_programs = $10,
			state = $11, anomaly_count = $12,
			total_transactions = $13, blocked_transactions = $14,
			last_triggered_at = $15, cooldown_ends_at = $16
		WHERE agent_wallet = $1`,
		s.AgentWallet, s.Authority,
		int64(s.Config.MaxTransactionValue), int64(s.Config.DailySpendLimit), int64(s.Config.ApprovalThreshold),
		s.Config.AnomalyThreshold, s.Config.TimeWindowSeconds, s.Config.CooldownSeconds,
		pq.Array(emptyIfNil(s.Config.AllowedPrograms)), pq.Array(emptyIfNil(s.Config.BlockedPrograms)),
		int(s.State), s.AnomalyCount, int64(s.TotalTransactions), int64(s.BlockedTransactions),
		s.LastTriggeredAt, s.CooldownEndsAt,
	)
	if err != nil {
		return fmt.Errorf("update shield: %w", err)
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

func (p *PostgresStore) Delete(ctx context.Context, agentWallet string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM shields WHERE agent_wallet = $1`, agentWallet)
	if err != nil {
		return fmt.Errorf("delete shield: %w", err)
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

func (p *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM shields`).Scan(&n)
	return n, err
}

func scanShield(row *sql.Row) (*Shield, error) {
	var s Shield
	var maxValue, dailyLimit, approval, totalTx, blockedTx int64
	var state int
	var allowed, blocked pq.StringArray

	err := row.Scan(
		&s.AgentWallet, &s.Authority,
		&maxValue, &dailyLimit, &approval,
		&s.Config.AnomalyThreshold, &s.Config.TimeWindowSeconds, &s.Config.CooldownSeconds,
		&allowed, &blocked,
		&state, &s.AnomalyCount, &totalTx, &blockedTx,
		&s.LastTriggeredAt, &s.CooldownEndsAt, &s.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan shield: %w", err)
	}

	s.Config.MaxTransactionValue = uint64(maxValue)
	s.Config.DailySpendLimit = uint64(dailyLimit)
	s.Config.ApprovalThreshold = uint64(approval)
	s.Config.AllowedPrograms = []string(allowed)
	s.Config.BlockedPrograms = []string(blocked)
	s.State = CircuitState(state)
	s.TotalTransactions = uint64(totalTx)
	s.BlockedTransactions = uint64(blockedTx)
	return &s, nil
}

func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
