package accounts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// PostgresLedger persists account totals in Postgres. An applied_outcomes
// table keyed by request id makes ApplyOutcome exactly-once across restarts
// and concurrent resolvers.
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger wraps an open database handle (pgx stdlib driver).
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Migrate creates the ledger tables if they do not exist.
func (p *PostgresLedger) Migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
	id UUID PRIMARY KEY,
	points BIGINT NOT NULL DEFAULT 0,
	earnings BIGINT NOT NULL DEFAULT 0
)`,
		`CREATE TABLE IF NOT EXISTS applied_outcomes (
	request_id TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ DEFAULT now()
)`,
	}
	for _, stmt := range ddl {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate accounts: %w", err)
		}
	}
	return nil
}

// ApplyOutcome credits the owner once per request id. A second call with the
// same request id commits without touching the totals.
func (p *PostgresLedger) ApplyOutcome(ctx context.Context, owner *uuid.UUID, requestID string, points int, earnings int64) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`INSERT INTO applied_outcomes (request_id) VALUES ($1) ON CONFLICT (request_id) DO NOTHING`,
		requestID)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if inserted == 0 {
		return tx.Commit()
	}

	if owner != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO accounts (id, points, earnings) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET
	points = accounts.points + EXCLUDED.points,
	earnings = accounts.earnings + EXCLUDED.earnings`,
			*owner, points, earnings)
		if err != nil {
			return fmt.Errorf("credit account: %w", err)
		}
	}

	return tx.Commit()
}

// Totals reads the accrued points and earnings for an account.
func (p *PostgresLedger) Totals(ctx context.Context, owner uuid.UUID) (int, int64, error) {
	var points int
	var earnings int64
	row := p.db.QueryRowContext(ctx, `SELECT points, earnings FROM accounts WHERE id = $1`, owner)
	if err := row.Scan(&points, &earnings); err != nil {
		if err == sql.ErrNoRows {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("read account: %w", err)
	}
	return points, earnings, nil
}
