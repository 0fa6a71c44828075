// Package storage - postgres.go implements Store on Postgres via
// database/sql and the pgx stdlib driver, matching the connection
// pattern cmd/clear-trades and scripts/run_migration.go already use
// (sql.Open("pgx", ...)). Schema lives in migrations/ and is applied by
// scripts/run_migration.go before the gateway starts; PostgresStore
// itself never runs DDL.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection pool to connStr and verifies
// connectivity with a ping.
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	if connStr == "" {
		return nil, fmt.Errorf("postgres store: connection string is required")
	}
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (ps *PostgresStore) Ping(ctx context.Context) error {
	if err := ps.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres store: ping: %w", err)
	}
	return nil
}

func (ps *PostgresStore) Close() error {
	if err := ps.db.Close(); err != nil {
		return fmt.Errorf("postgres store: close: %w", err)
	}
	return nil
}

func (ps *PostgresStore) SaveFill(ctx context.Context, f FillRecord) error {
	const q = `
		INSERT INTO fills
			(trade_id, account_id, symbol, action, quantity, price, commission, realized_pnl, account_equity, intended_live_account_id, filled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (trade_id) DO NOTHING`
	_, err := ps.db.ExecContext(ctx, q,
		f.TradeID, f.AccountID, f.Symbol, f.Action, f.Quantity,
		f.Price.String(), f.Commission.String(), f.RealizedPnL.String(), f.AccountEquity.String(),
		f.IntendedLiveAccountID, f.FilledAt)
	if err != nil {
		return fmt.Errorf("postgres store: save fill %s: %w", f.TradeID, err)
	}
	return nil
}

func (ps *PostgresStore) GetFillsByAccount(ctx context.Context, accountID string, from, to time.Time) ([]FillRecord, error) {
	const q = `
		SELECT trade_id, account_id, symbol, action, quantity, price, commission, realized_pnl, account_equity, intended_live_account_id, filled_at
		FROM fills
		WHERE account_id = $1 AND filled_at >= $2 AND filled_at < $3
		ORDER BY filled_at ASC`
	rows, err := ps.db.QueryContext(ctx, q, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get fills for %s: %w", accountID, err)
	}
	defer rows.Close()

	var out []FillRecord
	for rows.Next() {
		var f FillRecord
		var price, comm, realized, equity string
		if err := rows.Scan(&f.TradeID, &f.AccountID, &f.Symbol, &f.Action, &f.Quantity,
			&price, &comm, &realized, &equity, &f.IntendedLiveAccountID, &f.FilledAt); err != nil {
			return nil, fmt.Errorf("postgres store: scan fill: %w", err)
		}
		f.Price, _ = decimal.NewFromString(price)
		f.Commission, _ = decimal.NewFromString(comm)
		f.RealizedPnL, _ = decimal.NewFromString(realized)
		f.AccountEquity, _ = decimal.NewFromString(equity)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: iterate fills: %w", err)
	}
	return out, nil
}

func (ps *PostgresStore) GetDailyPnL(ctx context.Context, accountID string, date time.Time) (decimal.Decimal, error) {
	const q = `
		SELECT COALESCE(SUM(realized_pnl), 0)
		FROM fills
		WHERE account_id = $1 AND filled_at >= $2 AND filled_at < $2 + interval '1 day'`
	var sum string
	if err := ps.db.QueryRowContext(ctx, q, accountID, date.Truncate(24*time.Hour)).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("postgres store: daily pnl for %s: %w", accountID, err)
	}
	total, err := decimal.NewFromString(sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres store: parse daily pnl for %s: %w", accountID, err)
	}
	return total, nil
}

func (ps *PostgresStore) HasJournaled(ctx context.Context, tradeID string) (bool, error) {
	const q = `SELECT journaled FROM fills WHERE trade_id = $1`
	var journaled bool
	err := ps.db.QueryRowContext(ctx, q, tradeID).Scan(&journaled)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("postgres store: has journaled %s: %w", tradeID, err)
	}
	return journaled, nil
}

func (ps *PostgresStore) MarkJournaled(ctx context.Context, tradeID string) error {
	const q = `UPDATE fills SET journaled = true WHERE trade_id = $1`
	if _, err := ps.db.ExecContext(ctx, q, tradeID); err != nil {
		return fmt.Errorf("postgres store: mark journaled %s: %w", tradeID, err)
	}
	return nil
}

func (ps *PostgresStore) SaveViolation(ctx context.Context, v ViolationRecord) error {
	const q = `
		INSERT INTO violations (id, account_id, kind, severity, value, limit_value, occurred_at, acknowledged)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`
	_, err := ps.db.ExecContext(ctx, q,
		v.ID, v.AccountID, v.Kind, v.Severity, v.Value.String(), v.Limit.String(), v.OccurredAt, v.Acknowledged)
	if err != nil {
		return fmt.Errorf("postgres store: save violation %s: %w", v.ID, err)
	}
	return nil
}

func (ps *PostgresStore) GetViolations(ctx context.Context, accountID string, includeAcknowledged bool) ([]ViolationRecord, error) {
	q := `
		SELECT id, account_id, kind, severity, value, limit_value, occurred_at, acknowledged
		FROM violations WHERE account_id = $1`
	if !includeAcknowledged {
		q += ` AND acknowledged = false`
	}
	q += ` ORDER BY occurred_at DESC`

	rows, err := ps.db.QueryContext(ctx, q, accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get violations for %s: %w", accountID, err)
	}
	defer rows.Close()

	var out []ViolationRecord
	for rows.Next() {
		var v ViolationRecord
		var value, limit string
		if err := rows.Scan(&v.ID, &v.AccountID, &v.Kind, &v.Severity, &value, &limit, &v.OccurredAt, &v.Acknowledged); err != nil {
			return nil, fmt.Errorf("postgres store: scan violation: %w", err)
		}
		v.Value, _ = decimal.NewFromString(value)
		v.Limit, _ = decimal.NewFromString(limit)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: iterate violations: %w", err)
	}
	return out, nil
}

func (ps *PostgresStore) AcknowledgeViolation(ctx context.Context, id string) error {
	const q = `UPDATE violations SET acknowledged = true WHERE id = $1`
	res, err := ps.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("postgres store: acknowledge violation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres store: acknowledge violation %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("postgres store: violation %s not found", id)
	}
	return nil
}

func (ps *PostgresStore) SaveModeTransition(ctx context.Context, m ModeTransitionRecord) error {
	const q = `
		INSERT INTO mode_transitions (strategy_id, from_mode, to_mode, reason, window_win_rates, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := ps.db.ExecContext(ctx, q, m.StrategyID, m.From, m.To, m.Reason, pq.Array(m.WindowWinRates), m.OccurredAt)
	if err != nil {
		return fmt.Errorf("postgres store: save mode transition for %s: %w", m.StrategyID, err)
	}
	return nil
}

func (ps *PostgresStore) GetModeTransitions(ctx context.Context, strategyID string) ([]ModeTransitionRecord, error) {
	const q = `
		SELECT strategy_id, from_mode, to_mode, reason, window_win_rates, occurred_at
		FROM mode_transitions WHERE strategy_id = $1 ORDER BY occurred_at ASC`
	rows, err := ps.db.QueryContext(ctx, q, strategyID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: get mode transitions for %s: %w", strategyID, err)
	}
	defer rows.Close()

	var out []ModeTransitionRecord
	for rows.Next() {
		var m ModeTransitionRecord
		if err := rows.Scan(&m.StrategyID, &m.From, &m.To, &m.Reason, pq.Array(&m.WindowWinRates), &m.OccurredAt); err != nil {
			return nil, fmt.Errorf("postgres store: scan mode transition: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: iterate mode transitions: %w", err)
	}
	return out, nil
}
