package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger stores balances and entries in Postgres. Atomicity comes
// from a single transaction per debit: the account row is locked with
// SELECT ... FOR UPDATE, the balance checked and updated, and the ledger
// entry inserted before commit. Concurrent debits against one account
// serialize on the row lock.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger wraps an existing connection pool.
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

// Debit implements Ledger.
func (l *PostgresLedger) Debit(ctx context.Context, accountID string, amount int, submissionID, reason string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("beginning debit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int
	err = tx.QueryRow(ctx,
		`SELECT credit_balance FROM accounts WHERE id = $1 FOR UPDATE`,
		accountID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
		}
		return 0, fmt.Errorf("locking account %s: %w", accountID, err)
	}

	if amount > balance {
		return balance, fmt.Errorf("%w: need %d, have %d", ErrInsufficientCredits, amount, balance)
	}

	newBalance := balance - amount
	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET credit_balance = $1, updated_at = now() WHERE id = $2`,
		newBalance, accountID,
	); err != nil {
		return 0, fmt.Errorf("updating balance for %s: %w", accountID, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (id, account_id, submission_id, delta, balance, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New().String(), accountID, nullable(submissionID), -amount, newBalance, reason, time.Now().UTC(),
	); err != nil {
		return 0, fmt.Errorf("appending ledger entry for %s: %w", accountID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing debit for %s: %w", accountID, err)
	}
	return newBalance, nil
}

// Credit implements Ledger.
func (l *PostgresLedger) Credit(ctx context.Context, accountID string, amount int, reason string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("beginning credit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int
	err = tx.QueryRow(ctx,
		`SELECT credit_balance FROM accounts WHERE id = $1 FOR UPDATE`,
		accountID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
		}
		return 0, fmt.Errorf("locking account %s: %w", accountID, err)
	}

	newBalance := balance + amount
	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET credit_balance = $1, updated_at = now() WHERE id = $2`,
		newBalance, accountID,
	); err != nil {
		return 0, fmt.Errorf("updating balance for %s: %w", accountID, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (id, account_id, delta, balance, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), accountID, amount, newBalance, reason, time.Now().UTC(),
	); err != nil {
		return 0, fmt.Errorf("appending ledger entry for %s: %w", accountID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing credit for %s: %w", accountID, err)
	}
	return newBalance, nil
}

// Balance implements Ledger.
func (l *PostgresLedger) Balance(ctx context.Context, accountID string) (int, error) {
	var balance int
	err := l.pool.QueryRow(ctx,
		`SELECT credit_balance FROM accounts WHERE id = $1`,
		accountID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
		}
		return 0, fmt.Errorf("querying balance for %s: %w", accountID, err)
	}
	return balance, nil
}

// History implements Ledger.
func (l *PostgresLedger) History(ctx context.Context, accountID string) ([]Entry, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, account_id, COALESCE(submission_id, ''), delta, balance, reason, created_at
		 FROM ledger_entries WHERE account_id = $1 ORDER BY created_at ASC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying ledger for %s: %w", accountID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.SubmissionID, &e.Delta, &e.Balance, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
