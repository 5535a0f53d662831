package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// DB wraps a PostgreSQL connection pool for submission persistence.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, dsn string) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database DSN: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL")
	return &DB{pool: pool}, nil
}

// Pool exposes the underlying pool so the Postgres ledger can share it.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Healthy checks database connectivity.
func (db *DB) Healthy(ctx context.Context) bool {
	return db.pool.Ping(ctx) == nil
}

// Migrate creates the schema when it does not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id             TEXT PRIMARY KEY,
			credit_balance INTEGER NOT NULL DEFAULT 0 CHECK (credit_balance >= 0),
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id            TEXT PRIMARY KEY,
			account_id    TEXT NOT NULL REFERENCES accounts(id),
			submission_id TEXT,
			delta         INTEGER NOT NULL,
			balance       INTEGER NOT NULL,
			reason        TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger_entries (account_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS submissions (
			id            TEXT PRIMARY KEY,
			account_id    TEXT NOT NULL,
			category      TEXT NOT NULL,
			target        TEXT NOT NULL,
			economy_mode  TEXT NOT NULL,
			state         TEXT NOT NULL,
			credits_used  INTEGER NOT NULL DEFAULT 0,
			error_kind    TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL,
			started_at    TIMESTAMPTZ,
			completed_at  TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_account ON submissions (account_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS issues (
			id             TEXT PRIMARY KEY,
			submission_id  TEXT NOT NULL REFERENCES submissions(id),
			severity       TEXT NOT NULL,
			category       TEXT NOT NULL,
			message        TEXT NOT NULL,
			suggested_fix  TEXT NOT NULL DEFAULT '',
			fix_status     TEXT NOT NULL DEFAULT 'none',
			fix_confidence INTEGER,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS metrics (
			id            TEXT PRIMARY KEY,
			submission_id TEXT NOT NULL REFERENCES submissions(id),
			name          TEXT NOT NULL,
			value         DOUBLE PRECISION NOT NULL,
			unit          TEXT NOT NULL DEFAULT '',
			threshold     DOUBLE PRECISION,
			passed        BOOLEAN
		)`,
		`CREATE TABLE IF NOT EXISTS fix_attempts (
			id            TEXT PRIMARY KEY,
			issue_id      TEXT NOT NULL,
			submission_id TEXT NOT NULL REFERENCES submissions(id),
			fixer         TEXT NOT NULL,
			confidence    INTEGER NOT NULL,
			applied       BOOLEAN NOT NULL,
			patch         TEXT NOT NULL DEFAULT '',
			error         TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}

// EnsureAccount creates an account with an opening balance if it is missing.
func (db *DB) EnsureAccount(ctx context.Context, accountID string, openingBalance int) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO accounts (id, credit_balance) VALUES ($1, $2)
		 ON CONFLICT (id) DO NOTHING`,
		accountID, openingBalance,
	)
	if err != nil {
		return fmt.Errorf("ensuring account %s: %w", accountID, err)
	}
	return nil
}

// UpsertSubmission inserts or updates a submission row.
func (db *DB) UpsertSubmission(ctx context.Context, rec *SubmissionRecord) error {
	_, err := db.pool.Exec(ctx, `
		INSERT INTO submissions (id, account_id, category, target, economy_mode, state,
			credits_used, error_kind, error_message, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			credits_used = EXCLUDED.credits_used,
			error_kind = EXCLUDED.error_kind,
			error_message = EXCLUDED.error_message,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at`,
		rec.ID, rec.AccountID, rec.Category, rec.Target, rec.EconomyMode, rec.State,
		rec.CreditsUsed, rec.ErrKind, truncateForDB(rec.ErrMessage, 4096),
		rec.CreatedAt, rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting submission %s: %w", rec.ID, err)
	}
	return nil
}

// InsertIssues stores issue rows.
func (db *DB) InsertIssues(ctx context.Context, issues []IssueRecord) error {
	for _, iss := range issues {
		if iss.ID == "" {
			iss.ID = uuid.New().String()
		}
		_, err := db.pool.Exec(ctx, `
			INSERT INTO issues (id, submission_id, severity, category, message,
				suggested_fix, fix_status, fix_confidence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				fix_status = EXCLUDED.fix_status,
				fix_confidence = EXCLUDED.fix_confidence`,
			iss.ID, iss.SubmissionID, iss.Severity, iss.Category,
			truncateForDB(iss.Message, 65535), truncateForDB(iss.SuggestedFix, 65535),
			iss.FixStatus, iss.FixConfidence,
		)
		if err != nil {
			return fmt.Errorf("inserting issue %s: %w", iss.ID, err)
		}
	}
	return nil
}

// InsertMetrics stores metric rows.
func (db *DB) InsertMetrics(ctx context.Context, metrics []MetricRecord) error {
	for _, m := range metrics {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		_, err := db.pool.Exec(ctx, `
			INSERT INTO metrics (id, submission_id, name, value, unit, threshold, passed)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING`,
			m.ID, m.SubmissionID, m.Name, m.Value, m.Unit, m.Threshold, m.Passed,
		)
		if err != nil {
			return fmt.Errorf("inserting metric %s: %w", m.Name, err)
		}
	}
	return nil
}

// InsertFixAttempts stores fix-attempt rows. Attempts are append-only.
func (db *DB) InsertFixAttempts(ctx context.Context, attempts []FixAttemptRecord) error {
	for _, att := range attempts {
		_, err := db.pool.Exec(ctx, `
			INSERT INTO fix_attempts (id, issue_id, submission_id, fixer, confidence,
				applied, patch, error, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING`,
			att.ID, att.IssueID, att.SubmissionID, att.Fixer, att.Confidence,
			att.Applied, truncateForDB(att.Patch, 65535), att.Error, att.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting fix attempt %s: %w", att.ID, err)
		}
	}
	return nil
}

// GetSubmission retrieves a single submission by ID.
func (db *DB) GetSubmission(ctx context.Context, id string) (*SubmissionRecord, error) {
	var rec SubmissionRecord
	err := db.pool.QueryRow(ctx, `
		SELECT id, account_id, category, target, economy_mode, state,
			credits_used, error_kind, error_message, created_at, started_at, completed_at
		FROM submissions WHERE id = $1`, id,
	).Scan(
		&rec.ID, &rec.AccountID, &rec.Category, &rec.Target, &rec.EconomyMode, &rec.State,
		&rec.CreditsUsed, &rec.ErrKind, &rec.ErrMessage, &rec.CreatedAt, &rec.StartedAt, &rec.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("querying submission %s: %w", id, err)
	}
	return &rec, nil
}

// GetIssues retrieves the issues for a submission.
func (db *DB) GetIssues(ctx context.Context, submissionID string) ([]IssueRecord, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT id, submission_id, severity, category, message, suggested_fix,
			fix_status, fix_confidence, created_at
		FROM issues WHERE submission_id = $1 ORDER BY created_at ASC`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("querying issues for %s: %w", submissionID, err)
	}
	defer rows.Close()

	var results []IssueRecord
	for rows.Next() {
		var iss IssueRecord
		if err := rows.Scan(&iss.ID, &iss.SubmissionID, &iss.Severity, &iss.Category,
			&iss.Message, &iss.SuggestedFix, &iss.FixStatus, &iss.FixConfidence, &iss.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning issue row: %w", err)
		}
		results = append(results, iss)
	}
	return results, rows.Err()
}

// ListSubmissions queries submissions with optional filters.
func (db *DB) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]SubmissionRecord, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := db.pool.Query(ctx, `
		SELECT id, account_id, category, target, economy_mode, state,
			credits_used, error_kind, created_at, completed_at
		FROM submissions
		WHERE ($1 = '' OR account_id = $1)
		  AND ($2 = '' OR category = $2)
		  AND ($3 = '' OR state = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`,
		filter.AccountID, filter.Category, filter.State, limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying submissions: %w", err)
	}
	defer rows.Close()

	var results []SubmissionRecord
	for rows.Next() {
		var rec SubmissionRecord
		if err := rows.Scan(
			&rec.ID, &rec.AccountID, &rec.Category, &rec.Target, &rec.EconomyMode, &rec.State,
			&rec.CreditsUsed, &rec.ErrKind, &rec.CreatedAt, &rec.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning submission row: %w", err)
		}
		results = append(results, rec)
	}

	return results, rows.Err()
}

func truncateForDB(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
