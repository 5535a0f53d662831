// Package ledger is the credit balance store: an atomic per-account balance
// plus an append-only transaction log. The core correctness property of the
// whole system lives here: a debit and its ledger entry happen together or
// not at all, and an account's live balance always equals the sum of its
// entry deltas.
package ledger

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors.
var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUnknownAccount      = errors.New("unknown account")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// Entry is one immutable record of a balance change. Debits carry a
// negative delta, credits a positive one.
type Entry struct {
	ID           string    `json:"id"`
	AccountID    string    `json:"account_id"`
	SubmissionID string    `json:"submission_id,omitempty"`
	Delta        int       `json:"delta"`
	Balance      int       `json:"balance"` // Balance after applying the delta
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// Ledger is the credit accounting contract. Debit calls for the same
// account are linearizable: two concurrent debits never both succeed when
// only one has sufficient balance.
type Ledger interface {
	// Debit removes amount credits from the account and appends exactly one
	// entry, atomically. Fails with ErrInsufficientCredits (and appends
	// nothing) when amount exceeds the current balance.
	Debit(ctx context.Context, accountID string, amount int, submissionID, reason string) (newBalance int, err error)

	// Credit adds amount credits to the account and appends exactly one entry.
	Credit(ctx context.Context, accountID string, amount int, reason string) (newBalance int, err error)

	// Balance returns the account's current balance.
	Balance(ctx context.Context, accountID string) (int, error)

	// History returns the account's entries in chronological order.
	History(ctx context.Context, accountID string) ([]Entry, error)
}
