package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger is an in-process Ledger keeping balances and entries under a
// per-account mutex. Used in development when no database is configured, and
// throughout the test suite.
type MemoryLedger struct {
	mu       sync.RWMutex // Guards the accounts map itself
	accounts map[string]*memoryAccount
}

type memoryAccount struct {
	mu      sync.Mutex // Serializes debits/credits for this account
	balance int
	entries []Entry
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{accounts: make(map[string]*memoryAccount)}
}

// CreateAccount registers an account with an opening balance. Idempotent
// creation is not supported; creating an existing account is an error.
func (l *MemoryLedger) CreateAccount(accountID string, openingBalance int) error {
	if openingBalance < 0 {
		return fmt.Errorf("opening balance must be non-negative, got %d", openingBalance)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.accounts[accountID]; exists {
		return fmt.Errorf("account %s already exists", accountID)
	}

	acct := &memoryAccount{balance: openingBalance}
	if openingBalance > 0 {
		acct.entries = append(acct.entries, Entry{
			ID:        uuid.New().String(),
			AccountID: accountID,
			Delta:     openingBalance,
			Balance:   openingBalance,
			Reason:    "opening balance",
			CreatedAt: time.Now().UTC(),
		})
	}
	l.accounts[accountID] = acct
	return nil
}

func (l *MemoryLedger) get(accountID string) (*memoryAccount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	acct, ok := l.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, accountID)
	}
	return acct, nil
}

// Debit implements Ledger.
func (l *MemoryLedger) Debit(_ context.Context, accountID string, amount int, submissionID, reason string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	acct, err := l.get(accountID)
	if err != nil {
		return 0, err
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	if amount > acct.balance {
		return acct.balance, fmt.Errorf("%w: need %d, have %d", ErrInsufficientCredits, amount, acct.balance)
	}

	acct.balance -= amount
	acct.entries = append(acct.entries, Entry{
		ID:           uuid.New().String(),
		AccountID:    accountID,
		SubmissionID: submissionID,
		Delta:        -amount,
		Balance:      acct.balance,
		Reason:       reason,
		CreatedAt:    time.Now().UTC(),
	})
	return acct.balance, nil
}

// Credit implements Ledger.
func (l *MemoryLedger) Credit(_ context.Context, accountID string, amount int, reason string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	acct, err := l.get(accountID)
	if err != nil {
		return 0, err
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	acct.balance += amount
	acct.entries = append(acct.entries, Entry{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Delta:     amount,
		Balance:   acct.balance,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	})
	return acct.balance, nil
}

// Balance implements Ledger.
func (l *MemoryLedger) Balance(_ context.Context, accountID string) (int, error) {
	acct, err := l.get(accountID)
	if err != nil {
		return 0, err
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.balance, nil
}

// History implements Ledger.
func (l *MemoryLedger) History(_ context.Context, accountID string) ([]Entry, error) {
	acct, err := l.get(accountID)
	if err != nil {
		return nil, err
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	entries := make([]Entry, len(acct.entries))
	copy(entries, acct.entries)
	return entries, nil
}
