package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func newTestLedger(t *testing.T, accountID string, balance int) *MemoryLedger {
	t.Helper()
	l := NewMemoryLedger()
	if err := l.CreateAccount(accountID, balance); err != nil {
		t.Fatal(err)
	}
	return l
}

func TestDebit(t *testing.T) {
	l := newTestLedger(t, "acct-1", 100)
	ctx := context.Background()

	balance, err := l.Debit(ctx, "acct-1", 5, "sub-1", "api submission")
	if err != nil {
		t.Fatalf("Debit() error = %v", err)
	}
	if balance != 95 {
		t.Errorf("balance = %d, want 95", balance)
	}

	entries, err := l.History(ctx, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	// Opening balance entry plus the debit.
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	last := entries[len(entries)-1]
	if last.Delta != -5 {
		t.Errorf("entry delta = %d, want -5", last.Delta)
	}
	if last.Balance != 95 {
		t.Errorf("entry balance = %d, want 95", last.Balance)
	}
	if last.SubmissionID != "sub-1" {
		t.Errorf("entry submission = %q, want sub-1", last.SubmissionID)
	}
}

func TestDebit_InsufficientCredits(t *testing.T) {
	l := newTestLedger(t, "acct-1", 3)
	ctx := context.Background()

	_, err := l.Debit(ctx, "acct-1", 6, "sub-1", "game submission")
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("Debit() error = %v, want ErrInsufficientCredits", err)
	}

	// No entry on failure, balance untouched.
	balance, _ := l.Balance(ctx, "acct-1")
	if balance != 3 {
		t.Errorf("balance = %d, want 3", balance)
	}
	entries, _ := l.History(ctx, "acct-1")
	if len(entries) != 1 { // opening entry only
		t.Errorf("len(entries) = %d, want 1", len(entries))
	}
}

func TestDebit_UnknownAccount(t *testing.T) {
	l := NewMemoryLedger()
	_, err := l.Debit(context.Background(), "ghost", 1, "", "x")
	if !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("Debit() error = %v, want ErrUnknownAccount", err)
	}
}

func TestDebit_InvalidAmount(t *testing.T) {
	l := newTestLedger(t, "acct-1", 10)
	for _, amount := range []int{0, -5} {
		if _, err := l.Debit(context.Background(), "acct-1", amount, "", "x"); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Debit(%d) error = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestCredit(t *testing.T) {
	l := newTestLedger(t, "acct-1", 0)
	ctx := context.Background()

	balance, err := l.Credit(ctx, "acct-1", 50, "credit purchase")
	if err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
	if balance != 50 {
		t.Errorf("balance = %d, want 50", balance)
	}
}

// Balance must always equal the sum of entry deltas, no matter how the
// concurrent debit/credit mix interleaves.
func TestLedger_BalanceMatchesEntrySum(t *testing.T) {
	l := newTestLedger(t, "acct-1", 500)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Debit(ctx, "acct-1", 3, "sub", "debit")
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Credit(ctx, "acct-1", 1, "credit")
		}()
	}
	wg.Wait()

	entries, err := l.History(ctx, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	sum := 0
	for _, e := range entries {
		sum += e.Delta
	}

	balance, _ := l.Balance(ctx, "acct-1")
	if balance != sum {
		t.Errorf("balance = %d, entry sum = %d; must be equal", balance, sum)
	}
	if balance < 0 {
		t.Errorf("balance = %d, must never be negative", balance)
	}
}

// Two concurrent debits when only one can be covered: exactly one succeeds.
func TestDebit_ConcurrentSingleWinner(t *testing.T) {
	for round := 0; round < 20; round++ {
		l := newTestLedger(t, "acct-1", 10)
		ctx := context.Background()

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = l.Debit(ctx, "acct-1", 10, "sub", "debit")
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			} else if !errors.Is(err, ErrInsufficientCredits) {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if succeeded != 1 {
			t.Fatalf("round %d: %d debits succeeded, want exactly 1", round, succeeded)
		}

		balance, _ := l.Balance(ctx, "acct-1")
		if balance != 0 {
			t.Errorf("round %d: balance = %d, want 0", round, balance)
		}
	}
}

func TestHistory_Chronological(t *testing.T) {
	l := newTestLedger(t, "acct-1", 100)
	ctx := context.Background()

	_, _ = l.Debit(ctx, "acct-1", 10, "s1", "first")
	_, _ = l.Debit(ctx, "acct-1", 20, "s2", "second")

	entries, err := l.History(ctx, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].CreatedAt.Before(entries[i-1].CreatedAt) {
			t.Errorf("entries out of order at %d", i)
		}
	}
	if entries[1].Reason != "first" || entries[2].Reason != "second" {
		t.Errorf("entries not in insertion order: %q, %q", entries[1].Reason, entries[2].Reason)
	}
}

func TestCreateAccount_Duplicate(t *testing.T) {
	l := newTestLedger(t, "acct-1", 10)
	if err := l.CreateAccount("acct-1", 20); err == nil {
		t.Error("expected error creating duplicate account")
	}
}
