package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"testforge/internal/analyzer"
	"testforge/internal/autofix"
	"testforge/internal/ledger"
	"testforge/internal/plan"
	"testforge/internal/scoring"
)

// fakeAnalyzer returns canned issues, optionally after a delay.
type fakeAnalyzer struct {
	issues  []analyzer.Issue
	metrics []analyzer.Metric
	err     error
	delay   time.Duration
}

func (f *fakeAnalyzer) Run(ctx context.Context, _ analyzer.Target, _ []analyzer.CheckSuite) ([]analyzer.Issue, []analyzer.Metric, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	return f.issues, f.metrics, f.err
}

// fakeFixer returns a fixed confidence for every issue.
type fakeFixer struct {
	confidence int
	err        error
}

func (f *fakeFixer) Name() string { return "fake" }

func (f *fakeFixer) GenerateFix(context.Context, analyzer.Issue) (int, string, error) {
	if f.err != nil {
		return 0, "", f.err
	}
	return f.confidence, "patch", nil
}

// captureStore records every persisted submission state and artifact set.
type captureStore struct {
	mu          sync.Mutex
	submissions []Submission
	issues      []analyzer.Issue
	attempts    []autofix.FixAttempt
}

func (c *captureStore) SaveSubmission(_ context.Context, sub *Submission) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submissions = append(c.submissions, *sub)
	return nil
}

func (c *captureStore) SaveArtifacts(_ context.Context, _ string, issues []analyzer.Issue, _ []analyzer.Metric, attempts []autofix.FixAttempt) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issues = append(c.issues, issues...)
	c.attempts = append(c.attempts, attempts...)
	return nil
}

func (c *captureStore) lastState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.submissions) == 0 {
		return ""
	}
	return c.submissions[len(c.submissions)-1].State
}

type fixture struct {
	orch   *Orchestrator
	ledger *ledger.MemoryLedger
	store  *captureStore
}

type fixtureOpt func(*Options)

func withAnalyzer(t *testing.T, cat analyzer.Category, baseCost int, a analyzer.Analyzer) fixtureOpt {
	t.Helper()
	return func(opts *Options) {
		if err := opts.Registry.Register(cat, a, baseCost, analyzer.DefaultSuites(cat)); err != nil {
			t.Fatal(err)
		}
	}
}

func withGate(fixer autofix.Fixer, threshold int) fixtureOpt {
	return func(opts *Options) {
		opts.Gate = autofix.NewGate(fixer, threshold)
	}
}

func withTimeout(d time.Duration) fixtureOpt {
	return func(opts *Options) {
		opts.AnalyzerTimeout = d
		opts.MaxTimeout = d
	}
}

func newFixture(t *testing.T, balance int, fopts ...fixtureOpt) *fixture {
	t.Helper()

	led := ledger.NewMemoryLedger()
	if err := led.CreateAccount("acct-1", balance); err != nil {
		t.Fatal(err)
	}

	store := &captureStore{}
	opts := Options{
		Registry:   analyzer.NewRegistry(),
		Ledger:     led,
		Store:      store,
		Scorer:     scoring.NewScorer(scoring.DefaultPenalties()),
		CostPolicy: plan.DefaultCostPolicy(),
		Defaults:   scoring.DefaultThresholds(),
	}
	for _, fo := range fopts {
		fo(&opts)
	}

	orch, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{orch: orch, ledger: led, store: store}
}

// debitEntries filters out the opening-balance entry.
func debitEntries(t *testing.T, led *ledger.MemoryLedger, accountID string) []ledger.Entry {
	t.Helper()
	entries, err := led.History(context.Background(), accountID)
	if err != nil {
		t.Fatal(err)
	}
	var debits []ledger.Entry
	for _, e := range entries {
		if e.Delta < 0 {
			debits = append(debits, e)
		}
	}
	return debits
}

func TestSubmit_StandardDebit(t *testing.T) {
	// Balance 100, api base cost 5, standard mode.
	f := newFixture(t, 100, withAnalyzer(t, analyzer.CategoryAPI, 5, &fakeAnalyzer{}))

	result, err := f.orch.Submit(context.Background(), Request{
		AccountID: "acct-1",
		Category:  "api",
		Target:    analyzer.Target{URL: "https://api.example.com"},
		Mode:      "standard",
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if result.CreditsUsed != 5 {
		t.Errorf("CreditsUsed = %d, want 5", result.CreditsUsed)
	}
	if !result.Passed {
		t.Error("Passed = false, want true for clean run")
	}
	if result.QualityScore != 100 {
		t.Errorf("QualityScore = %d, want 100", result.QualityScore)
	}

	balance, _ := f.ledger.Balance(context.Background(), "acct-1")
	if balance != 95 {
		t.Errorf("balance = %d, want 95", balance)
	}

	debits := debitEntries(t, f.ledger, "acct-1")
	if len(debits) != 1 {
		t.Fatalf("len(debits) = %d, want 1", len(debits))
	}
	if debits[0].Delta != -5 {
		t.Errorf("debit delta = %d, want -5", debits[0].Delta)
	}

	if f.store.lastState() != StateCompleted {
		t.Errorf("final state = %q, want completed", f.store.lastState())
	}
}

func TestSubmit_InsufficientCredits(t *testing.T) {
	// Balance 3, game base cost 15, ultra_economy: ceil(15*0.4) = 6 > 3.
	f := newFixture(t, 3, withAnalyzer(t, analyzer.CategoryGame, 15, &fakeAnalyzer{}))

	_, err := f.orch.Submit(context.Background(), Request{
		AccountID: "acct-1",
		Category:  "game",
		Target:    analyzer.Target{FileHandle: "uploads/game.zip"},
		Mode:      "ultra_economy",
	})
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("Submit() error = %v, want ErrInsufficientCredits", err)
	}

	balance, _ := f.ledger.Balance(context.Background(), "acct-1")
	if balance != 3 {
		t.Errorf("balance = %d, want 3 (untouched)", balance)
	}
	if debits := debitEntries(t, f.ledger, "acct-1"); len(debits) != 0 {
		t.Errorf("len(debits) = %d, want 0", len(debits))
	}
	if f.store.lastState() != StateFailed {
		t.Errorf("final state = %q, want failed", f.store.lastState())
	}
}

func TestSubmit_ScoreAndPassed(t *testing.T) {
	issues := []analyzer.Issue{
		{Severity: analyzer.SeverityCritical, Category: "security", Message: "exposed credentials"},
		{Severity: analyzer.SeverityLow, Category: "style", Message: "minor layout shift"},
	}
	f := newFixture(t, 100, withAnalyzer(t, analyzer.CategoryWeb, 10, &fakeAnalyzer{issues: issues}))

	result, err := f.orch.Submit(context.Background(), Request{
		AccountID: "acct-1",
		Category:  "web",
		Target:    analyzer.Target{URL: "https://example.com"},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if result.QualityScore != 78 { // 100 - 20 - 2
		t.Errorf("QualityScore = %d, want 78", result.QualityScore)
	}
	if result.Passed {
		t.Error("Passed = true, want false (critical present)")
	}
	if result.IssuesFound != 2 {
		t.Errorf("IssuesFound = %d, want 2", result.IssuesFound)
	}
}

func TestSubmit_AutoFixApplied(t *testing.T) {
	issues := []analyzer.Issue{
		{Severity: analyzer.SeverityMedium, Message: "missing meta description", SuggestedFix: "add one"},
	}
	f := newFixture(t, 100,
		withAnalyzer(t, analyzer.CategoryWeb, 10, &fakeAnalyzer{issues: issues}),
		withGate(&fakeFixer{confidence: 95}, 90),
	)

	result, err := f.orch.Submit(context.Background(), Request{
		AccountID: "acct-1",
		Category:  "web",
		Target:    analyzer.Target{URL: "https://example.com"},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if len(result.FixAttempts) != 1 {
		t.Fatalf("len(FixAttempts) = %d, want 1", len(result.FixAttempts))
	}
	if !result.FixAttempts[0].Applied {
		t.Error("fix attempt not applied at confidence 95")
	}
	if result.Issues[0].FixStatus != analyzer.FixApplied {
		t.Errorf("FixStatus = %q, want applied", result.Issues[0].FixStatus)
	}
	// Default policy keeps applied fixes counted in the score.
	if result.QualityScore != 95 {
		t.Errorf("QualityScore = %d, want 95", result.QualityScore)
	}
}

func TestSubmit_FixerErrorDoesNotFail(t *testing.T) {
	issues := []analyzer.Issue{{Severity: analyzer.SeverityMedium, Message: "m"}}
	f := newFixture(t, 100,
		withAnalyzer(t, analyzer.CategoryWeb, 10, &fakeAnalyzer{issues: issues}),
		withGate(&fakeFixer{err: errors.New("model down")}, 90),
	)

	result, err := f.orch.Submit(context.Background(), Request{
		AccountID: "acct-1",
		Category:  "web",
		Target:    analyzer.Target{URL: "https://example.com"},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v, fixer failures must not fail the submission", err)
	}
	if len(result.FixAttempts) != 1 || result.FixAttempts[0].Applied {
		t.Errorf("FixAttempts = %+v, want one unapplied attempt", result.FixAttempts)
	}
}

func TestSubmit_AnalyzerTimeout(t *testing.T) {
	f := newFixture(t, 100,
		withAnalyzer(t, analyzer.CategoryWeb, 10, &fakeAnalyzer{delay: time.Second}),
		withTimeout(20*time.Millisecond),
	)

	_, err := f.orch.Submit(context.Background(), Request{
		AccountID: "acct-1",
		Category:  "web",
		Target:    analyzer.Target{URL: "https://slow.example.com"},
	})
	if !errors.Is(err, ErrAnalyzerTimeout) {
		t.Fatalf("Submit() error = %v, want ErrAnalyzerTimeout", err)
	}

	// No billing on timeout, and the submission must not be stuck Running.
	if debits := debitEntries(t, f.ledger, "acct-1"); len(debits) != 0 {
		t.Errorf("len(debits) = %d, want 0", len(debits))
	}
	if state := f.store.lastState(); state != StateFailed {
		t.Errorf("final state = %q, want failed", state)
	}

	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatal("error does not carry submission context")
	}
	if kind := ErrorKind(err); kind != "ANALYZER_TIMEOUT" {
		t.Errorf("ErrorKind = %q, want ANALYZER_TIMEOUT", kind)
	}
}

func TestSubmit_AnalyzerError(t *testing.T) {
	f := newFixture(t, 100,
		withAnalyzer(t, analyzer.CategoryWeb, 10, &fakeAnalyzer{err: errors.New("crawler crashed")}),
	)

	_, err := f.orch.Submit(context.Background(), Request{
		AccountID: "acct-1",
		Category:  "web",
		Target:    analyzer.Target{URL: "https://example.com"},
	})
	if !errors.Is(err, ErrAnalyzerError) {
		t.Fatalf("Submit() error = %v, want ErrAnalyzerError", err)
	}
	if debits := debitEntries(t, f.ledger, "acct-1"); len(debits) != 0 {
		t.Errorf("len(debits) = %d, want 0 (no billing on analyzer failure)", len(debits))
	}
	if f.store.lastState() != StateFailed {
		t.Errorf("final state = %q, want failed", f.store.lastState())
	}
}

func TestSubmit_UnknownCategory(t *testing.T) {
	f := newFixture(t, 100)

	_, err := f.orch.Submit(context.Background(), Request{
		AccountID: "acct-1",
		Category:  "spreadsheet",
		Target:    analyzer.Target{URL: "https://example.com"},
	})
	if !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("Submit() error = %v, want ErrUnknownCategory", err)
	}
	if f.store.lastState() != StateFailed {
		t.Errorf("final state = %q, want failed", f.store.lastState())
	}
}

func TestSubmit_InvalidTarget(t *testing.T) {
	f := newFixture(t, 100, withAnalyzer(t, analyzer.CategoryWeb, 10, &fakeAnalyzer{}))

	tests := []analyzer.Target{
		{},
		{URL: "ftp://example.com"},
		{URL: "https://example.com", FileHandle: "both"},
	}
	for _, target := range tests {
		_, err := f.orch.Submit(context.Background(), Request{
			AccountID: "acct-1",
			Category:  "web",
			Target:    target,
		})
		if !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("Submit(%+v) error = %v, want ErrInvalidTarget", target, err)
		}
	}
}

func TestSubmit_EconomyModeCost(t *testing.T) {
	tests := []struct {
		mode string
		want int
	}{
		{"standard", 10},
		{"economy", 6},      // 10 * 0.6
		{"ultra_economy", 4}, // 10 * 0.4
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			f := newFixture(t, 100, withAnalyzer(t, analyzer.CategoryWeb, 10, &fakeAnalyzer{}))

			result, err := f.orch.Submit(context.Background(), Request{
				AccountID: "acct-1",
				Category:  "web",
				Target:    analyzer.Target{URL: "https://example.com"},
				Mode:      tt.mode,
			})
			if err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
			if result.CreditsUsed != tt.want {
				t.Errorf("CreditsUsed = %d, want %d", result.CreditsUsed, tt.want)
			}
		})
	}
}

// Two concurrent submissions with balance for only one: exactly one completes.
func TestSubmit_ConcurrentSameAccount(t *testing.T) {
	for round := 0; round < 10; round++ {
		f := newFixture(t, 5, withAnalyzer(t, analyzer.CategoryAPI, 5, &fakeAnalyzer{}))

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.orch.Submit(context.Background(), Request{
					AccountID: "acct-1",
					Category:  "api",
					Target:    analyzer.Target{URL: "https://api.example.com"},
				})
			}(i)
		}
		wg.Wait()

		completed := 0
		for _, err := range errs {
			if err == nil {
				completed++
			} else if !errors.Is(err, ErrInsufficientCredits) {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if completed != 1 {
			t.Fatalf("round %d: %d submissions completed, want exactly 1", round, completed)
		}

		balance, _ := f.ledger.Balance(context.Background(), "acct-1")
		if balance != 0 {
			t.Errorf("round %d: balance = %d, want 0", round, balance)
		}
	}
}

// Every submission ends terminal, whatever the path.
func TestSubmit_Totality(t *testing.T) {
	paths := []struct {
		name string
		opts []fixtureOpt
		req  Request
	}{
		{
			"clean completion",
			[]fixtureOpt{withAnalyzer(t, analyzer.CategoryWeb, 10, &fakeAnalyzer{})},
			Request{AccountID: "acct-1", Category: "web", Target: analyzer.Target{URL: "https://example.com"}},
		},
		{
			"analyzer error",
			[]fixtureOpt{withAnalyzer(t, analyzer.CategoryWeb, 10, &fakeAnalyzer{err: errors.New("x")})},
			Request{AccountID: "acct-1", Category: "web", Target: analyzer.Target{URL: "https://example.com"}},
		},
		{
			"timeout",
			[]fixtureOpt{withAnalyzer(t, analyzer.CategoryWeb, 10, &fakeAnalyzer{delay: time.Second}), withTimeout(10 * time.Millisecond)},
			Request{AccountID: "acct-1", Category: "web", Target: analyzer.Target{URL: "https://example.com"}},
		},
		{
			"unknown category",
			nil,
			Request{AccountID: "acct-1", Category: "nope", Target: analyzer.Target{URL: "https://example.com"}},
		},
	}

	for _, tt := range paths {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 100, tt.opts...)
			_, _ = f.orch.Submit(context.Background(), tt.req)

			state := f.store.lastState()
			if state != StateCompleted && state != StateFailed {
				t.Errorf("final state = %q, want a terminal state", state)
			}
		})
	}
}

// Artifacts gathered before a failed debit are still persisted for audit.
func TestSubmit_ArtifactsKeptOnFailedDebit(t *testing.T) {
	issues := []analyzer.Issue{{Severity: analyzer.SeverityLow, Message: "m"}}
	f := newFixture(t, 1, withAnalyzer(t, analyzer.CategoryWeb, 10, &fakeAnalyzer{issues: issues}))

	_, err := f.orch.Submit(context.Background(), Request{
		AccountID: "acct-1",
		Category:  "web",
		Target:    analyzer.Target{URL: "https://example.com"},
	})
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("Submit() error = %v, want ErrInsufficientCredits", err)
	}

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if len(f.store.issues) != 1 {
		t.Errorf("persisted issues = %d, want 1", len(f.store.issues))
	}
}

func TestTransition_TerminalStatesFinal(t *testing.T) {
	for _, terminal := range []State{StateCompleted, StateFailed} {
		sub := &Submission{State: terminal}
		for _, next := range []State{StatePending, StateRunning, StateCompleted, StateFailed} {
			if err := sub.transition(next); err == nil {
				t.Errorf("transition %s -> %s allowed, want rejected", terminal, next)
			}
		}
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrUnknownCategory, "UNKNOWN_CATEGORY"},
		{ErrInvalidTarget, "INVALID_TARGET"},
		{&SubmissionError{Op: "debit", Err: ErrInsufficientCredits}, "INSUFFICIENT_CREDITS"},
		{ErrAnalyzerTimeout, "ANALYZER_TIMEOUT"},
		{errors.New("mystery"), "INTERNAL"},
	}

	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
