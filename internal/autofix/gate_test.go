package autofix

import (
	"context"
	"errors"
	"testing"

	"testforge/internal/analyzer"
)

// stubFixer returns canned confidences per issue ID, or a global error.
type stubFixer struct {
	confidence map[string]int
	err        error
}

func (f *stubFixer) Name() string { return "stub" }

func (f *stubFixer) GenerateFix(_ context.Context, issue analyzer.Issue) (int, string, error) {
	if f.err != nil {
		return 0, "", f.err
	}
	return f.confidence[issue.ID], "patch for " + issue.ID, nil
}

func testIssues(ids ...string) []analyzer.Issue {
	issues := make([]analyzer.Issue, 0, len(ids))
	for _, id := range ids {
		issues = append(issues, analyzer.Issue{
			ID:        id,
			Severity:  analyzer.SeverityMedium,
			Message:   "issue " + id,
			FixStatus: analyzer.FixNone,
		})
	}
	return issues
}

func TestProcess_AutoApply(t *testing.T) {
	gate := NewGate(&stubFixer{confidence: map[string]int{"i1": 95}}, 90)
	issues := testIssues("i1")

	attempts := gate.Process(context.Background(), "sub-1", issues)

	if len(attempts) != 1 {
		t.Fatalf("len(attempts) = %d, want 1", len(attempts))
	}
	if !attempts[0].Applied {
		t.Error("attempt.Applied = false, want true")
	}
	if issues[0].FixStatus != analyzer.FixApplied {
		t.Errorf("FixStatus = %q, want applied", issues[0].FixStatus)
	}
	if issues[0].FixConfidence == nil || *issues[0].FixConfidence != 95 {
		t.Errorf("FixConfidence = %v, want 95", issues[0].FixConfidence)
	}
}

// The auto-apply boundary is inclusive: exactly 90 applies, 89 does not.
func TestProcess_ThresholdBoundary(t *testing.T) {
	gate := NewGate(&stubFixer{confidence: map[string]int{"at": 90, "below": 89}}, 90)
	issues := testIssues("at", "below")

	attempts := gate.Process(context.Background(), "sub-1", issues)

	if len(attempts) != 2 {
		t.Fatalf("len(attempts) = %d, want 2", len(attempts))
	}
	if !attempts[0].Applied {
		t.Error("confidence 90 must auto-apply")
	}
	if attempts[1].Applied {
		t.Error("confidence 89 must not auto-apply")
	}
	if issues[0].FixStatus != analyzer.FixApplied {
		t.Errorf("issue at boundary: FixStatus = %q, want applied", issues[0].FixStatus)
	}
	if issues[1].FixStatus != analyzer.FixAttempted {
		t.Errorf("issue below boundary: FixStatus = %q, want attempted", issues[1].FixStatus)
	}
}

func TestProcess_FixerError(t *testing.T) {
	gate := NewGate(&stubFixer{err: errors.New("model unavailable")}, 90)
	issues := testIssues("i1")

	attempts := gate.Process(context.Background(), "sub-1", issues)

	// The failure is recorded, never escalated.
	if len(attempts) != 1 {
		t.Fatalf("len(attempts) = %d, want 1", len(attempts))
	}
	if attempts[0].Applied {
		t.Error("attempt.Applied = true, want false on fixer error")
	}
	if attempts[0].Error == "" {
		t.Error("attempt.Error empty, want recorded error")
	}
	if issues[0].FixStatus != analyzer.FixAttempted {
		t.Errorf("FixStatus = %q, want attempted", issues[0].FixStatus)
	}
}

// Audit completeness: one attempt per processed issue, regardless of outcome.
func TestProcess_OneAttemptPerIssue(t *testing.T) {
	gate := NewGate(&stubFixer{confidence: map[string]int{"a": 95, "b": 10, "c": 90}}, 90)
	issues := testIssues("a", "b", "c")

	attempts := gate.Process(context.Background(), "sub-1", issues)

	if len(attempts) != len(issues) {
		t.Fatalf("len(attempts) = %d, want %d", len(attempts), len(issues))
	}
	seen := make(map[string]bool)
	for _, att := range attempts {
		if att.SubmissionID != "sub-1" {
			t.Errorf("attempt submission = %q, want sub-1", att.SubmissionID)
		}
		if att.ID == "" {
			t.Error("attempt missing ID")
		}
		seen[att.IssueID] = true
	}
	for _, iss := range issues {
		if !seen[iss.ID] {
			t.Errorf("issue %s has no attempt", iss.ID)
		}
	}
}

func TestProcess_NilGate(t *testing.T) {
	var gate *Gate
	if attempts := gate.Process(context.Background(), "sub-1", testIssues("i1")); attempts != nil {
		t.Errorf("nil gate returned attempts: %v", attempts)
	}
}

func TestSuggestionFixer(t *testing.T) {
	f := &SuggestionFixer{}

	confidence, patch, err := f.GenerateFix(context.Background(), analyzer.Issue{
		ID:           "i1",
		Message:      "missing alt text",
		SuggestedFix: "add alt attributes to images",
	})
	if err != nil {
		t.Fatalf("GenerateFix() error = %v", err)
	}
	if confidence != defaultSuggestionConfidence {
		t.Errorf("confidence = %d, want %d", confidence, defaultSuggestionConfidence)
	}
	if patch == "" {
		t.Error("patch is empty")
	}

	// No suggested fix means no patch to offer.
	if _, _, err := f.GenerateFix(context.Background(), analyzer.Issue{ID: "i2"}); err == nil {
		t.Error("expected error for issue without suggested fix")
	}
}
