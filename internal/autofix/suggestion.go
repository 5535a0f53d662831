package autofix

import (
	"context"
	"fmt"

	"testforge/internal/analyzer"
)

// SuggestionFixer is the built-in fallback Fixer: it turns the analyzer's
// own suggested-fix text into a patch at a fixed, deliberately modest
// confidence, so it records attempts without ever crossing the auto-apply
// threshold. Production deployments replace it with an LLM-backed fixer.
type SuggestionFixer struct {
	// Confidence reported for every generated fix. Zero means the default.
	Confidence int
}

const defaultSuggestionConfidence = 50

// Name implements Fixer.
func (f *SuggestionFixer) Name() string { return "suggestion" }

// GenerateFix implements Fixer.
func (f *SuggestionFixer) GenerateFix(_ context.Context, issue analyzer.Issue) (int, string, error) {
	if issue.SuggestedFix == "" {
		return 0, "", fmt.Errorf("issue %s has no suggested fix", issue.ID)
	}

	confidence := f.Confidence
	if confidence == 0 {
		confidence = defaultSuggestionConfidence
	}

	patch := fmt.Sprintf("# %s\n%s\n", issue.Message, issue.SuggestedFix)
	return confidence, patch, nil
}
