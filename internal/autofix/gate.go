// Package autofix drives conditional remediation of discovered issues
// through an external Fixer capability.
package autofix

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"testforge/internal/analyzer"
)

// Fixer generates a candidate fix for an issue. Implemented externally,
// typically by an LLM-backed service. Confidence is 0-100.
type Fixer interface {
	GenerateFix(ctx context.Context, issue analyzer.Issue) (confidence int, patch string, err error)
	Name() string
}

// FixAttempt is the append-only audit record of one fixer invocation.
// Every invocation produces exactly one attempt, applied or not.
type FixAttempt struct {
	ID           string    `json:"id"`
	IssueID      string    `json:"issue_id"`
	SubmissionID string    `json:"submission_id"`
	Fixer        string    `json:"fixer"`
	Confidence   int       `json:"confidence"`
	Applied      bool      `json:"applied"`
	Patch        string    `json:"patch,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Gate processes issues through the fixer and auto-applies fixes whose
// confidence clears the threshold.
type Gate struct {
	fixer     Fixer
	threshold int
}

// NewGate creates a gate. A fix with confidence >= threshold auto-applies;
// the boundary is inclusive, so with the default threshold of 90 a
// confidence of exactly 90 applies and 89 does not.
func NewGate(fixer Fixer, threshold int) *Gate {
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 100 {
		threshold = 100
	}
	return &Gate{fixer: fixer, threshold: threshold}
}

// Process runs the fixer over every issue and mutates issue fix state in
// place. Fixer errors never fail the submission; they are recorded on the
// attempt and the issue stays unresolved. Returns one FixAttempt per issue
// processed.
func (g *Gate) Process(ctx context.Context, submissionID string, issues []analyzer.Issue) []FixAttempt {
	if g == nil || g.fixer == nil || len(issues) == 0 {
		return nil
	}

	attempts := make([]FixAttempt, 0, len(issues))
	for i := range issues {
		issue := &issues[i]

		attempt := FixAttempt{
			ID:           uuid.New().String(),
			IssueID:      issue.ID,
			SubmissionID: submissionID,
			Fixer:        g.fixer.Name(),
			CreatedAt:    time.Now().UTC(),
		}

		confidence, patch, err := g.fixer.GenerateFix(ctx, *issue)
		if err != nil {
			attempt.Error = err.Error()
			issue.FixStatus = analyzer.FixAttempted
			log.Warn().
				Err(err).
				Str("submission_id", submissionID).
				Str("issue_id", issue.ID).
				Msg("fixer failed, recording attempt")
			attempts = append(attempts, attempt)
			continue
		}

		attempt.Confidence = confidence
		attempt.Patch = patch
		issue.FixConfidence = &attempt.Confidence

		if confidence >= g.threshold {
			attempt.Applied = true
			issue.FixStatus = analyzer.FixApplied
			log.Info().
				Str("submission_id", submissionID).
				Str("issue_id", issue.ID).
				Int("confidence", confidence).
				Msg("fix auto-applied")
		} else {
			issue.FixStatus = analyzer.FixAttempted
			log.Debug().
				Str("submission_id", submissionID).
				Str("issue_id", issue.ID).
				Int("confidence", confidence).
				Int("threshold", g.threshold).
				Msg("fix below auto-apply threshold")
		}

		attempts = append(attempts, attempt)
	}

	return attempts
}
