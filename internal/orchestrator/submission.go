package orchestrator

import (
	"fmt"
	"time"

	"testforge/internal/analyzer"
	"testforge/internal/autofix"
	"testforge/internal/plan"
)

// State is a submission lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether no transition may leave this state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// legal transitions: pending→running, running→completed, running→failed,
// pending→failed (input rejected before dispatch).
var transitions = map[State][]State{
	StatePending: {StateRunning, StateFailed},
	StateRunning: {StateCompleted, StateFailed},
}

// Submission is one request to analyze a target. It is owned exclusively by
// the orchestrator and mutated only through transition.
type Submission struct {
	ID          string            `json:"id"`
	AccountID   string            `json:"account_id"`
	Category    analyzer.Category `json:"category"`
	Target      analyzer.Target   `json:"target"`
	Mode        plan.Mode         `json:"economy_mode"`
	State       State             `json:"state"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	CreditsUsed int               `json:"credits_used"` // Set once, at completion
	ErrKind     string            `json:"error_kind,omitempty"`
	ErrMessage  string            `json:"error_message,omitempty"`
}

// transition moves the submission to next, stamping the timestamps the
// target state owns. Illegal moves (including any move out of a terminal
// state) are programming errors and return an error rather than corrupting
// the lifecycle.
func (s *Submission) transition(next State) error {
	for _, allowed := range transitions[s.State] {
		if next == allowed {
			now := time.Now().UTC()
			switch next {
			case StateRunning:
				s.StartedAt = &now
			case StateCompleted, StateFailed:
				s.CompletedAt = &now
			}
			s.State = next
			return nil
		}
	}
	return fmt.Errorf("illegal state transition %s -> %s", s.State, next)
}

// Result is the summary returned to the caller for a completed submission.
type Result struct {
	SubmissionID    string               `json:"submission_id"`
	Passed          bool                 `json:"passed"`
	Status          string               `json:"status"`
	IssuesFound     int                  `json:"issues_found"`
	QualityScore    int                  `json:"quality_score"`
	CreditsUsed     int                  `json:"credits_used"`
	ExecutionTimeMS int64                `json:"execution_time_ms"`
	Issues          []analyzer.Issue     `json:"issues,omitempty"`
	Metrics         []analyzer.Metric    `json:"metrics,omitempty"`
	FixAttempts     []autofix.FixAttempt `json:"fix_attempts,omitempty"`
}
