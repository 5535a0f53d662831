package storage

import "time"

// SubmissionRecord is a stored submission row.
type SubmissionRecord struct {
	ID          string     `json:"id" db:"id"`
	AccountID   string     `json:"account_id" db:"account_id"`
	Category    string     `json:"category" db:"category"`
	Target      string     `json:"target" db:"target"`
	EconomyMode string     `json:"economy_mode" db:"economy_mode"`
	State       string     `json:"state" db:"state"` // pending, running, completed, failed
	CreditsUsed int        `json:"credits_used" db:"credits_used"`
	ErrKind     string     `json:"error_kind,omitempty" db:"error_kind"`
	ErrMessage  string     `json:"error_message,omitempty" db:"error_message"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// IssueRecord is a stored issue row.
type IssueRecord struct {
	ID            string    `json:"id" db:"id"`
	SubmissionID  string    `json:"submission_id" db:"submission_id"`
	Severity      string    `json:"severity" db:"severity"`
	Category      string    `json:"category" db:"category"`
	Message       string    `json:"message" db:"message"`
	SuggestedFix  string    `json:"suggested_fix,omitempty" db:"suggested_fix"`
	FixStatus     string    `json:"fix_status" db:"fix_status"`
	FixConfidence *int      `json:"fix_confidence,omitempty" db:"fix_confidence"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// MetricRecord is a stored metric row.
type MetricRecord struct {
	ID           string   `json:"id" db:"id"`
	SubmissionID string   `json:"submission_id" db:"submission_id"`
	Name         string   `json:"name" db:"name"`
	Value        float64  `json:"value" db:"value"`
	Unit         string   `json:"unit" db:"unit"`
	Threshold    *float64 `json:"threshold,omitempty" db:"threshold"`
	Passed       *bool    `json:"passed,omitempty" db:"passed"`
}

// FixAttemptRecord is a stored fix-attempt row.
type FixAttemptRecord struct {
	ID           string    `json:"id" db:"id"`
	IssueID      string    `json:"issue_id" db:"issue_id"`
	SubmissionID string    `json:"submission_id" db:"submission_id"`
	Fixer        string    `json:"fixer" db:"fixer"`
	Confidence   int       `json:"confidence" db:"confidence"`
	Applied      bool      `json:"applied" db:"applied"`
	Patch        string    `json:"patch,omitempty" db:"patch"`
	Error        string    `json:"error,omitempty" db:"error"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// SubmissionFilter provides criteria for querying submissions.
type SubmissionFilter struct {
	AccountID string
	Category  string
	State     string
	Limit     int
	Offset    int
}
