package api

import "time"

// SubmitRequest is the API-level request to analyze a target.
type SubmitRequest struct {
	AccountID   string   `json:"account_id"`
	Category    string   `json:"category"` // web, document, game, mobile, ai, avatar, tool, api
	URL         string   `json:"url,omitempty"`
	FileHandle  string   `json:"file_handle,omitempty"`
	EconomyMode string   `json:"economy_mode,omitempty"` // standard (default), economy, ultra_economy
	Timeout     Duration `json:"timeout,omitempty"`
}

// Duration wraps time.Duration for JSON marshaling as a string like "30s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// IssueView is the API shape of a discovered issue.
type IssueView struct {
	ID            string `json:"id"`
	Severity      string `json:"severity"`
	Category      string `json:"category"`
	Message       string `json:"message"`
	SuggestedFix  string `json:"suggested_fix,omitempty"`
	FixStatus     string `json:"fix_status"`
	FixConfidence *int   `json:"fix_confidence,omitempty"`
}

// MetricView is the API shape of a reported metric.
type MetricView struct {
	Name      string   `json:"name"`
	Value     float64  `json:"value"`
	Unit      string   `json:"unit"`
	Threshold *float64 `json:"threshold,omitempty"`
	Passed    *bool    `json:"passed,omitempty"`
}

// FixAttemptView is the API shape of an auto-fix attempt.
type FixAttemptView struct {
	IssueID    string `json:"issue_id"`
	Fixer      string `json:"fixer"`
	Confidence int    `json:"confidence"`
	Applied    bool   `json:"applied"`
	Error      string `json:"error,omitempty"`
}

// SubmitResponse is the result summary for a completed submission.
type SubmitResponse struct {
	SubmissionID    string           `json:"submission_id"`
	Passed          bool             `json:"passed"`
	Status          string           `json:"status"`
	IssuesFound     int              `json:"issues_found"`
	QualityScore    int              `json:"quality_score"`
	CreditsUsed     int              `json:"credits_used"`
	ExecutionTimeMS int64            `json:"execution_time_ms"`
	Issues          []IssueView      `json:"issues,omitempty"`
	Metrics         []MetricView     `json:"metrics,omitempty"`
	FixAttempts     []FixAttemptView `json:"fix_attempts,omitempty"`
}

// BalanceResponse reports an account's credit balance.
type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   int    `json:"balance"`
}

// TopUpRequest adds credits to an account.
type TopUpRequest struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// LedgerEntryView is the API shape of one ledger entry.
type LedgerEntryView struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submission_id,omitempty"`
	Delta        int       `json:"delta"`
	Balance      int       `json:"balance"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// ErrorResponse is returned for API errors.
type ErrorResponse struct {
	Error        string `json:"error"`
	Code         string `json:"code"`
	SubmissionID string `json:"submission_id,omitempty"`
	RequestID    string `json:"request_id"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status   string `json:"status"`
	Database bool   `json:"database"`
	Uptime   string `json:"uptime"`
}
