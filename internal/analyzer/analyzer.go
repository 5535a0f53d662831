package analyzer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Category identifies one of the supported analysis domains.
type Category string

const (
	CategoryWeb      Category = "web"
	CategoryDocument Category = "document"
	CategoryGame     Category = "game"
	CategoryMobile   Category = "mobile"
	CategoryAI       Category = "ai"
	CategoryAvatar   Category = "avatar"
	CategoryTool     Category = "tool"
	CategoryAPI      Category = "api"
)

// Categories lists every supported category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryWeb, CategoryDocument, CategoryGame, CategoryMobile,
		CategoryAI, CategoryAvatar, CategoryTool, CategoryAPI,
	}
}

// ParseCategory validates a raw category string.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Target is the thing under test: a URL or an opaque file handle.
// Exactly one of the two fields is set.
type Target struct {
	URL        string `json:"url,omitempty"`
	FileHandle string `json:"file_handle,omitempty"`
}

// Validate checks that the target is well-formed.
func (t Target) Validate() error {
	switch {
	case t.URL != "" && t.FileHandle != "":
		return fmt.Errorf("target must be a URL or a file handle, not both")
	case t.URL != "":
		u, err := url.Parse(t.URL)
		if err != nil {
			return fmt.Errorf("parsing target URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("target URL scheme must be http or https, got %q", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("target URL has no host")
		}
		return nil
	case t.FileHandle != "":
		return nil
	default:
		return fmt.Errorf("target is empty")
	}
}

// String returns the target's display form.
func (t Target) String() string {
	if t.URL != "" {
		return t.URL
	}
	return "file:" + t.FileHandle
}

// Severity is the closed set of issue severities.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Valid reports whether s is one of the defined severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// FixStatus tracks remediation progress on an issue.
type FixStatus string

const (
	FixNone      FixStatus = "none"
	FixAttempted FixStatus = "attempted"
	FixApplied   FixStatus = "applied"
)

// Issue is a single problem discovered by an analyzer.
type Issue struct {
	ID            string    `json:"id"`
	SubmissionID  string    `json:"submission_id"`
	Severity      Severity  `json:"severity"`
	Category      string    `json:"category"` // Analyzer-provided label, e.g. "security", "accessibility"
	Message       string    `json:"message"`
	SuggestedFix  string    `json:"suggested_fix,omitempty"`
	FixStatus     FixStatus `json:"fix_status"`
	FixConfidence *int      `json:"fix_confidence,omitempty"` // 0-100, set only when a fix was attempted
}

// Metric is a single measurement reported by an analyzer.
type Metric struct {
	SubmissionID string   `json:"submission_id"`
	Name         string   `json:"name"`
	Value        float64  `json:"value"`
	Unit         string   `json:"unit"`
	Threshold    *float64 `json:"threshold,omitempty"`
	Passed       *bool    `json:"passed,omitempty"` // Derived from threshold when present
}

// CheckSuite is a named, costed unit of analysis work within a category.
type CheckSuite struct {
	Name            string `json:"name" yaml:"name"`
	Cost            int    `json:"cost" yaml:"cost"`
	EconomyEligible bool   `json:"economy_eligible" yaml:"economy_eligible"`
	StandardOnly    bool   `json:"standard_only" yaml:"standard_only"`
	AlwaysRun       bool   `json:"always_run" yaml:"always_run"` // Survives ultra-economy trimming
}

// Analyzer runs the selected check suites against a target. Implementations
// are external per category; the orchestrator treats them as opaque, slow,
// and fallible. Run must honor ctx cancellation.
type Analyzer interface {
	Run(ctx context.Context, target Target, suites []CheckSuite) ([]Issue, []Metric, error)
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, target Target, suites []CheckSuite) ([]Issue, []Metric, error)

func (f AnalyzerFunc) Run(ctx context.Context, target Target, suites []CheckSuite) ([]Issue, []Metric, error) {
	return f(ctx, target, suites)
}
