// Package scoring turns a heterogeneous issue set into a single 0-100
// quality score and an overall pass/warning/fail status.
package scoring

import (
	"fmt"

	"testforge/internal/analyzer"
)

// Penalties holds the per-severity score deductions.
type Penalties struct {
	Critical int `yaml:"critical"`
	High     int `yaml:"high"`
	Medium   int `yaml:"medium"`
	Low      int `yaml:"low"`
}

// DefaultPenalties returns the stock deductions.
func DefaultPenalties() Penalties {
	return Penalties{Critical: 20, High: 10, Medium: 5, Low: 2}
}

// Validate checks the penalties are non-negative.
func (p Penalties) Validate() error {
	if p.Critical < 0 || p.High < 0 || p.Medium < 0 || p.Low < 0 {
		return fmt.Errorf("severity penalties must be non-negative")
	}
	return nil
}

func (p Penalties) forSeverity(s analyzer.Severity) int {
	switch s {
	case analyzer.SeverityCritical:
		return p.Critical
	case analyzer.SeverityHigh:
		return p.High
	case analyzer.SeverityMedium:
		return p.Medium
	case analyzer.SeverityLow:
		return p.Low
	}
	return 0
}

// Status is the overall verdict derived from score and issue counts.
type Status string

const (
	StatusPass    Status = "pass"
	StatusWarning Status = "warning"
	StatusFail    Status = "fail"
)

// Thresholds controls how a score maps to an overall status. Configured
// per category; a global default applies where no override exists.
type Thresholds struct {
	FailBelow       int `yaml:"fail_below"`        // Score below this is a fail
	WarnBelow       int `yaml:"warn_below"`        // Score below this is a warning
	MaxHighSeverity int `yaml:"max_high_severity"` // More critical/high issues than this is a fail regardless of score
}

// DefaultThresholds returns the global stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{FailBelow: 50, WarnBelow: 75, MaxHighSeverity: 3}
}

// Validate checks threshold ordering.
func (t Thresholds) Validate() error {
	if t.FailBelow < 0 || t.WarnBelow > 100 {
		return fmt.Errorf("status thresholds must be within [0,100]")
	}
	if t.FailBelow > t.WarnBelow {
		return fmt.Errorf("fail_below (%d) must be <= warn_below (%d)", t.FailBelow, t.WarnBelow)
	}
	if t.MaxHighSeverity < 0 {
		return fmt.Errorf("max_high_severity must be non-negative")
	}
	return nil
}

// Scorer computes quality scores under a penalty policy.
type Scorer struct {
	penalties Penalties

	// RescoreAppliedFixes controls whether issues whose fix was auto-applied
	// still count against the score. The default (false) keeps them counted:
	// the score reports the quality of the target as analyzed, and applied
	// fixes are surfaced separately. Flipping this recomputes the score on
	// the unresolved issue set only.
	RescoreAppliedFixes bool
}

// NewScorer creates a scorer with the given penalty policy.
func NewScorer(p Penalties) *Scorer {
	return &Scorer{penalties: p}
}

// Score computes the 0-100 quality score: start at 100, subtract the
// per-severity penalty for each issue, clamp to [0,100]. Summation makes the
// result independent of issue order.
func (s *Scorer) Score(issues []analyzer.Issue) int {
	score := 100
	for _, iss := range issues {
		if s.RescoreAppliedFixes && iss.FixStatus == analyzer.FixApplied {
			continue
		}
		score -= s.penalties.forSeverity(iss.Severity)
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// StatusFor derives the overall status from a score and the issue set.
func (s *Scorer) StatusFor(score int, issues []analyzer.Issue, t Thresholds) Status {
	highCount := 0
	for _, iss := range issues {
		if iss.FixStatus == analyzer.FixApplied {
			continue
		}
		if iss.Severity == analyzer.SeverityCritical || iss.Severity == analyzer.SeverityHigh {
			highCount++
		}
	}

	switch {
	case score < t.FailBelow || highCount > t.MaxHighSeverity:
		return StatusFail
	case score < t.WarnBelow:
		return StatusWarning
	default:
		return StatusPass
	}
}

// Passed reports the submission-level pass verdict: true iff no issue of
// severity critical or high remains after auto-fix resolution. Several
// analyzers derive their own "overall" field from this exact rule.
func Passed(issues []analyzer.Issue) bool {
	for _, iss := range issues {
		if iss.FixStatus == analyzer.FixApplied {
			continue
		}
		if iss.Severity == analyzer.SeverityCritical || iss.Severity == analyzer.SeverityHigh {
			return false
		}
	}
	return true
}
