package analyzer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ReachabilityAnalyzer is the minimal built-in analyzer: it probes URL
// targets with an HTTP request and reports unreachability as a critical
// issue. It stands in for the external category analyzers when none are
// wired, so a bare server still produces meaningful submissions. File
// targets pass trivially since there is nothing to probe.
type ReachabilityAnalyzer struct {
	client *http.Client
}

// NewReachabilityAnalyzer creates a reachability analyzer with its own
// HTTP client. Per-run deadlines come from the caller's context.
func NewReachabilityAnalyzer() *ReachabilityAnalyzer {
	return &ReachabilityAnalyzer{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Run probes the target and reports issues and timing metrics.
func (a *ReachabilityAnalyzer) Run(ctx context.Context, target Target, suites []CheckSuite) ([]Issue, []Metric, error) {
	if target.URL == "" {
		// Opaque file handle; nothing to probe.
		return nil, nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target.URL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("building probe request: %w", err)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		issue := Issue{
			ID:           uuid.New().String(),
			Severity:     SeverityCritical,
			Category:     "reachability",
			Message:      fmt.Sprintf("target unreachable: %v", err),
			SuggestedFix: "verify the URL is publicly accessible",
			FixStatus:    FixNone,
		}
		return []Issue{issue}, nil, nil
	}
	defer resp.Body.Close()

	log.Debug().
		Str("target", target.URL).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("reachability probe completed")

	var issues []Issue
	if resp.StatusCode >= 400 {
		sev := SeverityHigh
		if resp.StatusCode >= 500 {
			sev = SeverityCritical
		}
		issues = append(issues, Issue{
			ID:           uuid.New().String(),
			Severity:     sev,
			Category:     "reachability",
			Message:      fmt.Sprintf("target returned HTTP %d", resp.StatusCode),
			SuggestedFix: "ensure the target responds with a success status",
			FixStatus:    FixNone,
		})
	}

	threshold := 2000.0
	ms := float64(elapsed.Milliseconds())
	passed := ms <= threshold
	metrics := []Metric{
		{
			Name:      "response_time",
			Value:     ms,
			Unit:      "ms",
			Threshold: &threshold,
			Passed:    &passed,
		},
		{
			Name:  "http_status",
			Value: float64(resp.StatusCode),
			Unit:  "code",
		},
	}

	return issues, metrics, nil
}
