package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the orchestration engine.
type Metrics struct {
	Registry *prometheus.Registry

	SubmissionsTotal  *prometheus.CounterVec
	AnalyzerDuration  *prometheus.HistogramVec
	SubmissionErrors  *prometheus.CounterVec
	ActiveSubmissions prometheus.Gauge
	QualityScore      *prometheus.HistogramVec
	CreditsDebited    *prometheus.CounterVec
	FixAttemptsTotal  *prometheus.CounterVec
	IssuesFound       *prometheus.CounterVec
	RequestsInFlight  prometheus.Gauge
}

// NewMetrics creates and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		SubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "testforge",
				Name:      "submissions_total",
				Help:      "Total submissions by category, economy mode, and terminal state.",
			},
			[]string{"category", "mode", "state"},
		),

		AnalyzerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "testforge",
				Name:      "analyzer_duration_seconds",
				Help:      "Duration of analyzer runs in seconds.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"category"},
		),

		SubmissionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "testforge",
				Name:      "submission_errors_total",
				Help:      "Failed submissions by error kind.",
			},
			[]string{"kind"},
		),

		ActiveSubmissions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "testforge",
				Name:      "active_submissions",
				Help:      "Number of submissions currently running.",
			},
		),

		QualityScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "testforge",
				Name:      "quality_score",
				Help:      "Quality scores of completed submissions.",
				Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
			[]string{"category"},
		),

		CreditsDebited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "testforge",
				Name:      "credits_debited_total",
				Help:      "Total credits debited by category and economy mode.",
			},
			[]string{"category", "mode"},
		),

		FixAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "testforge",
				Name:      "fix_attempts_total",
				Help:      "Auto-fix attempts by outcome.",
			},
			[]string{"outcome"},
		),

		IssuesFound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "testforge",
				Name:      "issues_found_total",
				Help:      "Issues discovered by severity.",
			},
			[]string{"severity"},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "testforge",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),
	}

	reg.MustRegister(
		m.SubmissionsTotal,
		m.AnalyzerDuration,
		m.SubmissionErrors,
		m.ActiveSubmissions,
		m.QualityScore,
		m.CreditsDebited,
		m.FixAttemptsTotal,
		m.IssuesFound,
		m.RequestsInFlight,
	)

	return m
}

// RecordSubmission records a terminal submission.
func (m *Metrics) RecordSubmission(category, mode, state string) {
	m.SubmissionsTotal.WithLabelValues(category, mode, state).Inc()
}

// RecordError records a submission failure by kind.
func (m *Metrics) RecordError(kind string) {
	m.SubmissionErrors.WithLabelValues(kind).Inc()
}

// RecordFixAttempt records one auto-fix attempt.
func (m *Metrics) RecordFixAttempt(applied bool) {
	outcome := "skipped"
	if applied {
		outcome = "applied"
	}
	m.FixAttemptsTotal.WithLabelValues(outcome).Inc()
}
