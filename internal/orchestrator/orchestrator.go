// Package orchestrator drives a submission through its lifecycle: resolve
// the analyzer, build the execution plan, dispatch, score, auto-fix, and
// debit the account, in that order. Every submission ends Completed or
// Failed; a Failed submission leaves no ledger entry.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"testforge/internal/analyzer"
	"testforge/internal/autofix"
	"testforge/internal/ledger"
	"testforge/internal/monitor"
	"testforge/internal/plan"
	"testforge/internal/scoring"
)

// Store persists submissions and their artifacts. Implementations may be
// nil-backed; the orchestrator works without persistence.
type Store interface {
	SaveSubmission(ctx context.Context, sub *Submission) error
	SaveArtifacts(ctx context.Context, submissionID string, issues []analyzer.Issue, metrics []analyzer.Metric, attempts []autofix.FixAttempt) error
}

// Options configures an Orchestrator.
type Options struct {
	Registry   *analyzer.Registry
	Ledger     ledger.Ledger
	Store      Store        // Optional
	Gate       *autofix.Gate // Optional; nil disables auto-fix
	Scorer     *scoring.Scorer
	CostPolicy plan.CostPolicy
	Thresholds map[analyzer.Category]scoring.Thresholds
	Defaults   scoring.Thresholds
	Metrics    *monitor.Metrics

	// AnalyzerTimeout bounds each Analyzer.Run call. MaxTimeout caps
	// caller-supplied overrides.
	AnalyzerTimeout time.Duration
	MaxTimeout      time.Duration

	// MaxConcurrent bounds simultaneously running submissions.
	MaxConcurrent int64
}

// Orchestrator is the top-level coordinator. Safe for concurrent use; the
// registry and policies are read-only after construction and the ledger
// serializes per account internally.
type Orchestrator struct {
	registry   *analyzer.Registry
	ledger     ledger.Ledger
	store      Store
	gate       *autofix.Gate
	scorer     *scoring.Scorer
	costPolicy plan.CostPolicy
	thresholds map[analyzer.Category]scoring.Thresholds
	defaults   scoring.Thresholds
	metrics    *monitor.Metrics
	tracer     *monitor.Tracer

	analyzerTimeout time.Duration
	maxTimeout      time.Duration
	sem             *semaphore.Weighted
}

// New creates an orchestrator from options.
func New(opts Options) (*Orchestrator, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("orchestrator requires a registry")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("orchestrator requires a ledger")
	}
	if opts.Scorer == nil {
		return nil, fmt.Errorf("orchestrator requires a scorer")
	}
	if err := opts.CostPolicy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cost policy: %w", err)
	}
	if opts.AnalyzerTimeout <= 0 {
		opts.AnalyzerTimeout = 60 * time.Second
	}
	if opts.MaxTimeout <= 0 {
		opts.MaxTimeout = 5 * time.Minute
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 100
	}

	return &Orchestrator{
		registry:        opts.Registry,
		ledger:          opts.Ledger,
		store:           opts.Store,
		gate:            opts.Gate,
		scorer:          opts.Scorer,
		costPolicy:      opts.CostPolicy,
		thresholds:      opts.Thresholds,
		defaults:        opts.Defaults,
		metrics:         opts.Metrics,
		tracer:          monitor.NewTracer(),
		analyzerTimeout: opts.AnalyzerTimeout,
		maxTimeout:      opts.MaxTimeout,
		sem:             semaphore.NewWeighted(opts.MaxConcurrent),
	}, nil
}

// Request is a validated-input submission request.
type Request struct {
	AccountID string
	Category  string
	Target    analyzer.Target
	Mode      string
	Timeout   time.Duration // Optional override, capped at MaxTimeout
}

// Submit runs one submission end to end and returns its result summary.
// The returned error carries the same kind recorded on the submission.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Result, error) {
	sub := &Submission{
		ID:        uuid.New().String(),
		AccountID: req.AccountID,
		State:     StatePending,
		CreatedAt: time.Now().UTC(),
	}

	ctx, span := o.tracer.StartSpan(ctx, "submit",
		monitor.AttrSubmissionID.String(sub.ID),
		monitor.AttrAccountID.String(req.AccountID),
	)
	defer span.End()

	logger := log.With().
		Str("submission_id", sub.ID).
		Str("account_id", req.AccountID).
		Str("category", req.Category).
		Logger()

	// Input validation. Rejected submissions go straight to Failed without
	// ever entering Running.
	category, err := analyzer.ParseCategory(req.Category)
	if err != nil {
		return nil, o.fail(ctx, sub, "parse_category", fmt.Errorf("%w: %s", ErrUnknownCategory, req.Category))
	}
	sub.Category = category

	mode, err := plan.ParseMode(req.Mode)
	if err != nil {
		return nil, o.fail(ctx, sub, "parse_mode", fmt.Errorf("%w: %s", ErrInvalidMode, req.Mode))
	}
	sub.Mode = mode

	if err := req.Target.Validate(); err != nil {
		return nil, o.fail(ctx, sub, "validate_target", fmt.Errorf("%w: %s", ErrInvalidTarget, err))
	}
	sub.Target = req.Target

	// Step 1: resolve the analyzer. Registration-time validation guarantees
	// a resolved category has a non-empty suite catalog.
	a, baseCost, suites, err := o.registry.Resolve(category)
	if err != nil {
		return nil, o.fail(ctx, sub, "resolve", err)
	}

	// Step 2: build the execution plan.
	selected := plan.Build(suites, mode)

	logger.Info().
		Str("mode", string(mode)).
		Int("suites_selected", len(selected)).
		Int("base_cost", baseCost).
		Msg("submission accepted")

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, o.fail(ctx, sub, "acquire_slot", fmt.Errorf("%w: %s", ErrCanceled, err))
	}
	defer o.sem.Release(1)

	// Step 3: transition to Running and dispatch.
	if err := sub.transition(StateRunning); err != nil {
		return nil, o.fail(ctx, sub, "transition", err)
	}
	o.persistSubmission(ctx, sub)

	if o.metrics != nil {
		o.metrics.ActiveSubmissions.Inc()
		defer o.metrics.ActiveSubmissions.Dec()
	}

	issues, metrics, err := o.dispatch(ctx, sub, a, selected, o.timeoutFor(req))
	if err != nil {
		// Step 4: analyzer failure, no debit, no score. Partial artifacts
		// gathered before the failure are kept for diagnostics.
		o.persistArtifacts(ctx, sub.ID, issues, metrics, nil)
		return nil, o.fail(ctx, sub, "analyze", err)
	}

	// Step 5: score, then run the auto-fix gate.
	score := o.scorer.Score(issues)
	attempts := o.gate.Process(ctx, sub.ID, issues)
	if o.scorer.RescoreAppliedFixes {
		score = o.scorer.Score(issues)
	}

	if o.metrics != nil {
		for _, iss := range issues {
			o.metrics.IssuesFound.WithLabelValues(string(iss.Severity)).Inc()
		}
		for _, att := range attempts {
			o.metrics.RecordFixAttempt(att.Applied)
		}
	}

	// Step 6: price the submission.
	creditsUsed := o.costPolicy.CreditsFor(baseCost, mode)

	// Step 7: debit. This is the atomic commit point; failure here fails the
	// submission with zero financial side effect, but the gathered issues
	// and metrics are still persisted for audit.
	_, debitSpan := o.tracer.StartSpan(ctx, "debit",
		monitor.AttrAccountID.String(sub.AccountID),
		monitor.AttrCreditsUsed.Int(creditsUsed),
	)
	newBalance, err := o.ledger.Debit(ctx, sub.AccountID, creditsUsed,
		sub.ID, fmt.Sprintf("%s submission (%s)", category, mode))
	debitSpan.End()
	if err != nil {
		o.persistArtifacts(ctx, sub.ID, issues, metrics, attempts)
		return nil, o.fail(ctx, sub, "debit", err)
	}
	sub.CreditsUsed = creditsUsed

	// Step 8: terminal transition and summary.
	if err := sub.transition(StateCompleted); err != nil {
		// Unreachable while the pipeline is single-owner; logged for safety.
		logger.Error().Err(err).Msg("completed transition rejected")
	}
	o.persistSubmission(ctx, sub)
	o.persistArtifacts(ctx, sub.ID, issues, metrics, attempts)

	executionTime := sub.CompletedAt.Sub(*sub.StartedAt)
	passed := scoring.Passed(issues)
	status := o.scorer.StatusFor(score, issues, o.thresholdsFor(category))

	if o.metrics != nil {
		o.metrics.RecordSubmission(string(category), string(mode), string(StateCompleted))
		o.metrics.QualityScore.WithLabelValues(string(category)).Observe(float64(score))
		o.metrics.CreditsDebited.WithLabelValues(string(category), string(mode)).Add(float64(creditsUsed))
	}

	span.SetAttributes(
		monitor.AttrScore.Int(score),
		monitor.AttrCreditsUsed.Int(creditsUsed),
	)

	logger.Info().
		Int("quality_score", score).
		Int("issues_found", len(issues)).
		Int("credits_used", creditsUsed).
		Int("balance", newBalance).
		Bool("passed", passed).
		Dur("execution_time", executionTime).
		Msg("submission completed")

	return &Result{
		SubmissionID:    sub.ID,
		Passed:          passed,
		Status:          string(status),
		IssuesFound:     len(issues),
		QualityScore:    score,
		CreditsUsed:     creditsUsed,
		ExecutionTimeMS: executionTime.Milliseconds(),
		Issues:          issues,
		Metrics:         metrics,
		FixAttempts:     attempts,
	}, nil
}

// dispatch runs the analyzer under a deadline. The run happens in its own
// goroutine so a timeout can never leave the submission stuck in Running.
func (o *Orchestrator) dispatch(ctx context.Context, sub *Submission, a analyzer.Analyzer, suites []analyzer.CheckSuite, timeout time.Duration) ([]analyzer.Issue, []analyzer.Metric, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runCtx, span := o.tracer.StartSpan(runCtx, "analyze",
		monitor.AttrCategory.String(string(sub.Category)),
	)
	defer span.End()

	type runResult struct {
		issues  []analyzer.Issue
		metrics []analyzer.Metric
		err     error
	}

	start := time.Now()
	ch := make(chan runResult, 1)
	go func() {
		issues, metrics, err := a.Run(runCtx, sub.Target, suites)
		ch <- runResult{issues, metrics, err}
	}()

	var res runResult
	select {
	case res = <-ch:
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w after %s", ErrAnalyzerTimeout, timeout)
		}
		return nil, nil, fmt.Errorf("%w: %s", ErrCanceled, runCtx.Err())
	}

	if o.metrics != nil {
		o.metrics.AnalyzerDuration.WithLabelValues(string(sub.Category)).Observe(time.Since(start).Seconds())
	}

	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) {
			return res.issues, res.metrics, fmt.Errorf("%w after %s", ErrAnalyzerTimeout, timeout)
		}
		return res.issues, res.metrics, fmt.Errorf("%w: %s", ErrAnalyzerError, res.err)
	}

	// Stamp ownership on analyzer output before anything downstream sees it.
	for i := range res.issues {
		if res.issues[i].ID == "" {
			res.issues[i].ID = uuid.New().String()
		}
		res.issues[i].SubmissionID = sub.ID
		if res.issues[i].FixStatus == "" {
			res.issues[i].FixStatus = analyzer.FixNone
		}
	}
	for i := range res.metrics {
		res.metrics[i].SubmissionID = sub.ID
	}

	return res.issues, res.metrics, nil
}

// fail moves the submission to Failed, records the error kind, and returns
// the wrapped error. Failed submissions never debit.
func (o *Orchestrator) fail(ctx context.Context, sub *Submission, op string, err error) error {
	if terr := sub.transition(StateFailed); terr != nil {
		log.Error().Err(terr).Str("submission_id", sub.ID).Msg("failed transition rejected")
	}
	sub.ErrKind = ErrorKind(err)
	sub.ErrMessage = err.Error()
	o.persistSubmission(ctx, sub)

	if o.metrics != nil {
		o.metrics.RecordSubmission(string(sub.Category), string(sub.Mode), string(StateFailed))
		o.metrics.RecordError(sub.ErrKind)
	}

	log.Warn().
		Str("submission_id", sub.ID).
		Str("op", op).
		Str("kind", sub.ErrKind).
		Err(err).
		Msg("submission failed")

	return &SubmissionError{SubmissionID: sub.ID, Op: op, Err: err}
}

func (o *Orchestrator) persistSubmission(ctx context.Context, sub *Submission) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveSubmission(ctx, sub); err != nil {
		log.Error().Err(err).Str("submission_id", sub.ID).Msg("persisting submission failed")
	}
}

func (o *Orchestrator) persistArtifacts(ctx context.Context, submissionID string, issues []analyzer.Issue, metrics []analyzer.Metric, attempts []autofix.FixAttempt) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveArtifacts(ctx, submissionID, issues, metrics, attempts); err != nil {
		log.Error().Err(err).Str("submission_id", submissionID).Msg("persisting artifacts failed")
	}
}

func (o *Orchestrator) thresholdsFor(c analyzer.Category) scoring.Thresholds {
	if t, ok := o.thresholds[c]; ok {
		return t
	}
	return o.defaults
}

// timeoutFor resolves the analyzer deadline for a request: the caller's
// override when set, capped at the configured maximum.
func (o *Orchestrator) timeoutFor(req Request) time.Duration {
	if req.Timeout <= 0 {
		return o.analyzerTimeout
	}
	if req.Timeout > o.maxTimeout {
		return o.maxTimeout
	}
	return req.Timeout
}
