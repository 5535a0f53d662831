package storage

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"testforge/internal/analyzer"
	"testforge/internal/autofix"
	"testforge/internal/orchestrator"
)

// AuditWriter persists submissions and their artifacts asynchronously
// through a buffered channel, so a slow database never blocks the
// orchestration pipeline. It implements orchestrator.Store.
type AuditWriter struct {
	db   *DB
	ch   chan writeJob
	wg   sync.WaitGroup
	done chan struct{}
}

type writeJob struct {
	submission *SubmissionRecord
	issues     []IssueRecord
	metrics    []MetricRecord
	attempts   []FixAttemptRecord
}

// NewAuditWriter creates a writer with the given buffer size.
func NewAuditWriter(db *DB, bufferSize int) *AuditWriter {
	if bufferSize < 1 {
		bufferSize = 10000
	}
	return &AuditWriter{
		db:   db,
		ch:   make(chan writeJob, bufferSize),
		done: make(chan struct{}),
	}
}

// Start launches the background write loop.
func (w *AuditWriter) Start() {
	w.wg.Add(1)
	go w.processLoop()
}

// SaveSubmission implements orchestrator.Store.
func (w *AuditWriter) SaveSubmission(_ context.Context, sub *orchestrator.Submission) error {
	rec := &SubmissionRecord{
		ID:          sub.ID,
		AccountID:   sub.AccountID,
		Category:    string(sub.Category),
		Target:      sub.Target.String(),
		EconomyMode: string(sub.Mode),
		State:       string(sub.State),
		CreditsUsed: sub.CreditsUsed,
		ErrKind:     sub.ErrKind,
		ErrMessage:  sub.ErrMessage,
		CreatedAt:   sub.CreatedAt,
		StartedAt:   sub.StartedAt,
		CompletedAt: sub.CompletedAt,
	}
	w.enqueue(writeJob{submission: rec})
	return nil
}

// SaveArtifacts implements orchestrator.Store.
func (w *AuditWriter) SaveArtifacts(_ context.Context, submissionID string, issues []analyzer.Issue, metrics []analyzer.Metric, attempts []autofix.FixAttempt) error {
	job := writeJob{}

	for _, iss := range issues {
		job.issues = append(job.issues, IssueRecord{
			ID:            iss.ID,
			SubmissionID:  submissionID,
			Severity:      string(iss.Severity),
			Category:      iss.Category,
			Message:       iss.Message,
			SuggestedFix:  iss.SuggestedFix,
			FixStatus:     string(iss.FixStatus),
			FixConfidence: iss.FixConfidence,
		})
	}
	for _, m := range metrics {
		job.metrics = append(job.metrics, MetricRecord{
			SubmissionID: submissionID,
			Name:         m.Name,
			Value:        m.Value,
			Unit:         m.Unit,
			Threshold:    m.Threshold,
			Passed:       m.Passed,
		})
	}
	for _, att := range attempts {
		job.attempts = append(job.attempts, FixAttemptRecord{
			ID:           att.ID,
			IssueID:      att.IssueID,
			SubmissionID: submissionID,
			Fixer:        att.Fixer,
			Confidence:   att.Confidence,
			Applied:      att.Applied,
			Patch:        att.Patch,
			Error:        att.Error,
			CreatedAt:    att.CreatedAt,
		})
	}

	w.enqueue(job)
	return nil
}

func (w *AuditWriter) enqueue(job writeJob) {
	select {
	case w.ch <- job:
	default:
		log.Warn().Msg("audit buffer full, dropping write")
	}
}

// Flush stops the writer and drains pending writes, bounded by timeout.
func (w *AuditWriter) Flush(timeout time.Duration) {
	close(w.done)

	doneCh := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		log.Info().Msg("audit writer flushed")
	case <-time.After(timeout):
		log.Warn().Msg("audit writer flush timed out")
	}
}

func (w *AuditWriter) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case job := <-w.ch:
			w.writeWithRetry(job)
		case <-w.done:
			// Drain remaining entries
			for {
				select {
				case job := <-w.ch:
					w.writeWithRetry(job)
				default:
					return
				}
			}
		}
	}
}

func (w *AuditWriter) writeWithRetry(job writeJob) {
	const maxRetries = 3

	for attempt := 0; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := w.write(ctx, job)
		cancel()

		if err == nil {
			return
		}

		if attempt < maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("audit write failed, retrying")
			time.Sleep(backoff)
		} else {
			log.Error().
				Err(err).
				Msg("audit write failed permanently after retries")
		}
	}
}

func (w *AuditWriter) write(ctx context.Context, job writeJob) error {
	if job.submission != nil {
		if err := w.db.UpsertSubmission(ctx, job.submission); err != nil {
			return err
		}
	}
	if len(job.issues) > 0 {
		if err := w.db.InsertIssues(ctx, job.issues); err != nil {
			return err
		}
	}
	if len(job.metrics) > 0 {
		if err := w.db.InsertMetrics(ctx, job.metrics); err != nil {
			return err
		}
	}
	if len(job.attempts) > 0 {
		if err := w.db.InsertFixAttempts(ctx, job.attempts); err != nil {
			return err
		}
	}
	return nil
}
