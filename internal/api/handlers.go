package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"testforge/internal/analyzer"
	"testforge/internal/ledger"
	"testforge/internal/monitor"
	"testforge/internal/orchestrator"
	"testforge/internal/storage"
)

type Handlers struct {
	orch    *orchestrator.Orchestrator
	ledger  ledger.Ledger
	db      *storage.DB
	metrics *monitor.Metrics
}

func NewHandlers(orch *orchestrator.Orchestrator, l ledger.Ledger, db *storage.DB, metrics *monitor.Metrics) *Handlers {
	return &Handlers{
		orch:    orch,
		ledger:  l,
		db:      db,
		metrics: metrics,
	}
}

func (h *Handlers) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if req.AccountID == "" {
		writeError(w, "account_id is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	if req.Category == "" {
		writeError(w, "category is required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	result, err := h.orch.Submit(r.Context(), orchestrator.Request{
		AccountID: req.AccountID,
		Category:  req.Category,
		Target:    analyzer.Target{URL: req.URL, FileHandle: req.FileHandle},
		Mode:      req.EconomyMode,
		Timeout:   req.Timeout.Duration,
	})
	if err != nil {
		writeSubmissionError(w, err, r)
		return
	}

	writeJSON(w, http.StatusOK, toSubmitResponse(result))
}

// writeSubmissionError maps orchestration failures to HTTP responses. Every
// failure carries the machine-readable kind recorded on the submission.
func writeSubmissionError(w http.ResponseWriter, err error, r *http.Request) {
	kind := orchestrator.ErrorKind(err)

	status := http.StatusInternalServerError
	switch kind {
	case "UNKNOWN_CATEGORY", "INVALID_TARGET", "INVALID_MODE":
		status = http.StatusBadRequest
	case "INSUFFICIENT_CREDITS":
		status = http.StatusPaymentRequired
	case "ANALYZER_TIMEOUT":
		status = http.StatusGatewayTimeout
	case "ANALYZER_ERROR":
		status = http.StatusBadGateway
	}

	var subErr *orchestrator.SubmissionError
	submissionID := ""
	if errors.As(err, &subErr) {
		submissionID = subErr.SubmissionID
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("submission failed")
	}

	writeJSON(w, status, ErrorResponse{
		Error:        err.Error(),
		Code:         kind,
		SubmissionID: submissionID,
		RequestID:    RequestIDFromContext(r.Context()),
	})
}

func (h *Handlers) HandleGetSubmission(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "submission ID required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if h.db == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	rec, err := h.db.GetSubmission(r.Context(), id)
	if err != nil {
		writeError(w, "submission not found", "NOT_FOUND", http.StatusNotFound, r)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) HandleListSubmissions(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	filter := storage.SubmissionFilter{
		AccountID: r.URL.Query().Get("account_id"),
		Category:  r.URL.Query().Get("category"),
		State:     r.URL.Query().Get("state"),
		Limit:     100,
	}

	recs, err := h.db.ListSubmissions(r.Context(), filter)
	if err != nil {
		writeError(w, "query failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}

	writeJSON(w, http.StatusOK, recs)
}

func (h *Handlers) HandleBalance(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")
	if accountID == "" {
		writeError(w, "account ID required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	balance, err := h.ledger.Balance(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownAccount) {
			writeError(w, "account not found", "NOT_FOUND", http.StatusNotFound, r)
			return
		}
		writeError(w, "balance query failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{AccountID: accountID, Balance: balance})
}

func (h *Handlers) HandleLedger(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")
	if accountID == "" {
		writeError(w, "account ID required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	entries, err := h.ledger.History(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownAccount) {
			writeError(w, "account not found", "NOT_FOUND", http.StatusNotFound, r)
			return
		}
		writeError(w, "ledger query failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}

	views := make([]LedgerEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, LedgerEntryView{
			ID:           e.ID,
			SubmissionID: e.SubmissionID,
			Delta:        e.Delta,
			Balance:      e.Balance,
			Reason:       e.Reason,
			CreatedAt:    e.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, views)
}

func (h *Handlers) HandleTopUp(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("id")
	if accountID == "" {
		writeError(w, "account ID required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	var req TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}
	if req.Amount <= 0 {
		writeError(w, "amount must be positive", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "credit purchase"
	}

	balance, err := h.ledger.Credit(r.Context(), accountID, req.Amount, reason)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownAccount) {
			writeError(w, "account not found", "NOT_FOUND", http.StatusNotFound, r)
			return
		}
		writeError(w, "credit failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{AccountID: accountID, Balance: balance})
}

func toSubmitResponse(result *orchestrator.Result) SubmitResponse {
	resp := SubmitResponse{
		SubmissionID:    result.SubmissionID,
		Passed:          result.Passed,
		Status:          result.Status,
		IssuesFound:     result.IssuesFound,
		QualityScore:    result.QualityScore,
		CreditsUsed:     result.CreditsUsed,
		ExecutionTimeMS: result.ExecutionTimeMS,
	}

	for _, iss := range result.Issues {
		resp.Issues = append(resp.Issues, IssueView{
			ID:            iss.ID,
			Severity:      string(iss.Severity),
			Category:      iss.Category,
			Message:       iss.Message,
			SuggestedFix:  iss.SuggestedFix,
			FixStatus:     string(iss.FixStatus),
			FixConfidence: iss.FixConfidence,
		})
	}
	for _, m := range result.Metrics {
		resp.Metrics = append(resp.Metrics, MetricView{
			Name:      m.Name,
			Value:     m.Value,
			Unit:      m.Unit,
			Threshold: m.Threshold,
			Passed:    m.Passed,
		})
	}
	for _, att := range result.FixAttempts {
		resp.FixAttempts = append(resp.FixAttempts, FixAttemptView{
			IssueID:    att.IssueID,
			Fixer:      att.Fixer,
			Confidence: att.Confidence,
			Applied:    att.Applied,
			Error:      att.Error,
		})
	}

	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	writeJSON(w, status, ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	})
}
