package orchestrator

import (
	"errors"
	"fmt"

	"testforge/internal/analyzer"
	"testforge/internal/ledger"
)

// Sentinel errors for typed error checking. Category and credit errors are
// re-exported from the packages that own them so callers can match either.
var (
	ErrUnknownCategory     = analyzer.ErrUnknownCategory
	ErrInsufficientCredits = ledger.ErrInsufficientCredits
	ErrInvalidTarget       = errors.New("invalid target")
	ErrInvalidMode         = errors.New("invalid economy mode")
	ErrAnalyzerTimeout     = errors.New("analyzer timed out")
	ErrAnalyzerError       = errors.New("analyzer failed")
	ErrCanceled            = errors.New("submission canceled")
)

// SubmissionError wraps errors with submission context.
type SubmissionError struct {
	SubmissionID string
	Op           string // The pipeline step that failed
	Err          error
}

func (e *SubmissionError) Error() string {
	if e.SubmissionID != "" {
		return fmt.Sprintf("submission %s: %s: %s", e.SubmissionID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// ErrorKind maps an error to its machine-readable kind, recorded on failed
// submissions and surfaced through the API.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownCategory):
		return "UNKNOWN_CATEGORY"
	case errors.Is(err, ErrInvalidTarget):
		return "INVALID_TARGET"
	case errors.Is(err, ErrInvalidMode):
		return "INVALID_MODE"
	case errors.Is(err, ErrInsufficientCredits):
		return "INSUFFICIENT_CREDITS"
	case errors.Is(err, ErrAnalyzerTimeout):
		return "ANALYZER_TIMEOUT"
	case errors.Is(err, ErrAnalyzerError):
		return "ANALYZER_ERROR"
	case errors.Is(err, ErrCanceled):
		return "CANCELED"
	default:
		return "INTERNAL"
	}
}

// IsTimeout returns true if the error is an analyzer timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrAnalyzerTimeout)
}

// IsInsufficientCredits returns true if the error is a failed debit.
func IsInsufficientCredits(err error) bool {
	return errors.Is(err, ErrInsufficientCredits)
}
