// Package apperror holds the error taxonomy shared by the ingestion pipeline,
// the rate limiter and the cascade engine, and its mapping onto HTTP responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrAdmissionDenied is returned when a rate limit quota is exhausted.
	ErrAdmissionDenied = errors.New("admission denied: rate limit exceeded")
	// ErrValidationFailed is matched by every *ValidationError.
	ErrValidationFailed = errors.New("validation failed")
	// ErrEmptyBatch is returned when a batch validated but no admissible rows remain.
	ErrEmptyBatch = errors.New("batch contains no admissible rows")
	// ErrJobSubmissionFailed is returned when the job queue rejected or could not take the job.
	ErrJobSubmissionFailed = errors.New("job submission failed")
	// ErrCounterUnavailable is returned when the counter store can't be reached and the limiter fails closed.
	ErrCounterUnavailable = errors.New("rate limit counter store unavailable")
	// ErrNotFound is returned when a session, job status or record doesn't exist (or is no longer retained).
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a state transition is no longer possible.
	ErrConflict = errors.New("conflict")
)

// Problem describes one reason a batch or request was rejected.
type Problem struct {
	Line    int    `json:"line,omitempty"`
	Field   string `json:"field,omitempty"`
	Input   string `json:"input,omitempty"`
	Message string `json:"message"`
}

// ValidationError aborts a whole batch. It carries every problem found, not only the first.
type ValidationError struct {
	Problems []Problem
}

// Validation returns a *ValidationError with the given problems.
func Validation(problems ...Problem) *ValidationError {
	return &ValidationError{Problems: problems}
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		switch {
		case p.Line > 0:
			msgs = append(msgs, fmt.Sprintf("line %d: %s", p.Line, p.Message))
		case p.Input != "":
			msgs = append(msgs, fmt.Sprintf("%q: %s", p.Input, p.Message))
		default:
			msgs = append(msgs, p.Message)
		}
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed, strings.Join(msgs, "; "))
}

// Is makes errors.Is(err, ErrValidationFailed) true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// DeniedError is an admission denial with the time after which a retry may succeed.
type DeniedError struct {
	Operation  string
	RetryAfter time.Duration
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s for %s, retry after %s", ErrAdmissionDenied, e.Operation, e.RetryAfter)
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrAdmissionDenied
}

// HTTPStatus maps err onto a response status and a stable machine readable code.
func HTTPStatus(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, ErrValidationFailed):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, ErrEmptyBatch):
		return http.StatusUnprocessableEntity, "empty_batch"
	case errors.Is(err, ErrAdmissionDenied):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, ErrCounterUnavailable):
		return http.StatusServiceUnavailable, "rate_limiter_unavailable"
	case errors.Is(err, ErrJobSubmissionFailed):
		return http.StatusServiceUnavailable, "enqueue_failed"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
