package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorIs(t *testing.T) {
	err := fmt.Errorf("decode csv: %w", Validation(
		Problem{Line: 2, Field: "id", Message: "id is required"},
		Problem{Input: "abc", Message: "not an item identifier"},
	))

	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.NotErrorIs(t, err, ErrEmptyBatch)
	assert.Contains(t, err.Error(), "line 2: id is required")
	assert.Contains(t, err.Error(), `"abc": not an item identifier`)

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Problems, 2)
}

func TestDeniedErrorIs(t *testing.T) {
	err := &DeniedError{Operation: "sync.csv", RetryAfter: 30 * time.Second}

	assert.ErrorIs(t, err, ErrAdmissionDenied)
	assert.Contains(t, err.Error(), "sync.csv")
}

func TestHTTPStatus(t *testing.T) {
	tests := map[string]struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		"nil":         {err: nil, wantStatus: http.StatusOK},
		"validation":  {err: Validation(Problem{Message: "x"}), wantStatus: http.StatusBadRequest, wantCode: "validation_failed"},
		"empty batch": {err: fmt.Errorf("wrap: %w", ErrEmptyBatch), wantStatus: http.StatusUnprocessableEntity, wantCode: "empty_batch"},
		"denied":      {err: &DeniedError{}, wantStatus: http.StatusTooManyRequests, wantCode: "rate_limited"},
		"counter":     {err: ErrCounterUnavailable, wantStatus: http.StatusServiceUnavailable, wantCode: "rate_limiter_unavailable"},
		"submission":  {err: ErrJobSubmissionFailed, wantStatus: http.StatusServiceUnavailable, wantCode: "enqueue_failed"},
		"not found":   {err: ErrNotFound, wantStatus: http.StatusNotFound, wantCode: "not_found"},
		"conflict":    {err: ErrConflict, wantStatus: http.StatusConflict, wantCode: "conflict"},
		"other":       {err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "internal_error"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			status, code := HTTPStatus(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}
