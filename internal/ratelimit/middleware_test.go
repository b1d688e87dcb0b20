package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-collection-sync/internal/auth"
	"github.com/imrishuroy/go-collection-sync/internal/counter"
	"github.com/imrishuroy/go-collection-sync/internal/metrics"
)

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]float64
}

func (r *countingRecorder) Count(_ context.Context, name string, value float64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]float64{}
	}
	r.counts[name] += value
}

func newTestRouter(l *Limiter, op string, rec metrics.Recorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/guarded", Middleware(l, op, auth.NewGatewayResolver("X-User-Id"), rec), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})
	return r
}

func doRequest(r http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/guarded", nil)
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddlewareHeadersAndDenial(t *testing.T) {
	policy := Policy{Name: "op", MaxRequests: 2, Window: time.Minute, Strategy: BySession}
	l := newTestLimiter(t, counter.NewMemory(nil), FailClosed, policy)
	rec := &countingRecorder{}
	r := newTestRouter(l, "op", rec)

	w := doRequest(r, "u1")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "2", w.Header().Get(HeaderLimit))
	assert.Equal(t, "1", w.Header().Get(HeaderRemaining))
	assert.Equal(t, "60", w.Header().Get(HeaderReset))
	assert.Empty(t, w.Header().Get(HeaderRetryAfter))

	w = doRequest(r, "u1")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "0", w.Header().Get(HeaderRemaining))

	w = doRequest(r, "u1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get(HeaderLimit))
	assert.Equal(t, "0", w.Header().Get(HeaderRemaining))

	retryAfter, err := strconv.Atoi(w.Header().Get(HeaderRetryAfter))
	require.NoError(t, err)
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, 60)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body["error"])
	assert.EqualValues(t, retryAfter, body["retryAfter"])
	assert.Equal(t, float64(1), rec.counts[metrics.AdmissionDenied])
}

func TestMiddlewareSkipsWithoutSession(t *testing.T) {
	policy := Policy{Name: "op", MaxRequests: 1, Window: time.Minute, Strategy: BySession}
	l := newTestLimiter(t, counter.NewMemory(nil), FailClosed, policy)
	r := newTestRouter(l, "op", metrics.Nop{})

	for i := 0; i < 3; i++ {
		w := doRequest(r, "")
		require.Equal(t, http.StatusAccepted, w.Code)
		assert.Empty(t, w.Header().Get(HeaderLimit))
	}
}

func TestMiddlewareCounterUnavailable(t *testing.T) {
	tests := map[string]struct {
		mode       FailureMode
		wantStatus int
	}{
		"open":   {mode: FailOpen, wantStatus: http.StatusAccepted},
		"closed": {mode: FailClosed, wantStatus: http.StatusServiceUnavailable},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			store := counter.NewMemory(nil)
			store.Err = errors.New("i/o timeout")
			policy := Policy{Name: "op", MaxRequests: 1, Window: time.Minute, Strategy: BySession}
			l := newTestLimiter(t, store, tt.mode, policy)
			rec := &countingRecorder{}
			r := newTestRouter(l, "op", rec)

			w := doRequest(r, "u1")
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.mode == FailClosed {
				assert.Equal(t, "60", w.Header().Get(HeaderRetryAfter))
			} else {
				assert.Equal(t, float64(1), rec.counts[metrics.LimiterDegraded])
			}
		})
	}
}

func TestMiddlewareUnknownPolicy(t *testing.T) {
	l := newTestLimiter(t, counter.NewMemory(nil), FailClosed)
	r := newTestRouter(l, "missing", metrics.Nop{})

	w := doRequest(r, "u1")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
