// Package handlers exposes the sync pipeline, the status stream and the
// cascade engine over HTTP.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-collection-sync/internal/apperror"
	"github.com/imrishuroy/go-collection-sync/internal/auth"
	"github.com/imrishuroy/go-collection-sync/internal/cascade"
	"github.com/imrishuroy/go-collection-sync/internal/ingest"
	"github.com/imrishuroy/go-collection-sync/internal/jobs"
	"github.com/imrishuroy/go-collection-sync/internal/jobstatus"
	"github.com/imrishuroy/go-collection-sync/internal/metrics"
	"github.com/imrishuroy/go-collection-sync/internal/ratelimit"
	"github.com/imrishuroy/go-collection-sync/internal/syncsession"
	"github.com/imrishuroy/go-collection-sync/internal/validation"
)

// IdempotencyHeader is the optional client supplied key deduplicating sync submissions.
const IdempotencyHeader = "Idempotency-Key"

// Normalizer turns raw batches into job payloads.
type Normalizer interface {
	NormalizeCSV(data []byte) (ingest.CSVPayload, error)
	NormalizeOrder(ctx context.Context, req validation.OrderSyncRequest) (ingest.OrderPayload, error)
	NormalizeCollection(ctx context.Context, req validation.CollectionSyncRequest) (ingest.CollectionPayload, error)
}

// Submitter queues normalized payloads.
type Submitter interface {
	Submit(ctx context.Context, req jobs.Request) (jobs.Receipt, error)
}

// StatusReader serves job status snapshots and streams.
type StatusReader interface {
	Get(ctx context.Context, jobID string) (jobstatus.Event, error)
	Stream(ctx context.Context, jobID string, maxWait time.Duration) (<-chan jobstatus.Event, error)
}

// SessionReader returns sessions with their items.
type SessionReader interface {
	Get(ctx context.Context, sessionID string) (syncsession.View, error)
}

// Cascader moves order records between orders.
type Cascader interface {
	Merge(ctx context.Context, req cascade.MergeRequest) (cascade.Result, error)
	Split(ctx context.Context, req cascade.SplitRequest) (cascade.Result, error)
}

// HandlerConfig groups dependencies for the routes.
type HandlerConfig struct {
	Validate   *validatorv10.Validate
	Normalizer Normalizer
	Jobs       Submitter
	Status     StatusReader
	Sessions   SessionReader
	Cascade    Cascader

	Limiter  *ratelimit.Limiter
	Resolver auth.Resolver
	Metrics  metrics.Recorder

	// StreamMaxWait bounds how long one status stream stays open.
	StreamMaxWait time.Duration
	// MaxCSVBytes bounds uploaded spreadsheets.
	MaxCSVBytes int64
}

type handler struct {
	HandlerConfig
}

// RegisterRoutes registers every route on r.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	if cfg.MaxCSVBytes <= 0 {
		cfg.MaxCSVBytes = 5 << 20
	}
	h := &handler{HandlerConfig: cfg}

	limit := func(op string) gin.HandlerFunc {
		return ratelimit.Middleware(cfg.Limiter, op, cfg.Resolver, cfg.Metrics)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/catalog/ids/check", limit(ratelimit.OpCatalogLookup), h.checkIDs)

	authed := r.Group("/", auth.Require(cfg.Resolver))

	authed.POST("/sync/csv", limit(ratelimit.OpSyncCSV), h.syncCSV)
	authed.POST("/sync/order", limit(ratelimit.OpSyncOrder), h.syncOrder)
	authed.POST("/sync/collection", limit(ratelimit.OpSyncCollection), h.syncCollection)

	authed.GET("/sync/jobs/:jobId", h.jobStatus)
	authed.GET("/sync/jobs/:jobId/events", limit(ratelimit.OpSyncStream), h.jobEvents)
	authed.GET("/sync/sessions/:id", h.session)

	authed.POST("/orders/merge", limit(ratelimit.OpOrdersMerge), h.mergeOrders)
	authed.POST("/orders/split", limit(ratelimit.OpOrdersSplit), h.splitOrder)
}

// writeError maps err onto the response. Validation problems are listed
// under "rows" for spreadsheet lines and "fields" otherwise.
func writeError(c *gin.Context, err error) {
	status, code := apperror.HTTPStatus(err)
	body := gin.H{"error": code}

	var ve *apperror.ValidationError
	if errors.As(err, &ve) {
		key := "fields"
		for _, p := range ve.Problems {
			if p.Line > 0 {
				key = "rows"
				break
			}
		}
		body[key] = ve.Problems
	}

	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().
			Err(err).
			Str("path", c.FullPath()).
			Msg("request failed")
	} else if ve == nil {
		body["msg"] = err.Error()
	}

	c.AbortWithStatusJSON(status, body)
}

func currentUser(c *gin.Context) string {
	s, _ := auth.FromContext(c)
	return s.UserID
}
