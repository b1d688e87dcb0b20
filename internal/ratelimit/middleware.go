package ratelimit

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-collection-sync/internal/apperror"
	"github.com/imrishuroy/go-collection-sync/internal/auth"
	"github.com/imrishuroy/go-collection-sync/internal/metrics"
)

// Response headers.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Middleware guards a route with the policy of operation.
func Middleware(l *Limiter, operation string, sessions auth.Resolver, rec metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		info := RequestInfo{
			RemoteAddr:     c.ClientIP(),
			UserAgent:      c.Request.UserAgent(),
			AcceptLanguage: c.GetHeader("Accept-Language"),
		}
		if s, ok := sessions.Resolve(c.Request); ok {
			info.UserID = s.UserID
		}

		ctx := c.Request.Context()
		d, err := l.Check(ctx, operation, info)
		if err != nil {
			if errors.Is(err, apperror.ErrCounterUnavailable) {
				c.Header(HeaderRetryAfter, seconds(d.Reset))
				status, code := apperror.HTTPStatus(err)
				c.AbortWithStatusJSON(status, gin.H{"error": code})
				return
			}
			zerolog.Ctx(ctx).Error().
				Err(err).
				Str("operation", operation).
				Msg("rate limit check failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}

		if d.Skipped {
			c.Next()
			return
		}
		if d.Degraded {
			rec.Count(ctx, metrics.LimiterDegraded, 1, map[string]string{"Operation": operation})
		}

		c.Header(HeaderLimit, strconv.FormatInt(d.Limit, 10))
		c.Header(HeaderRemaining, strconv.FormatInt(d.Remaining, 10))
		c.Header(HeaderReset, seconds(d.Reset))

		if !d.Admit {
			denied := &apperror.DeniedError{Operation: operation, RetryAfter: d.Reset}
			rec.Count(ctx, metrics.AdmissionDenied, 1, map[string]string{"Operation": operation})
			zerolog.Ctx(ctx).Info().
				Str("operation", operation).
				Dur("retryAfter", denied.RetryAfter).
				Msg("request denied by rate limiter")

			c.Header(HeaderRetryAfter, seconds(denied.RetryAfter))
			status, code := apperror.HTTPStatus(denied)
			c.AbortWithStatusJSON(status, gin.H{
				"error":      code,
				"retryAfter": int64(math.Ceil(denied.RetryAfter.Seconds())),
			})
			return
		}

		c.Next()
	}
}

func seconds(d time.Duration) string {
	return strconv.FormatInt(int64(math.Ceil(d.Seconds())), 10)
}
