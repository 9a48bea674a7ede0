package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aman-churiwal/tenantgate/internal/metrics"
	"github.com/aman-churiwal/tenantgate/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ConcurrencyLimit caps in-flight requests per tenant, or per user for callers
// without a tenant. Anonymous and unlimited callers are not capped.
func ConcurrencyLimit(guard *ratelimit.ConcurrencyGuard, policy *ratelimit.Policy, log *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := GetIdentity(c)
		if id == nil {
			c.Next()
			return
		}

		limit := policy.ConcurrencyLimit(id.Tenant)
		if limit < 0 {
			c.Next()
			return
		}

		key := id.UserScope().Identity()
		if id.Tenant != nil {
			key = id.TenantScope().Identity()
		}

		acquired, inFlight, err := guard.Acquire(c.Request.Context(), key, limit)
		if err != nil {
			m.RecordStoreError("concurrency")
			m.RecordDecision("concurrency", "fail_open")
			log.Warn("concurrency store unavailable, allowing request", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if !acquired {
			m.RecordDecision("concurrency", "rejected")
			c.Header("X-Concurrency-Limit", strconv.Itoa(limit))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message":   "Too Many Concurrent Requests",
				"limit":     limit,
				"in_flight": inFlight - 1,
			})
			return
		}

		defer func() {
			if err := guard.Release(context.WithoutCancel(c.Request.Context()), key); err != nil {
				log.Warn("failed to release concurrency slot", zap.String("key", key), zap.Error(err))
			}
		}()

		m.RecordDecision("concurrency", "allowed")
		c.Next()
	}
}
