package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/aman-churiwal/tenantgate/internal/metrics"
	"github.com/aman-churiwal/tenantgate/internal/ratelimit"
	"github.com/aman-churiwal/tenantgate/internal/scope"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"

	throttlePrefix  = "throttle"
	anonymousPrefix = "ratelimit:anonymous"
)

// NewAnonymousLimiter is the fixed per-IP limiter for unauthenticated traffic.
// A nil client keeps the counters in process memory.
func NewAnonymousLimiter(client *redis.Client, perMinute int) (*limiter.Limiter, error) {
	rate := limiter.Rate{Period: time.Minute, Limit: int64(perMinute)}

	if client == nil {
		return limiter.New(memorystore.NewStoreWithOptions(limiter.StoreOptions{Prefix: anonymousPrefix}), rate), nil
	}

	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix:   anonymousPrefix,
		MaxRetry: 3,
	})
	if err != nil {
		return nil, err
	}
	return limiter.New(store, rate), nil
}

// RateLimiter holds the request guards built on the quota policy
type RateLimiter struct {
	policy    *ratelimit.Policy
	counter   ratelimit.Counter
	anonymous *limiter.Limiter
	log       *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewRateLimiter(policy *ratelimit.Policy, counter ratelimit.Counter, anonymous *limiter.Limiter, log *zap.Logger, m *metrics.Metrics) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{
		policy:    policy,
		counter:   counter,
		anonymous: anonymous,
		log:       log,
		metrics:   m,
		now:       time.Now,
	}
}

// TenantLimit counts every request against the caller's tenant quota and reports
// the result in headers. It never rejects; anonymous callers go through the
// per-IP limiter instead, which does.
func (l *RateLimiter) TenantLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := GetIdentity(c)
		if id == nil {
			l.limitAnonymous(c)
			return
		}

		quota := l.policy.Resolve(id.Tenant, id.User(), c.Request.URL.Path)
		if quota.Unlimited {
			l.metrics.RecordDecision("tenant", "unlimited")
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := scope.RateLimitKey(quota.Pattern, id.TenantScope(), id.UserScope())

		attempts, err := l.counter.Hit(ctx, key, quota.Decay)
		if err != nil {
			l.failOpen(c, "tenant", key, err)
			return
		}

		remaining := int64(quota.MaxAttempts) - attempts
		l.writeHeaders(ctx, c, key, quota, remaining)

		if remaining < 0 {
			l.metrics.RecordDecision("tenant", "over_limit")
		} else {
			l.metrics.RecordDecision("tenant", "allowed")
		}
		c.Next()
	}
}

// EndpointThrottle rejects with 429 once the endpoint quota is used up. The
// check happens before counting, so rejected requests do not extend the window.
func (l *RateLimiter) EndpointThrottle() gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			quota ratelimit.Quota
			key   string
			path  = c.Request.URL.Path
		)

		if id := GetIdentity(c); id != nil {
			quota = l.policy.Resolve(id.Tenant, id.User(), path)
			key = scope.RateLimitKey(quota.Pattern, id.TenantScope(), id.UserScope())
		} else {
			quota = l.policy.Anonymous(path)
			key = scope.RateLimitKey(quota.Pattern, scope.IP(c.ClientIP()))
		}

		if quota.Unlimited {
			l.metrics.RecordDecision("endpoint", "unlimited")
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key = throttlePrefix + ":" + key

		tooMany, err := l.counter.TooManyAttempts(ctx, key, quota.MaxAttempts)
		if err != nil {
			l.failOpen(c, "endpoint", key, err)
			return
		}
		if tooMany {
			retryAfter := l.retryAfter(ctx, key, quota)
			l.metrics.RecordDecision("endpoint", "rejected")
			tooManyRequests(c, int64(quota.MaxAttempts), retryAfter, l.now().Unix()+retryAfter)
			return
		}

		attempts, err := l.counter.Hit(ctx, key, quota.Decay)
		if err != nil {
			l.failOpen(c, "endpoint", key, err)
			return
		}

		l.writeHeaders(ctx, c, key, quota, int64(quota.MaxAttempts)-attempts)
		l.metrics.RecordDecision("endpoint", "allowed")
		c.Next()
	}
}

func (l *RateLimiter) limitAnonymous(c *gin.Context) {
	if l.anonymous == nil {
		c.Next()
		return
	}

	result, err := l.anonymous.Get(c.Request.Context(), c.ClientIP())
	if err != nil {
		l.failOpen(c, "anonymous", c.ClientIP(), err)
		return
	}

	c.Header(HeaderLimit, strconv.FormatInt(result.Limit, 10))
	c.Header(HeaderRemaining, strconv.FormatInt(result.Remaining, 10))

	if result.Reached {
		retryAfter := result.Reset - l.now().Unix()
		if retryAfter < 0 {
			retryAfter = 0
		}
		l.metrics.RecordDecision("anonymous", "rejected")
		tooManyRequests(c, result.Limit, retryAfter, result.Reset)
		return
	}

	l.metrics.RecordDecision("anonymous", "allowed")
	c.Next()
}

// writeHeaders sets the accounting headers. Retry-After and the reset time are
// only sent once the quota is used up.
func (l *RateLimiter) writeHeaders(ctx context.Context, c *gin.Context, key string, quota ratelimit.Quota, remaining int64) {
	c.Header(HeaderLimit, strconv.Itoa(quota.MaxAttempts))
	c.Header(HeaderRemaining, strconv.FormatInt(remaining, 10))

	if remaining <= 0 {
		retryAfter := l.retryAfter(ctx, key, quota)
		c.Header(HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))
		c.Header(HeaderReset, strconv.FormatInt(l.now().Unix()+retryAfter, 10))
	}
}

// retryAfter is the number of whole seconds until key expires. The full decay
// is assumed when the store cannot tell.
func (l *RateLimiter) retryAfter(ctx context.Context, key string, quota ratelimit.Quota) int64 {
	availableIn, err := l.counter.AvailableIn(ctx, key)
	if err != nil {
		availableIn = quota.Decay
	}
	return int64(math.Ceil(availableIn.Seconds()))
}

func (l *RateLimiter) failOpen(c *gin.Context, limiterName, key string, err error) {
	l.metrics.RecordStoreError("ratelimit")
	l.metrics.RecordDecision(limiterName, "fail_open")
	l.log.Warn("rate limit store unavailable, allowing request",
		zap.String("limiter", limiterName),
		zap.String("key", key),
		zap.Error(err),
	)
	c.Next()
}

func tooManyRequests(c *gin.Context, limit, retryAfter, reset int64) {
	c.Header(HeaderLimit, strconv.FormatInt(limit, 10))
	c.Header(HeaderRemaining, "0")
	c.Header(HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))
	c.Header(HeaderReset, strconv.FormatInt(reset, 10))

	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"message":     "Too Many Requests",
		"retry_after": retryAfter,
	})
}
