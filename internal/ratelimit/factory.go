package ratelimit

import (
	"github.com/aman-churiwal/tenantgate/internal/circuitbreaker"
	"github.com/aman-churiwal/tenantgate/internal/config"
	"github.com/aman-churiwal/tenantgate/internal/storage"
)

// NewCounter builds the redis counter for the configured window mode, wrapped
// with the store timeout and breaker
func NewCounter(redis *storage.RedisClient, cfg config.RateLimitConfig, breaker *circuitbreaker.Breaker) Counter {
	inner := NewRedisCounter(redis, cfg.WindowMode)
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			Name:        "ratelimit-store",
			MaxFailures: cfg.BreakerMaxFailures,
			Cooldown:    cfg.BreakerCooldown(),
		})
	}
	return NewResilientCounter(inner, breaker, cfg.StoreTimeout())
}
