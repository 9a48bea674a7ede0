package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-churiwal/tenantgate/internal/circuitbreaker"
	"github.com/aman-churiwal/tenantgate/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	concurrencyPrefix = "concurrency:"
	// in-flight counters of crashed processes disappear after this long
	concurrencyTTL = 5 * time.Minute
)

// ConcurrencyGuard caps the number of in-flight requests per key
type ConcurrencyGuard struct {
	redis   *storage.RedisClient
	breaker *circuitbreaker.Breaker
	timeout time.Duration
}

func NewConcurrencyGuard(redis *storage.RedisClient, breaker *circuitbreaker.Breaker, timeout time.Duration) *ConcurrencyGuard {
	return &ConcurrencyGuard{redis: redis, breaker: breaker, timeout: timeout}
}

// Acquire takes a slot. When the cap is exceeded the slot is given back and
// acquired is false. inFlight is the count observed after incrementing.
func (g *ConcurrencyGuard) Acquire(ctx context.Context, key string, limit int) (acquired bool, inFlight int64, err error) {
	redisKey := concurrencyPrefix + key

	err = g.call(ctx, func(ctx context.Context) error {
		pipe := g.redis.TxPipeline()
		incr := pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, concurrencyTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		inFlight = incr.Val()
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	if inFlight > int64(limit) {
		if err := g.Release(ctx, key); err != nil {
			return false, inFlight, err
		}
		return false, inFlight, nil
	}

	return true, inFlight, nil
}

// Release gives back a slot taken by a successful Acquire
func (g *ConcurrencyGuard) Release(ctx context.Context, key string) error {
	redisKey := concurrencyPrefix + key

	return g.call(ctx, func(ctx context.Context) error {
		n, err := g.redis.Decr(ctx, redisKey)
		if err != nil {
			return err
		}
		if n <= 0 {
			// never leave a negative count behind
			return g.redis.Del(ctx, redisKey)
		}
		return nil
	})
}

// InFlight returns the current number of taken slots
func (g *ConcurrencyGuard) InFlight(ctx context.Context, key string) (int64, error) {
	var n int64
	err := g.call(ctx, func(ctx context.Context) error {
		val, err := g.redis.Client().Get(ctx, concurrencyPrefix+key).Int64()
		if err == redis.Nil {
			return nil
		}
		n = val
		return err
	})
	return n, err
}

func (g *ConcurrencyGuard) call(ctx context.Context, fn func(ctx context.Context) error) error {
	run := func() error {
		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		return fn(callCtx)
	}

	var err error
	if g.breaker != nil {
		err = g.breaker.Call(run)
	} else {
		err = run()
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}
