package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aman-churiwal/tenantgate/internal/config"
	"github.com/aman-churiwal/tenantgate/internal/storage"
	"github.com/redis/go-redis/v9"
)

const counterPrefix = "ratelimit:"

// RedisCounter keeps one integer per key. In sliding_expiry mode every hit
// pushes the expiry out by the decay window. In fixed_window mode the expiry is
// set by the first hit only.
type RedisCounter struct {
	redis *storage.RedisClient
	mode  string
}

func NewRedisCounter(redis *storage.RedisClient, mode string) *RedisCounter {
	if mode == "" {
		mode = config.WindowSlidingExpiry
	}
	return &RedisCounter{redis: redis, mode: mode}
}

func (r *RedisCounter) Hit(ctx context.Context, key string, decay time.Duration) (int64, error) {
	redisKey := counterPrefix + key
	pipe := r.redis.TxPipeline()

	var incr *redis.IntCmd
	if r.mode == config.WindowFixed {
		// creates the key with its expiry only if this is the window's first hit
		pipe.SetNX(ctx, redisKey, 0, decay)
		incr = pipe.Incr(ctx, redisKey)
	} else {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, decay)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	return incr.Val(), nil
}

func (r *RedisCounter) Attempts(ctx context.Context, key string) (int64, error) {
	val, err := r.redis.Get(ctx, counterPrefix+key)
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *RedisCounter) TooManyAttempts(ctx context.Context, key string, maxAttempts int) (bool, error) {
	attempts, err := r.Attempts(ctx, key)
	if err != nil {
		return false, err
	}
	return attempts >= int64(maxAttempts), nil
}

func (r *RedisCounter) AvailableIn(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.redis.PTTL(ctx, counterPrefix+key)
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (r *RedisCounter) Clear(ctx context.Context, key string) error {
	return r.redis.Del(ctx, counterPrefix+key)
}
