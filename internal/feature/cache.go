package feature

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/aman-churiwal/tenantgate/internal/scope"
	"github.com/aman-churiwal/tenantgate/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	cachePrefix      = "features:"
	generationPrefix = "featuregen:"
	DefaultCacheTTL  = 30 * time.Minute
)

// Cache memoizes resolved per-scope override values
type Cache interface {
	// Generation is the current generation of feature. Values are memoized
	// under a generation and only read back under the same one.
	Generation(ctx context.Context, feature string) (int64, error)
	// Get reports found=false on a miss
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
	// ForgetFeature moves feature to a new generation and drops every key
	// memoized for it. A load that started before the call can only write
	// under the old generation.
	ForgetFeature(ctx context.Context, feature string) error
	FlushAll(ctx context.Context) error
}

// CacheKey is the key under which the value of feature for s is memoized
// in the given generation
func CacheKey(feature string, generation int64, s scope.Scope) string {
	return cachePrefix + feature + ":v" + strconv.FormatInt(generation, 10) + ":" + string(s.Kind) + ":" + s.ID
}

func generationKey(feature string) string {
	return generationPrefix + feature
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax
func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}

type RedisCache struct {
	redis *storage.RedisClient
}

func NewRedisCache(redis *storage.RedisClient) *RedisCache {
	return &RedisCache{redis: redis}
}

func (c *RedisCache) Generation(ctx context.Context, feature string) (int64, error) {
	val, err := c.redis.Get(ctx, generationKey(feature))
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.redis.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.redis.Set(ctx, key, value, ttl)
}

func (c *RedisCache) Forget(ctx context.Context, key string) error {
	return c.redis.Del(ctx, key)
}

func (c *RedisCache) ForgetFeature(ctx context.Context, feature string) error {
	if _, err := c.redis.Incr(ctx, generationKey(feature)); err != nil {
		return err
	}

	keys, err := c.redis.ScanKeys(ctx, cachePrefix+escapeGlob(feature)+":*")
	if err != nil {
		return err
	}
	return c.redis.Del(ctx, keys...)
}

// FlushAll bumps every known generation and drops all memoized values
func (c *RedisCache) FlushAll(ctx context.Context) error {
	generations, err := c.redis.ScanKeys(ctx, generationPrefix+"*")
	if err != nil {
		return err
	}
	for _, key := range generations {
		if _, err := c.redis.Incr(ctx, key); err != nil {
			return err
		}
	}

	keys, err := c.redis.ScanKeys(ctx, cachePrefix+"*")
	if err != nil {
		return err
	}
	return c.redis.Del(ctx, keys...)
}
