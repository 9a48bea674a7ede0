package feature

import (
	"context"
	"testing"
	"time"

	"github.com/aman-churiwal/tenantgate/internal/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "features:sso:v0:tenant:acme", CacheKey("sso", 0, scope.Tenant("acme")))
	assert.Equal(t, "features:beta:v3:user:42", CacheKey("beta", 3, scope.User("42")))
}

func TestRedisCache_GetPutForget(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	_, found, err := cache.Get(ctx, "features:sso:tenant:acme")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Put(ctx, "features:sso:tenant:acme", "1", time.Minute))
	val, found, err := cache.Get(ctx, "features:sso:tenant:acme")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", val)

	mr.FastForward(2 * time.Minute)
	_, found, err = cache.Get(ctx, "features:sso:tenant:acme")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Put(ctx, "features:sso:tenant:acme", "0", time.Minute))
	require.NoError(t, cache.Forget(ctx, "features:sso:tenant:acme"))
	assert.False(t, mr.Exists("features:sso:tenant:acme"))
}

func TestRedisCache_ForgetFeature(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	for _, key := range []string{
		CacheKey("sso", 0, scope.Tenant("a")),
		CacheKey("sso", 0, scope.Tenant("b")),
		CacheKey("ssox", 0, scope.Tenant("a")),
		CacheKey("beta", 0, scope.User("1")),
	} {
		require.NoError(t, cache.Put(ctx, key, "1", time.Minute))
	}
	require.NoError(t, mr.Set("ratelimit:unrelated", "3"))

	require.NoError(t, cache.ForgetFeature(ctx, "sso"))
	assert.False(t, mr.Exists(CacheKey("sso", 0, scope.Tenant("a"))))
	assert.False(t, mr.Exists(CacheKey("sso", 0, scope.Tenant("b"))))
	assert.True(t, mr.Exists(CacheKey("ssox", 0, scope.Tenant("a"))))

	require.NoError(t, cache.FlushAll(ctx))
	assert.False(t, mr.Exists(CacheKey("beta", 0, scope.User("1"))))
	assert.True(t, mr.Exists("ratelimit:unrelated"))

	// nothing left to delete
	require.NoError(t, cache.ForgetFeature(ctx, "sso"))
}

func TestRedisCache_ForgetFeatureBumpsGeneration(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)

	gen, err := cache.Generation(ctx, "sso")
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)

	require.NoError(t, cache.ForgetFeature(ctx, "sso"))
	gen, err = cache.Generation(ctx, "sso")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	require.NoError(t, cache.FlushAll(ctx))
	gen, err = cache.Generation(ctx, "sso")
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen, "flushing never rewinds a generation")

	other, err := cache.Generation(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, int64(0), other)
}

func TestRedisCache_ForgetFeatureWithPatternCharacters(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	for _, feature := range []string{`beta[v2]`, `beta\x`, `beta*`, `beta?`} {
		key := CacheKey(feature, 0, scope.Tenant("acme"))
		require.NoError(t, cache.Put(ctx, key, "0", time.Minute))
		require.NoError(t, cache.ForgetFeature(ctx, feature))
		assert.False(t, mr.Exists(key), feature)
	}

	// a bracketed key is not a character class
	bystander := CacheKey("betav", 0, scope.Tenant("acme"))
	require.NoError(t, cache.Put(ctx, bystander, "1", time.Minute))
	require.NoError(t, cache.ForgetFeature(ctx, "beta[v2]"))
	assert.True(t, mr.Exists(bystander))
}
