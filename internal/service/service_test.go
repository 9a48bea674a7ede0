package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aman-churiwal/tenantgate/internal/feature"
	"github.com/aman-churiwal/tenantgate/internal/repository"
	"github.com/aman-churiwal/tenantgate/internal/storage"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *storage.Database {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := storage.Open(sqlite.Open(dsn))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestRedis(t *testing.T) (*storage.RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return storage.NewRedisFromClient(client), mr
}

func newFeatureFlagService(t *testing.T) (*FeatureFlagService, *feature.Manager) {
	t.Helper()
	repo := repository.NewFeatureFlagRepository(newTestDB(t))
	rc, _ := newTestRedis(t)

	manager := feature.New(feature.Options{
		Store:       repo,
		Cache:       feature.NewRedisCache(rc),
		Environment: "production",
	})
	require.NoError(t, manager.Load(context.Background()))

	return NewFeatureFlagService(repo, manager), manager
}

func intPtr(v int) *int { return &v }
