package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aman-churiwal/tenantgate/internal/config"
	"github.com/aman-churiwal/tenantgate/internal/feature"
	"github.com/aman-churiwal/tenantgate/internal/middleware"
	"github.com/aman-churiwal/tenantgate/internal/ratelimit"
	"github.com/aman-churiwal/tenantgate/internal/repository"
	"github.com/aman-churiwal/tenantgate/internal/service"
	"github.com/aman-churiwal/tenantgate/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type testEnv struct {
	router   *gin.Engine
	auth     *service.AuthService
	tenants  *service.TenantService
	features *service.FeatureFlagService
	manager  *feature.Manager
	redis    *miniredis.Miniredis
	identity *middleware.Identity
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := storage.Open(sqlite.Open(dsn))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rc := storage.NewRedisFromClient(client)

	userRepo := repository.NewUserRepository(db)
	flagRepo := repository.NewFeatureFlagRepository(db)

	manager := feature.New(feature.Options{
		Store:       flagRepo,
		Cache:       feature.NewRedisCache(rc),
		Environment: "production",
	})
	require.NoError(t, manager.Load(context.Background()))

	policy, err := ratelimit.NewPolicy(config.Default().RateLimit)
	require.NoError(t, err)

	env := &testEnv{
		auth:    service.NewAuthService(userRepo, "test-secret", 1),
		tenants: service.NewTenantService(repository.NewTenantRepository(db), userRepo, rc, zap.NewNop()),
		manager: manager,
		redis:   mr,
	}
	env.features = service.NewFeatureFlagService(flagRepo, manager)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if env.identity != nil {
			middleware.SetIdentity(c, env.identity)
		}
		c.Next()
	})

	authHandler := NewAuthHandler(env.auth, policy)
	featureHandler := NewFeatureHandler(manager)
	featureAdmin := NewFeatureAdminHandler(env.features)
	tenantHandler := NewTenantHandler(env.tenants)

	r.POST("/api/auth/login", authHandler.Login)
	r.GET("/api/me", authHandler.Me)
	r.GET("/api/features", featureHandler.List)
	r.GET("/api/features/:key", featureHandler.Get)

	r.POST("/admin/users", authHandler.Register)

	r.POST("/admin/tenants", tenantHandler.Create)
	r.GET("/admin/tenants", tenantHandler.List)
	r.GET("/admin/tenants/:id", tenantHandler.Get)
	r.PUT("/admin/tenants/:id/plan", tenantHandler.UpdatePlan)
	r.PUT("/admin/tenants/:id/settings", tenantHandler.UpdateSettings)
	r.PUT("/admin/tenants/:id/active", tenantHandler.SetActive)
	r.DELETE("/admin/tenants/:id", tenantHandler.Delete)

	r.POST("/admin/features", featureAdmin.Create)
	r.GET("/admin/features", featureAdmin.List)
	r.POST("/admin/features/purge", featureAdmin.Purge)
	r.GET("/admin/features/:key", featureAdmin.Get)
	r.DELETE("/admin/features/:key", featureAdmin.Delete)
	r.PUT("/admin/features/:key/active", featureAdmin.SetActive)
	r.PUT("/admin/features/:key/value", featureAdmin.SetGlobal)
	r.PUT("/admin/features/:key/tenants/:id", featureAdmin.SetTenantOverride)
	r.DELETE("/admin/features/:key/tenants/:id", featureAdmin.RemoveTenantOverride)
	r.PUT("/admin/features/:key/users/:id", featureAdmin.SetUserOverride)
	r.DELETE("/admin/features/:key/users/:id", featureAdmin.RemoveUserOverride)
	r.PUT("/admin/features/:key/percentage", featureAdmin.UpdatePercentage)
	r.PUT("/admin/features/:key/date-range", featureAdmin.UpdateDateRange)
	r.PUT("/admin/features/:key/environments", featureAdmin.UpdateEnvironments)
	r.PUT("/admin/features/:key/variants", featureAdmin.UpdateVariants)

	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}
