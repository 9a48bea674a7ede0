package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aman-churiwal/tenantgate/internal/authz"
	"github.com/aman-churiwal/tenantgate/internal/circuitbreaker"
	"github.com/aman-churiwal/tenantgate/internal/config"
	"github.com/aman-churiwal/tenantgate/internal/feature"
	"github.com/aman-churiwal/tenantgate/internal/handler"
	"github.com/aman-churiwal/tenantgate/internal/healthcheck"
	"github.com/aman-churiwal/tenantgate/internal/metrics"
	"github.com/aman-churiwal/tenantgate/internal/middleware"
	"github.com/aman-churiwal/tenantgate/internal/ratelimit"
	"github.com/aman-churiwal/tenantgate/internal/repository"
	"github.com/aman-churiwal/tenantgate/internal/service"
	"github.com/aman-churiwal/tenantgate/internal/storage"
	"github.com/casbin/casbin/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const storeBreakerName = "ratelimit-store"

type Server struct {
	router   *gin.Engine
	config   *config.Config
	log      *zap.Logger
	redis    *storage.RedisClient
	database *storage.Database
	metrics  *metrics.Metrics

	breaker     *circuitbreaker.Breaker
	health      *healthcheck.Checker
	enforcer    *casbin.Enforcer
	features    *feature.Manager
	rateLimiter *middleware.RateLimiter
	concurrency *ratelimit.ConcurrencyGuard
	policy      *ratelimit.Policy

	authService   *service.AuthService
	tenantService *service.TenantService

	authHandler         *handler.AuthHandler
	tenantHandler       *handler.TenantHandler
	featureHandler      *handler.FeatureHandler
	featureAdminHandler *handler.FeatureAdminHandler
	systemHandler       *handler.SystemHandler

	httpServer *http.Server
}

// New wires the services on top of redis and the database and loads the
// feature flag registry. m may be nil.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, redis *storage.RedisClient, db *storage.Database, m *metrics.Metrics) (*Server, error) {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:   gin.New(),
		config:   cfg,
		log:      log,
		redis:    redis,
		database: db,
		metrics:  m,
	}

	policy, err := ratelimit.NewPolicy(cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	s.policy = policy

	s.breaker = circuitbreaker.New(circuitbreaker.Config{
		Name:        storeBreakerName,
		MaxFailures: cfg.RateLimit.BreakerMaxFailures,
		Cooldown:    cfg.RateLimit.BreakerCooldown(),
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			m.SetBreakerState(name, int(to))
		},
	})
	m.SetBreakerState(storeBreakerName, int(circuitbreaker.StateClosed))

	anonymous, err := middleware.NewAnonymousLimiter(redis.Client(), cfg.RateLimit.AnonymousPerMinute)
	if err != nil {
		return nil, fmt.Errorf("failed to create anonymous limiter: %w", err)
	}
	counter := ratelimit.NewCounter(redis, cfg.RateLimit, s.breaker)
	s.rateLimiter = middleware.NewRateLimiter(policy, counter, anonymous, log, m)
	s.concurrency = ratelimit.NewConcurrencyGuard(redis, s.breaker, cfg.RateLimit.StoreTimeout())

	s.enforcer, err = authz.NewEnforcer(db.DB)
	if err != nil {
		return nil, err
	}

	userRepo := repository.NewUserRepository(db)
	tenantRepo := repository.NewTenantRepository(db)
	flagRepo := repository.NewFeatureFlagRepository(db)

	s.features = feature.New(feature.Options{
		Store:       flagRepo,
		Cache:       feature.NewRedisCache(redis),
		Log:         log,
		Metrics:     m,
		Environment: cfg.FeatureEnvironment(),
		CacheTTL:    cfg.Features.CacheTTL(),
	})
	if err := s.features.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load feature flags: %w", err)
	}

	s.authService = service.NewAuthService(userRepo, cfg.Auth.JWTSecret, cfg.Auth.JWTExpiryHours)
	s.tenantService = service.NewTenantService(tenantRepo, userRepo, redis, log)
	flagService := service.NewFeatureFlagService(flagRepo, s.features)

	s.authHandler = handler.NewAuthHandler(s.authService, policy)
	s.tenantHandler = handler.NewTenantHandler(s.tenantService)
	s.featureHandler = handler.NewFeatureHandler(s.features)
	s.featureAdminHandler = handler.NewFeatureAdminHandler(flagService)
	s.systemHandler = handler.NewSystemHandler(s.breaker)

	// A single failed probe marks the dependency down so /health reflects it immediately
	s.health = healthcheck.NewChecker(&healthcheck.Config{
		Probes: map[string]healthcheck.Probe{
			"redis":    redis.Ping,
			"database": db.Ping,
		},
		MaxFailures: 1,
		OnChange:    m.SetDependencyUp,
		Log:         log,
	})

	// Setup middleware
	s.setupMiddleware()

	// Setup routes
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.log))
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger(s.log))
	s.router.Use(middleware.Authenticate(s.authService, s.tenantService, s.log))
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := s.router.Group("/api",
		s.rateLimiter.TenantLimit(),
		middleware.ConcurrencyLimit(s.concurrency, s.policy, s.log, s.metrics),
	)
	{
		auth := api.Group("/auth", s.rateLimiter.EndpointThrottle())
		auth.POST("/login", s.authHandler.Login)

		api.GET("/me", middleware.RequireAuth(), s.authHandler.Me)
		api.GET("/features", s.featureHandler.List)
		api.GET("/features/:key", s.featureHandler.Get)
	}

	admin := s.router.Group("/admin", middleware.RequireAuth(), middleware.Authorize(s.enforcer, s.log))
	{
		admin.GET("/status", s.adminStatus)
		admin.POST("/users", s.authHandler.Register)

		admin.POST("/tenants", s.tenantHandler.Create)
		admin.GET("/tenants", s.tenantHandler.List)
		admin.GET("/tenants/:id", s.tenantHandler.Get)
		admin.PUT("/tenants/:id/plan", s.tenantHandler.UpdatePlan)
		admin.PUT("/tenants/:id/settings", s.tenantHandler.UpdateSettings)
		admin.PUT("/tenants/:id/active", s.tenantHandler.SetActive)
		admin.DELETE("/tenants/:id", s.tenantHandler.Delete)

		features := admin.Group("/features")
		features.POST("", s.featureAdminHandler.Create)
		features.GET("", s.featureAdminHandler.List)
		features.POST("/purge", s.featureAdminHandler.Purge)
		features.GET("/:key", s.featureAdminHandler.Get)
		features.DELETE("/:key", s.featureAdminHandler.Delete)
		features.PUT("/:key/active", s.featureAdminHandler.SetActive)
		features.PUT("/:key/value", s.featureAdminHandler.SetGlobal)
		features.PUT("/:key/tenants/:id", s.featureAdminHandler.SetTenantOverride)
		features.DELETE("/:key/tenants/:id", s.featureAdminHandler.RemoveTenantOverride)
		features.PUT("/:key/users/:id", s.featureAdminHandler.SetUserOverride)
		features.DELETE("/:key/users/:id", s.featureAdminHandler.RemoveUserOverride)
		features.PUT("/:key/percentage", s.featureAdminHandler.UpdatePercentage)
		features.PUT("/:key/date-range", s.featureAdminHandler.UpdateDateRange)
		features.PUT("/:key/environments", s.featureAdminHandler.UpdateEnvironments)
		features.PUT("/:key/variants", s.featureAdminHandler.UpdateVariants)

		admin.GET("/system/circuit-breakers", s.systemHandler.CircuitBreakerStatus)
		admin.POST("/system/circuit-breakers/:name/reset", s.systemHandler.ResetCircuitBreaker)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	overall := s.health.CheckAll(c.Request.Context())

	statusCode := http.StatusOK
	if overall != healthcheck.Healthy {
		statusCode = http.StatusServiceUnavailable
	}

	checks := gin.H{}
	for name, status := range s.health.GetAllStatus() {
		checks[name] = status.IsHealthy
	}

	c.JSON(statusCode, gin.H{
		"status":    overall.String(),
		"service":   "tenantgate",
		"version":   "1.0.0",
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

func (s *Server) adminStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"gateway":       "running",
		"environment":   s.config.Server.Environment,
		"feature_flags": len(s.features.Registry().Keys()),
		"store_breaker": s.breaker.State().String(),
		"dependencies":  s.health.GetAllStatus(),
		"uptime":        time.Since(startTime).Seconds(),
		"timestamp":     time.Now().Unix(),
	})
}

func (s *Server) Run(addr string) error {
	s.health.Start()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	s.log.Info("starting tenantgate",
		zap.String("addr", addr),
		zap.String("environment", s.config.Server.Environment),
	)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down server")
	s.health.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

var startTime = time.Now()
