package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aman-churiwal/tenantgate/internal/models"
	"github.com/aman-churiwal/tenantgate/internal/repository"
	"github.com/aman-churiwal/tenantgate/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const tenantCacheTTL = 5 * time.Minute

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrInvalidPlan    = errors.New("invalid plan")
	ErrTenantHasUsers = errors.New("tenant still has users")
	ErrInvalidLimit   = errors.New("limit must be positive")
)

type TenantService struct {
	repository *repository.TenantRepository
	users      *repository.UserRepository
	redis      *storage.RedisClient
	log        *zap.Logger
}

func NewTenantService(repo *repository.TenantRepository, users *repository.UserRepository, redis *storage.RedisClient, log *zap.Logger) *TenantService {
	if log == nil {
		log = zap.NewNop()
	}
	return &TenantService{
		repository: repo,
		users:      users,
		redis:      redis,
		log:        log,
	}
}

func tenantCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("tenant:cache:%s", id)
}

func (s *TenantService) Create(ctx context.Context, name string, plan models.Plan) (*models.Tenant, error) {
	if plan == "" {
		plan = models.PlanFree
	}
	if !plan.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlan, plan)
	}

	tenant := &models.Tenant{
		Name:     name,
		Plan:     plan,
		IsActive: true,
	}
	if err := s.repository.Create(ctx, tenant); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}
	return tenant, nil
}

// Get reads through the redis cache. Cache failures fall back to the database.
func (s *TenantService) Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	cacheKey := tenantCacheKey(id)

	if s.redis != nil {
		cached, err := s.redis.Get(ctx, cacheKey)
		if err == nil && cached != "" {
			var tenant models.Tenant
			if err := json.Unmarshal([]byte(cached), &tenant); err == nil {
				return &tenant, nil
			}
		}
	}

	tenant, err := s.repository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, nil
	}

	if s.redis != nil {
		tenantJSON, _ := json.Marshal(tenant)
		if err := s.redis.Set(ctx, cacheKey, tenantJSON, tenantCacheTTL); err != nil {
			s.log.Debug("failed to cache tenant", zap.String("tenant_id", id.String()), zap.Error(err))
		}
	}

	return tenant, nil
}

func (s *TenantService) List(ctx context.Context) ([]models.Tenant, error) {
	return s.repository.List(ctx)
}

func (s *TenantService) UpdatePlan(ctx context.Context, id uuid.UUID, plan models.Plan) (*models.Tenant, error) {
	if !plan.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPlan, plan)
	}
	return s.update(ctx, id, func(t *models.Tenant) {
		t.Plan = plan
	})
}

// UpdateSettings replaces the quota overrides. Nil fields go back to the plan defaults.
func (s *TenantService) UpdateSettings(ctx context.Context, id uuid.UUID, settings models.TenantSettings) (*models.Tenant, error) {
	for _, limit := range []*int{settings.CustomRateLimit, settings.MaxConcurrentRequests} {
		if limit != nil && *limit <= 0 {
			return nil, ErrInvalidLimit
		}
	}
	return s.update(ctx, id, func(t *models.Tenant) {
		t.Settings = settings
	})
}

func (s *TenantService) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Tenant, error) {
	return s.update(ctx, id, func(t *models.Tenant) {
		t.IsActive = active
	})
}

// Delete refuses while users still belong to the tenant
func (s *TenantService) Delete(ctx context.Context, id uuid.UUID) error {
	count, err := s.users.CountByTenant(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrTenantHasUsers
	}

	s.invalidateCache(ctx, id)
	return s.repository.Delete(ctx, id)
}

func (s *TenantService) update(ctx context.Context, id uuid.UUID, mutate func(*models.Tenant)) (*models.Tenant, error) {
	tenant, err := s.repository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, ErrTenantNotFound
	}

	mutate(tenant)
	if err := s.repository.Save(ctx, tenant); err != nil {
		return nil, fmt.Errorf("failed to update tenant: %w", err)
	}

	s.invalidateCache(ctx, id)
	return tenant, nil
}

func (s *TenantService) invalidateCache(ctx context.Context, id uuid.UUID) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, tenantCacheKey(id)); err != nil {
		s.log.Warn("failed to invalidate tenant cache", zap.String("tenant_id", id.String()), zap.Error(err))
	}
}
