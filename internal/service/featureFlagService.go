package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/aman-churiwal/tenantgate/internal/feature"
	"github.com/aman-churiwal/tenantgate/internal/models"
	"github.com/aman-churiwal/tenantgate/internal/repository"
	"github.com/aman-churiwal/tenantgate/internal/scope"
	"gorm.io/gorm"
)

var (
	ErrFlagExists       = errors.New("feature flag already exists")
	ErrInvalidFlagType  = errors.New("invalid feature flag type")
	ErrInvalidFlagKey   = errors.New("feature flag key must be 1-128 of a-z, 0-9, '.', '_' or '-'")
	ErrWrongFlagType    = errors.New("operation does not apply to this flag type")
	ErrInvalidDateRange = errors.New("ends_at must not be before starts_at")
	ErrInvalidVariants  = errors.New("variants must be non-empty with a positive total weight")
)

var flagKeyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,127}$`)

type CreateFlagInput struct {
	Key          string
	Name         string
	Description  string
	Type         models.FlagType
	DefaultValue bool
	IsActive     bool
	Parameters   models.FlagParameters
	StartsAt     *time.Time
	EndsAt       *time.Time
}

// FeatureFlagService is the administrative side of feature flags. Every
// mutation refreshes the flag in the manager, which also drops its cached values.
type FeatureFlagService struct {
	repository *repository.FeatureFlagRepository
	manager    *feature.Manager
}

func NewFeatureFlagService(repo *repository.FeatureFlagRepository, manager *feature.Manager) *FeatureFlagService {
	return &FeatureFlagService{
		repository: repo,
		manager:    manager,
	}
}

func (s *FeatureFlagService) Create(ctx context.Context, in CreateFlagInput) (*models.FeatureFlag, error) {
	if !flagKeyPattern.MatchString(in.Key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFlagKey, in.Key)
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFlagType, in.Type)
	}
	if err := validateWindow(in.StartsAt, in.EndsAt); err != nil {
		return nil, err
	}

	params, err := sanitizeParameters(in.Type, in.Parameters)
	if err != nil {
		return nil, err
	}

	existing, err := s.repository.FindFlag(ctx, in.Key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrFlagExists
	}

	name := in.Name
	if name == "" {
		name = in.Key
	}

	flag := &models.FeatureFlag{
		Key:          in.Key,
		Name:         name,
		Description:  in.Description,
		Type:         in.Type,
		DefaultValue: in.DefaultValue,
		IsActive:     in.IsActive,
		StartsAt:     in.StartsAt,
		EndsAt:       in.EndsAt,
	}
	flag.SetParams(params)

	if err := s.repository.Create(ctx, flag); err != nil {
		return nil, fmt.Errorf("failed to create feature flag: %w", err)
	}

	if err := s.manager.Refresh(ctx, flag.Key); err != nil {
		return nil, err
	}
	return flag, nil
}

func (s *FeatureFlagService) List(ctx context.Context) ([]models.FeatureFlag, error) {
	return s.repository.ListFlags(ctx)
}

// Get returns the flag and its overrides
func (s *FeatureFlagService) Get(ctx context.Context, key string) (*models.FeatureFlag, []models.FeatureOverride, error) {
	flag, err := s.find(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	overrides, err := s.repository.ListOverrides(ctx, flag.ID)
	if err != nil {
		return nil, nil, err
	}
	return flag, overrides, nil
}

func (s *FeatureFlagService) Delete(ctx context.Context, key string) error {
	err := s.repository.DeleteFlag(ctx, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return feature.ErrFlagNotFound
	}
	if err != nil {
		return err
	}
	return s.manager.Refresh(ctx, key)
}

func (s *FeatureFlagService) SetActive(ctx context.Context, key string, active bool) (*models.FeatureFlag, error) {
	return s.update(ctx, key, func(f *models.FeatureFlag) error {
		f.IsActive = active
		return nil
	})
}

// SetGlobal changes the flag default, which is the value of every unscoped evaluation
func (s *FeatureFlagService) SetGlobal(ctx context.Context, key string, value bool) error {
	return s.manager.Activate(ctx, key, scope.Scope{}, value)
}

func (s *FeatureFlagService) SetOverride(ctx context.Context, key string, sc scope.Scope, value bool, expiresAt *time.Time) error {
	return s.manager.ActivateUntil(ctx, key, sc, value, expiresAt)
}

func (s *FeatureFlagService) RemoveOverride(ctx context.Context, key string, sc scope.Scope) error {
	return s.manager.Forget(ctx, key, sc)
}

// PurgeAll drops every override and cached value, then reloads the flags
func (s *FeatureFlagService) PurgeAll(ctx context.Context) error {
	if err := s.manager.PurgeAll(ctx); err != nil {
		return err
	}
	return s.manager.Load(ctx)
}

// UpdatePercentage clamps p to [0, 100]
func (s *FeatureFlagService) UpdatePercentage(ctx context.Context, key string, p int) (*models.FeatureFlag, error) {
	return s.update(ctx, key, func(f *models.FeatureFlag) error {
		if f.Type != models.FlagPercentage {
			return ErrWrongFlagType
		}
		params := f.Params()
		clamped := feature.ClampPercentage(p)
		params.Percentage = &clamped
		f.SetParams(params)
		return nil
	})
}

func (s *FeatureFlagService) UpdateDateRange(ctx context.Context, key string, startsAt, endsAt *time.Time) (*models.FeatureFlag, error) {
	if err := validateWindow(startsAt, endsAt); err != nil {
		return nil, err
	}
	return s.update(ctx, key, func(f *models.FeatureFlag) error {
		f.StartsAt = startsAt
		f.EndsAt = endsAt
		return nil
	})
}

func (s *FeatureFlagService) UpdateEnvironments(ctx context.Context, key string, environments []string) (*models.FeatureFlag, error) {
	return s.update(ctx, key, func(f *models.FeatureFlag) error {
		params := f.Params()
		params.Environments = environments
		f.SetParams(params)
		return nil
	})
}

// UpdateVariants replaces the A/B variants. An empty defaultVariant keeps the
// current one, or takes the first variant when none is set.
func (s *FeatureFlagService) UpdateVariants(ctx context.Context, key string, variants models.Variants, defaultVariant string) (*models.FeatureFlag, error) {
	return s.update(ctx, key, func(f *models.FeatureFlag) error {
		if f.Type != models.FlagABTest {
			return ErrWrongFlagType
		}
		params := f.Params()
		params.Variants = variants
		if defaultVariant != "" {
			params.DefaultVariant = defaultVariant
		}
		sanitized, err := sanitizeParameters(f.Type, params)
		if err != nil {
			return err
		}
		f.SetParams(sanitized)
		return nil
	})
}

func (s *FeatureFlagService) find(ctx context.Context, key string) (*models.FeatureFlag, error) {
	flag, err := s.repository.FindFlag(ctx, key)
	if err != nil {
		return nil, err
	}
	if flag == nil {
		return nil, feature.ErrFlagNotFound
	}
	return flag, nil
}

func (s *FeatureFlagService) update(ctx context.Context, key string, mutate func(*models.FeatureFlag) error) (*models.FeatureFlag, error) {
	flag, err := s.find(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := mutate(flag); err != nil {
		return nil, err
	}

	if err := s.repository.SaveFlag(ctx, flag); err != nil {
		return nil, fmt.Errorf("failed to update feature flag: %w", err)
	}

	if err := s.manager.Refresh(ctx, key); err != nil {
		return nil, err
	}
	return flag, nil
}

func validateWindow(startsAt, endsAt *time.Time) error {
	if startsAt != nil && endsAt != nil && endsAt.Before(*startsAt) {
		return ErrInvalidDateRange
	}
	return nil
}

// sanitizeParameters makes params fit the shape t requires
func sanitizeParameters(t models.FlagType, params models.FlagParameters) (models.FlagParameters, error) {
	switch t {
	case models.FlagPercentage:
		p := 0
		if params.Percentage != nil {
			p = feature.ClampPercentage(*params.Percentage)
		}
		params.Percentage = &p
	case models.FlagABTest:
		if len(params.Variants) == 0 || params.Variants.TotalWeight() <= 0 {
			return params, ErrInvalidVariants
		}
		for _, v := range params.Variants {
			if v.Name == "" || v.Weight < 0 {
				return params, ErrInvalidVariants
			}
		}
		if params.DefaultVariant == "" {
			params.DefaultVariant = params.Variants[0].Name
		}
	}
	return params, nil
}
