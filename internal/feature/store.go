package feature

import (
	"context"
	"errors"

	"github.com/aman-churiwal/tenantgate/internal/models"
	"github.com/google/uuid"
)

var (
	ErrFlagNotFound  = errors.New("feature flag not found")
	ErrScopeMismatch = errors.New("scope kind does not match flag type")
)

// Store persists flag definitions and per-scope overrides
type Store interface {
	ListFlags(ctx context.Context) ([]models.FeatureFlag, error)
	// FindFlag returns nil, nil when the flag does not exist
	FindFlag(ctx context.Context, key string) (*models.FeatureFlag, error)
	SaveFlag(ctx context.Context, flag *models.FeatureFlag) error

	// FindOverride returns nil, nil when no override exists
	FindOverride(ctx context.Context, flagID uuid.UUID, kind, scopeID string) (*models.FeatureOverride, error)
	// SaveOverride inserts or replaces the override of (flag, kind, scope)
	SaveOverride(ctx context.Context, override *models.FeatureOverride) error
	DeleteOverride(ctx context.Context, flagID uuid.UUID, kind, scopeID string) error
	DeleteAllOverrides(ctx context.Context) error
}
