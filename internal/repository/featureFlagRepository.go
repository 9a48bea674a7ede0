package repository

import (
	"context"

	"github.com/aman-churiwal/tenantgate/internal/models"
	"github.com/aman-churiwal/tenantgate/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FeatureFlagRepository stores flags and their overrides. It satisfies feature.Store.
type FeatureFlagRepository struct {
	db *storage.Database
}

func NewFeatureFlagRepository(db *storage.Database) *FeatureFlagRepository {
	return &FeatureFlagRepository{db: db}
}

func (r *FeatureFlagRepository) Create(ctx context.Context, flag *models.FeatureFlag) error {
	return r.db.DB.WithContext(ctx).Create(flag).Error
}

func (r *FeatureFlagRepository) ListFlags(ctx context.Context) ([]models.FeatureFlag, error) {
	var flags []models.FeatureFlag
	err := r.db.DB.WithContext(ctx).
		Order("key ASC").
		Find(&flags).Error

	return flags, err
}

func (r *FeatureFlagRepository) FindFlag(ctx context.Context, key string) (*models.FeatureFlag, error) {
	var flag models.FeatureFlag
	err := r.db.DB.WithContext(ctx).
		Where("key = ?", key).
		First(&flag).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &flag, nil
}

func (r *FeatureFlagRepository) SaveFlag(ctx context.Context, flag *models.FeatureFlag) error {
	return r.db.DB.WithContext(ctx).Omit(clause.Associations).Save(flag).Error
}

// Removes the flag and its overrides in one transaction
func (r *FeatureFlagRepository) DeleteFlag(ctx context.Context, key string) error {
	return r.db.Transaction(ctx, func(tx *gorm.DB) error {
		var flag models.FeatureFlag
		if err := tx.Where("key = ?", key).First(&flag).Error; err != nil {
			return err
		}

		if err := tx.Where("feature_flag_id = ?", flag.ID).Delete(&models.FeatureOverride{}).Error; err != nil {
			return err
		}

		return tx.Delete(&flag).Error
	})
}

func (r *FeatureFlagRepository) FindOverride(ctx context.Context, flagID uuid.UUID, kind, scopeID string) (*models.FeatureOverride, error) {
	var override models.FeatureOverride
	err := r.db.DB.WithContext(ctx).
		Where("feature_flag_id = ? AND scope_kind = ? AND scope_id = ?", flagID, kind, scopeID).
		First(&override).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &override, nil
}

func (r *FeatureFlagRepository) ListOverrides(ctx context.Context, flagID uuid.UUID) ([]models.FeatureOverride, error) {
	var overrides []models.FeatureOverride
	err := r.db.DB.WithContext(ctx).
		Where("feature_flag_id = ?", flagID).
		Order("scope_kind ASC, scope_id ASC").
		Find(&overrides).Error

	return overrides, err
}

// Inserts the override or replaces value and expiry of the existing one
func (r *FeatureFlagRepository) SaveOverride(ctx context.Context, override *models.FeatureOverride) error {
	return r.db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "feature_flag_id"},
				{Name: "scope_kind"},
				{Name: "scope_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).
		Create(override).Error
}

func (r *FeatureFlagRepository) DeleteOverride(ctx context.Context, flagID uuid.UUID, kind, scopeID string) error {
	return r.db.DB.WithContext(ctx).
		Where("feature_flag_id = ? AND scope_kind = ? AND scope_id = ?", flagID, kind, scopeID).
		Delete(&models.FeatureOverride{}).Error
}

func (r *FeatureFlagRepository) DeleteAllOverrides(ctx context.Context) error {
	return r.db.DB.WithContext(ctx).
		Where("1 = 1").
		Delete(&models.FeatureOverride{}).Error
}
