package repository

import (
	"context"

	"github.com/aman-churiwal/tenantgate/internal/models"
	"github.com/aman-churiwal/tenantgate/internal/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TenantRepository struct {
	db *storage.Database
}

func NewTenantRepository(db *storage.Database) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	return r.db.DB.WithContext(ctx).Create(tenant).Error
}

func (r *TenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&tenant).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &tenant, nil
}

func (r *TenantRepository) List(ctx context.Context) ([]models.Tenant, error) {
	var tenants []models.Tenant
	err := r.db.DB.WithContext(ctx).
		Order("created_at DESC").
		Find(&tenants).Error

	return tenants, err
}

// Writes every column of tenant, nil settings included
func (r *TenantRepository) Save(ctx context.Context, tenant *models.Tenant) error {
	return r.db.DB.WithContext(ctx).Save(tenant).Error
}

func (r *TenantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.Tenant{}).Error
}
