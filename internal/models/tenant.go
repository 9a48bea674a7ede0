package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Tenant struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	Plan      Plan           `gorm:"type:varchar(32);default:'free';not null" json:"plan"`
	Settings  TenantSettings `gorm:"embedded;embeddedPrefix:settings_" json:"settings"`
	IsActive  bool           `gorm:"not null" json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Optional per-tenant overrides of the plan quotas. Nil means "use the plan".
type TenantSettings struct {
	CustomRateLimit       *int `json:"custom_rate_limit,omitempty"`
	MaxConcurrentRequests *int `json:"max_concurrent_requests,omitempty"`
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Plan == "" {
		t.Plan = PlanFree
	}
	return nil
}

func (Tenant) TableName() string {
	return "tenants"
}

// Requests per minute before endpoint multipliers are applied
func (t *Tenant) BaseRateLimit() int {
	if t.Settings.CustomRateLimit != nil {
		return *t.Settings.CustomRateLimit
	}
	return t.Plan.RequestsPerMinute()
}

func (t *Tenant) ConcurrencyLimit() int {
	if t.Settings.MaxConcurrentRequests != nil {
		return *t.Settings.MaxConcurrentRequests
	}
	return t.Plan.MaxConcurrentRequests()
}
