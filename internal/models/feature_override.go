package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Per-scope value of a feature flag. Rows belong to a flag and are removed with it.
type FeatureOverride struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	FeatureFlagID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_override_scope" json:"feature_flag_id"`
	ScopeKind     string     `gorm:"size:16;not null;uniqueIndex:idx_override_scope" json:"scope_kind"`
	ScopeID       string     `gorm:"size:64;not null;uniqueIndex:idx_override_scope" json:"scope_id"`
	Value         bool       `gorm:"not null" json:"value"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (o *FeatureOverride) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (FeatureOverride) TableName() string {
	return "feature_overrides"
}

// Expired overrides are treated as if they did not exist
func (o *FeatureOverride) Expired(at time.Time) bool {
	return o.ExpiresAt != nil && at.After(*o.ExpiresAt)
}
