package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type FlagType string

const (
	FlagGlobal      FlagType = "global"
	FlagPerTenant   FlagType = "per_tenant"
	FlagPerUser     FlagType = "per_user"
	FlagPercentage  FlagType = "percentage"
	FlagDateRange   FlagType = "date_range"
	FlagEnvironment FlagType = "environment"
	FlagABTest      FlagType = "ab_test"
)

var flagTypes = []FlagType{
	FlagGlobal,
	FlagPerTenant,
	FlagPerUser,
	FlagPercentage,
	FlagDateRange,
	FlagEnvironment,
	FlagABTest,
}

func (t FlagType) Valid() bool {
	for _, known := range flagTypes {
		if t == known {
			return true
		}
	}
	return false
}

type FeatureFlag struct {
	ID           uuid.UUID                          `gorm:"type:uuid;primary_key" json:"id"`
	Key          string                             `gorm:"uniqueIndex;size:128;not null" json:"key"`
	Name         string                             `gorm:"size:255" json:"name"`
	Description  string                             `gorm:"size:512" json:"description"`
	Type         FlagType                           `gorm:"type:varchar(32);not null;index" json:"type"`
	Parameters   datatypes.JSONType[FlagParameters] `json:"parameters"`
	DefaultValue bool                               `gorm:"not null;default:false" json:"default_value"`
	IsActive     bool                               `gorm:"not null" json:"is_active"`
	StartsAt     *time.Time                         `json:"starts_at,omitempty"`
	EndsAt       *time.Time                         `json:"ends_at,omitempty"`
	Overrides    []FeatureOverride                  `gorm:"foreignKey:FeatureFlagID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt    time.Time                          `json:"created_at"`
	UpdatedAt    time.Time                          `json:"updated_at"`
}

func (f *FeatureFlag) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

func (FeatureFlag) TableName() string {
	return "feature_flags"
}

func (f *FeatureFlag) Params() FlagParameters {
	return f.Parameters.Data()
}

func (f *FeatureFlag) SetParams(p FlagParameters) {
	f.Parameters = datatypes.NewJSONType(p)
}

// Reports whether at falls inside [StartsAt, EndsAt]. Missing bounds are open.
func (f *FeatureFlag) InWindow(at time.Time) bool {
	if f.StartsAt != nil && at.Before(*f.StartsAt) {
		return false
	}
	if f.EndsAt != nil && at.After(*f.EndsAt) {
		return false
	}
	return true
}

// Type specific parameters of a flag
type FlagParameters struct {
	Percentage     *int     `json:"percentage,omitempty"`
	Environments   []string `json:"environments,omitempty"`
	Variants       Variants `json:"variants,omitempty"`
	DefaultVariant string   `json:"default_variant,omitempty"`
}

type Variant struct {
	Name   string
	Weight float64
}

// Variants is an ordered set of A/B variants. It is encoded as a JSON object
// and keeps the key order of the document, so bucketing is reproducible.
type Variants []Variant

func (v Variants) TotalWeight() float64 {
	var total float64
	for _, variant := range v {
		total += variant.Weight
	}
	return total
}

func (v Variants) Has(name string) bool {
	for _, variant := range v {
		if variant.Name == name {
			return true
		}
	}
	return false
}

func (v Variants) MarshalJSON() ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, variant := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(variant.Name)
		if err != nil {
			return nil, err
		}
		weight, err := json.Marshal(variant.Weight)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(weight)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (v *Variants) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("variants must be a JSON object")
	}

	out := make(Variants, 0)
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected variant key %v", tok)
		}

		var weight float64
		if err := dec.Decode(&weight); err != nil {
			return fmt.Errorf("variant %q: %w", name, err)
		}

		// Later duplicates win but keep the first position
		if idx, dup := seen[name]; dup {
			out[idx].Weight = weight
			continue
		}
		seen[name] = len(out)
		out = append(out, Variant{Name: name, Weight: weight})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*v = out
	return nil
}
