// Package feature resolves feature flags for users, tenants and anonymous callers.
package feature

import (
	"encoding/json"

	"github.com/aman-churiwal/tenantgate/internal/models"
	"github.com/aman-churiwal/tenantgate/internal/scope"
)

// Value is the result of evaluating a flag: a boolean, or a variant name for A/B flags
type Value struct {
	Enabled bool
	Variant string
}

func Bool(b bool) Value {
	return Value{Enabled: b}
}

// VariantValue is active whenever a variant was resolved
func VariantValue(name string) Value {
	return Value{Enabled: name != "", Variant: name}
}

func (v Value) IsVariant() bool {
	return v.Variant != ""
}

// Interface returns the variant name for A/B results and the boolean otherwise
func (v Value) Interface() interface{} {
	if v.IsVariant() {
		return v.Variant
	}
	return v.Enabled
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v Value) String() string {
	if v.IsVariant() {
		return v.Variant
	}
	if v.Enabled {
		return "true"
	}
	return "false"
}

// Subject carries every scope a request can be evaluated against.
// ScopeFor picks the one a flag type is keyed by.
type Subject struct {
	User   scope.Scope
	Tenant scope.Scope
	IP     scope.Scope
}

func (s Subject) ScopeFor(t models.FlagType) scope.Scope {
	switch t {
	case models.FlagPerTenant:
		return s.Tenant
	case models.FlagPerUser:
		return s.User
	case models.FlagPercentage, models.FlagABTest:
		if !s.User.IsZero() {
			return s.User
		}
		if !s.Tenant.IsZero() {
			return s.Tenant
		}
		return s.IP
	default:
		return scope.Scope{}
	}
}

func defaultOf(flag *models.FeatureFlag) Value {
	if flag.Type == models.FlagABTest {
		params := flag.Params()
		return Value{Enabled: flag.DefaultValue, Variant: params.DefaultVariant}
	}
	return Bool(flag.DefaultValue)
}
