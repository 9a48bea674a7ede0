package models

import "strings"

type Plan string

const (
	PlanFree         Plan = "free"
	PlanBasic        Plan = "basic"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
	PlanUnlimited    Plan = "unlimited"
)

// Compiled-in quotas and entitlements of a plan
type PlanLimits struct {
	RequestsPerMinute     int
	MaxConcurrentRequests int
	Features              []string
}

var planLimits = map[Plan]PlanLimits{
	PlanFree: {
		RequestsPerMinute:     60,
		MaxConcurrentRequests: 5,
		Features:              []string{"api_access"},
	},
	PlanBasic: {
		RequestsPerMinute:     300,
		MaxConcurrentRequests: 10,
		Features:              []string{"api_access", "webhooks"},
	},
	PlanProfessional: {
		RequestsPerMinute:     1000,
		MaxConcurrentRequests: 25,
		Features:              []string{"api_access", "webhooks", "audit_log", "sso"},
	},
	PlanEnterprise: {
		RequestsPerMinute:     5000,
		MaxConcurrentRequests: 100,
		Features:              []string{"api_access", "webhooks", "audit_log", "sso", "impersonation", "custom_roles"},
	},
	PlanUnlimited: {
		RequestsPerMinute:     -1,
		MaxConcurrentRequests: -1,
		Features:              []string{"*"},
	},
}

func ParsePlan(s string) (Plan, bool) {
	p := Plan(strings.ToLower(strings.TrimSpace(s)))
	_, ok := planLimits[p]
	return p, ok
}

func (p Plan) Valid() bool {
	_, ok := planLimits[p]
	return ok
}

// Unknown plans fall back to the free tier
func (p Plan) Limits() PlanLimits {
	if limits, ok := planLimits[p]; ok {
		return limits
	}
	return planLimits[PlanFree]
}

func (p Plan) RequestsPerMinute() int {
	return p.Limits().RequestsPerMinute
}

func (p Plan) MaxConcurrentRequests() int {
	return p.Limits().MaxConcurrentRequests
}

func (p Plan) IsUnlimited() bool {
	return p == PlanUnlimited
}

func (p Plan) HasFeature(feature string) bool {
	for _, f := range p.Limits().Features {
		if f == "*" || f == feature {
			return true
		}
	}
	return false
}

func (p Plan) String() string {
	return string(p)
}
