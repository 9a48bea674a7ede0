package ratelimit

import (
	"math"
	"time"

	"github.com/aman-churiwal/tenantgate/internal/config"
	"github.com/aman-churiwal/tenantgate/internal/models"
)

const anonymousDecay = time.Minute

// Quota is the effective limit for one request
type Quota struct {
	MaxAttempts int
	Decay       time.Duration
	Pattern     string
	// Unlimited quotas are never counted and produce no headers
	Unlimited bool
	// Anonymous quotas come from the fixed per-IP policy
	Anonymous bool
}

func (q Quota) DecayMinutes() int {
	return int(q.Decay / time.Minute)
}

// Policy turns a tenant's plan, its settings and the request path into a Quota
type Policy struct {
	matcher            *Matcher
	plans              map[string]config.Plan
	anonymousPerMinute int
}

func NewPolicy(cfg config.RateLimitConfig) (*Policy, error) {
	matcher, err := NewMatcher(cfg.Endpoints)
	if err != nil {
		return nil, err
	}

	anonymous := cfg.AnonymousPerMinute
	if anonymous <= 0 {
		anonymous = 15
	}

	return &Policy{
		matcher:            matcher,
		plans:              cfg.Plans,
		anonymousPerMinute: anonymous,
	}, nil
}

func (p *Policy) Matcher() *Matcher {
	return p.matcher
}

// Resolve computes the quota for an authenticated request. A user without a
// tenant is limited like a free tenant. With neither, the anonymous quota applies.
func (p *Policy) Resolve(tenant *models.Tenant, user *models.User, path string) Quota {
	if tenant == nil && user == nil {
		return p.Anonymous(path)
	}

	endpoint := p.matcher.Match(path)

	if tenant != nil && tenant.Plan.IsUnlimited() {
		return Quota{Unlimited: true, Pattern: endpoint.Pattern}
	}

	base := p.BaseRate(tenant)

	return Quota{
		MaxAttempts: EffectiveMax(base, endpoint.Multiplier),
		Decay:       endpoint.Decay,
		Pattern:     endpoint.Pattern,
	}
}

// Anonymous is the fixed per-IP quota. It ignores endpoint multipliers.
func (p *Policy) Anonymous(path string) Quota {
	return Quota{
		MaxAttempts: p.anonymousPerMinute,
		Decay:       anonymousDecay,
		Pattern:     p.matcher.Match(path).Pattern,
		Anonymous:   true,
	}
}

// BaseRate is settings.custom_rate_limit when set, else the plan's requests per minute
func (p *Policy) BaseRate(tenant *models.Tenant) int {
	if tenant == nil {
		return p.planRate(models.PlanFree)
	}
	if tenant.Settings.CustomRateLimit != nil {
		return *tenant.Settings.CustomRateLimit
	}
	return p.planRate(tenant.Plan)
}

// ConcurrencyLimit returns the in-flight request cap, or -1 for no cap
func (p *Policy) ConcurrencyLimit(tenant *models.Tenant) int {
	if tenant == nil {
		return p.planConcurrency(models.PlanFree)
	}
	if tenant.Plan.IsUnlimited() {
		return -1
	}
	if tenant.Settings.MaxConcurrentRequests != nil {
		return *tenant.Settings.MaxConcurrentRequests
	}
	return p.planConcurrency(tenant.Plan)
}

func (p *Policy) planRate(plan models.Plan) int {
	if override, ok := p.plans[string(plan)]; ok && override.RequestsPerMinute > 0 {
		return override.RequestsPerMinute
	}
	return plan.RequestsPerMinute()
}

func (p *Policy) planConcurrency(plan models.Plan) int {
	if override, ok := p.plans[string(plan)]; ok && override.MaxConcurrentRequests > 0 {
		return override.MaxConcurrentRequests
	}
	return plan.MaxConcurrentRequests()
}

// EffectiveMax is max(1, ceil(base*multiplier)). The product is rounded to
// nine decimals first so 25*0.28 yields 7 rather than 8.
func EffectiveMax(base int, multiplier float64) int {
	product := float64(base) * multiplier
	product = math.Round(product*1e9) / 1e9
	limit := int(math.Ceil(product))
	if limit < 1 {
		return 1
	}
	return limit
}
