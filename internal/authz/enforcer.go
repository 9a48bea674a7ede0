// Package authz decides which roles may call which routes.
package authz

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

// Requests are (role, path, method). Policies match paths with keyMatch,
// so "/admin/*" covers every admin route, and "*" matches any method.
const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch(r.obj, p.obj) && (p.act == "*" || r.act == p.act)
`

// DefaultPolicies are seeded when the policy store is empty
var DefaultPolicies = [][]string{
	{"admin", "/admin/*", "*"},
}

// NewEnforcer builds an enforcer backed by db. A nil db keeps the policies in memory.
func NewEnforcer(db *gorm.DB) (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse authorization model: %w", err)
	}

	var enforcer *casbin.Enforcer
	if db != nil {
		adapter, err := gormadapter.NewAdapterByDB(db)
		if err != nil {
			return nil, fmt.Errorf("failed to create policy adapter: %w", err)
		}
		enforcer, err = casbin.NewEnforcer(m, adapter)
		if err != nil {
			return nil, err
		}
	} else {
		enforcer, err = casbin.NewEnforcer(m)
		if err != nil {
			return nil, err
		}
	}

	if err := seed(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func seed(enforcer *casbin.Enforcer) error {
	for _, p := range DefaultPolicies {
		has, err := enforcer.HasPolicy(p[0], p[1], p[2])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(p[0], p[1], p[2]); err != nil {
			return fmt.Errorf("failed to seed policy %v: %w", p, err)
		}
	}
	return nil
}
