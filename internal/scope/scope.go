// Package scope derives stable identities for the entities that rate limits
// and feature flags are evaluated against.
package scope

import "strings"

type Kind string

const (
	KindUser   Kind = "user"
	KindTenant Kind = "tenant"
	KindIP     Kind = "ip"
)

// Scope is a user, a tenant or an anonymous caller identified by IP.
// The zero value means "no scope".
type Scope struct {
	Kind Kind
	ID   string
}

func User(id string) Scope {
	return Scope{Kind: KindUser, ID: id}
}

func Tenant(id string) Scope {
	return Scope{Kind: KindTenant, ID: id}
}

func IP(addr string) Scope {
	return Scope{Kind: KindIP, ID: addr}
}

func (s Scope) IsZero() bool {
	return s.ID == ""
}

// Identity returns "user_<id>", "tenant_<id>" or the bare IP address.
// The prefixes keep identities of different kinds from colliding.
func (s Scope) Identity() string {
	switch s.Kind {
	case KindUser:
		return "user_" + s.ID
	case KindTenant:
		return "tenant_" + s.ID
	default:
		return s.ID
	}
}

func (s Scope) String() string {
	return s.Identity()
}

// RateLimitKey joins scope identities and an endpoint pattern into a counter key.
// Zero scopes are skipped, so (tenant, user), (user) and (ip) all work.
func RateLimitKey(pattern string, scopes ...Scope) string {
	parts := make([]string, 0, len(scopes)+1)
	for _, s := range scopes {
		if s.IsZero() {
			continue
		}
		parts = append(parts, s.Identity())
	}
	parts = append(parts, pattern)
	return strings.Join(parts, ":")
}
