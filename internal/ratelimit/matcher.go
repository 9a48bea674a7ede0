package ratelimit

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aman-churiwal/tenantgate/internal/config"
)

// ErrPolicyNotFound is returned when the endpoint table has no catch-all entry
var ErrPolicyNotFound = config.ErrPolicyNotFound

// EndpointPolicy scales the base rate for requests whose path matches Pattern
type EndpointPolicy struct {
	Pattern    string
	Multiplier float64
	Decay      time.Duration
}

type compiledPolicy struct {
	policy EndpointPolicy
	re     *regexp.Regexp
}

// Matcher selects exactly one endpoint policy per request path
type Matcher struct {
	rules    []compiledPolicy
	catchAll EndpointPolicy
}

func NewMatcher(policies []config.EndpointPolicy) (*Matcher, error) {
	m := &Matcher{}
	hasCatchAll := false

	for _, p := range policies {
		policy := EndpointPolicy{
			Pattern:    p.Pattern,
			Multiplier: p.Multiplier,
			Decay:      time.Duration(p.DecayMinutes) * time.Minute,
		}

		if p.Pattern == config.CatchAllPattern {
			if !hasCatchAll {
				m.catchAll = policy
				hasCatchAll = true
			}
			continue
		}

		re, err := compileGlob(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint pattern %q: %w", p.Pattern, err)
		}
		m.rules = append(m.rules, compiledPolicy{policy: policy, re: re})
	}

	if !hasCatchAll {
		return nil, ErrPolicyNotFound
	}

	return m, nil
}

// Match returns the first declared policy matching path, or the catch-all.
// Paths are compared without their leading slash ("api/auth/otp/request").
func (m *Matcher) Match(path string) EndpointPolicy {
	path = normalizePath(path)
	for _, rule := range m.rules {
		if rule.re.MatchString(path) {
			return rule.policy
		}
	}
	return m.catchAll
}

// "*" matches any run of characters, slashes included
func compileGlob(pattern string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(normalizePath(pattern))
	return regexp.Compile("^" + strings.ReplaceAll(quoted, `\*`, ".*") + "$")
}

func normalizePath(path string) string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return "/"
	}
	return path
}
