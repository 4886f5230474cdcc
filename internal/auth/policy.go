package auth

import (
	"net/http"
	"strings"
)

// Rule grants access to requests whose path starts with Prefix and, when
// Suffix is set, ends with it. An empty Methods list matches every method.
type Rule struct {
	Prefix  string
	Suffix  string
	Methods []string
	Role    Role
}

func (r Rule) matches(method, path string) bool {
	if !strings.HasPrefix(path, r.Prefix) {
		return false
	}
	if r.Suffix != "" && !strings.HasSuffix(path, r.Suffix) {
		return false
	}
	if len(r.Methods) == 0 {
		return true
	}
	for _, m := range r.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// ConsoleRules are the route grants of the console API. First match wins.
var ConsoleRules = []Rule{
	{Prefix: "/api/v1/users/", Suffix: "/notification-flags", Role: RoleAdmin},
	{Prefix: "/api/v1/users/", Suffix: "/company-code", Role: RoleAdmin},
	{Prefix: "/api/v1/inverters/sync", Role: RoleOperator},
	{Prefix: "/api/v1/logout", Role: RoleViewer},
	{Prefix: "/api/v1/views", Role: RoleViewer},
	{Prefix: "/api/v1/exports/", Methods: []string{http.MethodGet}, Role: RoleViewer},
	{Prefix: "/api/v1/plants/", Methods: []string{http.MethodGet}, Role: RoleViewer},
}

// Policy determines required roles by request.
type Policy struct {
	exempt   map[string]struct{}
	prefixes []string
	rules    []Rule
}

// NewDefaultPolicy builds the console policy. Requests to exemptPaths, or
// under exemptPrefixes, skip auth.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	p := Policy{
		exempt:   make(map[string]struct{}, len(exemptPaths)),
		prefixes: exemptPrefixes,
		rules:    ConsoleRules,
	}
	for _, path := range exemptPaths {
		p.exempt[path] = struct{}{}
	}
	return p
}

// IsExempt reports whether r skips auth and RBAC.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	path := r.URL.Path
	if _, ok := p.exempt[path]; ok {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves the role r needs. Unlisted API reads need viewer and
// unlisted API writes need operator; non-API paths need nothing.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	for _, rule := range p.rules {
		if rule.matches(r.Method, r.URL.Path) {
			return rule.Role, true
		}
	}
	if !strings.HasPrefix(r.URL.Path, "/api/") {
		return "", false
	}
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return RoleViewer, true
	default:
		return RoleOperator, true
	}
}
