package auth

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// RouteRule maps a route pattern (and optionally a method) to the permission
// it requires. An empty Method matches any method; an empty Action is derived
// from the request method.
type RouteRule struct {
	Pattern  string       `yaml:"pattern" validate:"required,startswith=/"`
	Method   string       `yaml:"method,omitempty" validate:"omitempty,oneof=GET HEAD POST PUT PATCH DELETE"`
	Resource ResourceType `yaml:"resource" validate:"required"`
	Action   ActionType   `yaml:"action,omitempty"`
}

// PublicRoutes are the routes that bypass authorization entirely.
type PublicRoutes struct {
	Exact    []string `yaml:"exact" validate:"dive,startswith=/"`
	Prefixes []string `yaml:"prefixes" validate:"dive,startswith=/,min=2"`
}

// DefaultRouteRules is the route table of the inventory services.
func DefaultRouteRules() []RouteRule {
	return []RouteRule{
		{Pattern: "/productos", Resource: ResourceProducts},
		{Pattern: "/proveedores", Resource: ResourceProviders},
		{Pattern: "/clientes", Resource: ResourceUsers},
		{Pattern: "/usuarios", Resource: ResourceUsers},
		{Pattern: "/health", Resource: ResourceHealth, Action: ActionRead},
		{Pattern: "/auth", Resource: ResourceAuth, Action: ActionRead},
		{Pattern: "/auth/execute", Method: "POST", Resource: ResourceAuth, Action: ActionExecute},
	}
}

// DefaultPublicRoutes are reachable without a token.
func DefaultPublicRoutes() PublicRoutes {
	return PublicRoutes{
		Exact:    []string{"/", "/health", "/healthz", "/readyz", "/metrics", "/docs", "/openapi.json"},
		Prefixes: []string{"/health/", "/auth/me", "/auth/check"},
	}
}

// RouteTable is the immutable, compiled form of the route rules.
type RouteTable struct {
	exact    map[string][]RouteRule
	prefixes []string
	byPrefix map[string][]RouteRule
}

// NewRouteTable validates and compiles rules.
func NewRouteTable(rules []RouteRule) (*RouteTable, error) {
	t := &RouteTable{
		exact:    make(map[string][]RouteRule, len(rules)),
		byPrefix: make(map[string][]RouteRule, len(rules)),
	}
	for i, rule := range rules {
		if !strings.HasPrefix(rule.Pattern, "/") {
			return nil, fmt.Errorf("route rule %d: pattern %q must start with /", i, rule.Pattern)
		}
		if !rule.Resource.Valid() {
			return nil, fmt.Errorf("route rule %d: unknown resource %q", i, rule.Resource)
		}
		if rule.Action != "" && !rule.Action.Valid() {
			return nil, fmt.Errorf("route rule %d: unknown action %q", i, rule.Action)
		}
		rule.Pattern = NormalizeRoute(rule.Pattern)
		rule.Method = strings.ToUpper(rule.Method)
		t.exact[rule.Pattern] = append(t.exact[rule.Pattern], rule)
		if _, seen := t.byPrefix[rule.Pattern]; !seen {
			t.prefixes = append(t.prefixes, rule.Pattern)
		}
		t.byPrefix[rule.Pattern] = append(t.byPrefix[rule.Pattern], rule)
	}
	// longest first so the first hit is the longest prefix
	sort.SliceStable(t.prefixes, func(i, j int) bool { return len(t.prefixes[i]) > len(t.prefixes[j]) })
	return t, nil
}

// Resolve returns the permission required for route and method.
// Exact matches win over prefix matches; among prefixes the longest wins.
func (t *RouteTable) Resolve(route, method string) (ResourceType, ActionType, error) {
	route = NormalizeRoute(route)
	method = strings.ToUpper(method)

	if rules, ok := t.exact[route]; ok {
		if res, act, ok := pickRule(rules, method); ok {
			return res, act, nil
		}
	}
	for _, prefix := range t.prefixes {
		if !hasSegmentPrefix(route, prefix) {
			continue
		}
		if res, act, ok := pickRule(t.byPrefix[prefix], method); ok {
			return res, act, nil
		}
	}
	return "", "", insufficientPermissions("no permission rule for route")
}

// pickRule prefers a method-specific rule over a method-agnostic one.
func pickRule(rules []RouteRule, method string) (ResourceType, ActionType, bool) {
	var fallback *RouteRule
	for i := range rules {
		r := &rules[i]
		if r.Method == method {
			return ruleAction(r, method)
		}
		if r.Method == "" && fallback == nil {
			fallback = r
		}
	}
	if fallback != nil {
		return ruleAction(fallback, method)
	}
	return "", "", false
}

func ruleAction(r *RouteRule, method string) (ResourceType, ActionType, bool) {
	if r.Action != "" {
		return r.Resource, r.Action, true
	}
	act, ok := ActionForMethod(method)
	if !ok {
		return "", "", false
	}
	return r.Resource, act, true
}

func hasSegmentPrefix(route, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(route, prefix) {
		return false
	}
	return len(route) == len(prefix) || route[len(prefix)] == '/'
}

// PublicRouteSet answers whether a route bypasses authorization.
type PublicRouteSet struct {
	exact    map[string]struct{}
	prefixes []string
}

// NewPublicRouteSet compiles the public routes. A prefix that normalizes to
// the root would cover every route and is skipped.
func NewPublicRouteSet(routes PublicRoutes) *PublicRouteSet {
	s := &PublicRouteSet{exact: make(map[string]struct{}, len(routes.Exact))}
	for _, r := range routes.Exact {
		s.exact[NormalizeRoute(r)] = struct{}{}
	}
	for _, p := range routes.Prefixes {
		if p = NormalizeRoute(p); p != "/" {
			s.prefixes = append(s.prefixes, p)
		}
	}
	return s
}

// Contains reports whether route is public.
func (s *PublicRouteSet) Contains(route string) bool {
	route = NormalizeRoute(route)
	if _, ok := s.exact[route]; ok {
		return true
	}
	for _, p := range s.prefixes {
		if hasSegmentPrefix(route, p) {
			return true
		}
	}
	return false
}

// NormalizeRoute strips the query string and cleans the path: repeated
// slashes collapse, dot segments resolve and a trailing slash is dropped.
// The root stays "/".
func NormalizeRoute(route string) string {
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		route = route[:i]
	}
	return path.Clean("/" + route)
}
