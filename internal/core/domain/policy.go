package domain

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Well-known page paths.
const (
	LoginPath        = "/login"
	UnauthorizedPath = "/unauthorized"
	MaintenancePath  = "/maintenance"
	ExpiredPath      = "/auth/expired"
	VerifyPath       = "/auth/verify"
	SignOutPath      = "/auth/signout"
)

var landingPaths = map[Role]string{
	RoleAdmin:   "/admin/dashboard",
	RoleManager: "/manager/dashboard",
	RoleMember:  "/client/dashboard",
}

// LandingPath is where an authenticated role is sent from an auth-entry page.
func LandingPath(r Role) string {
	if p, ok := landingPaths[r]; ok {
		return p
	}
	return LoginPath
}

// AuthorizationRule maps a protected path prefix to the roles allowed under it.
type AuthorizationRule struct {
	PathPrefix   string
	AllowedRoles []Role
}

// DefaultRules protects the three role areas of the seller console.
func DefaultRules() []AuthorizationRule {
	return []AuthorizationRule{
		{PathPrefix: "/admin/", AllowedRoles: []Role{RoleAdmin}},
		{PathPrefix: "/manager/", AllowedRoles: []Role{RoleAdmin, RoleManager}},
		{PathPrefix: "/client/", AllowedRoles: []Role{RoleAdmin, RoleManager, RoleMember}},
	}
}

// DefaultAuthEntryPaths are pages that make no sense with a live session.
func DefaultAuthEntryPaths() []string {
	return []string{LoginPath, VerifyPath}
}

// DecisionKind is the outcome of evaluating a request against the policy.
type DecisionKind int

const (
	DecisionAllow DecisionKind = iota
	// DecisionLogin: protected path without a session.
	DecisionLogin
	// DecisionUnauthorized: session present, role not allowed.
	DecisionUnauthorized
	// DecisionLanding: auth-entry path with a live session.
	DecisionLanding
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionAllow:
		return "allow"
	case DecisionLogin:
		return "login"
	case DecisionUnauthorized:
		return "unauthorized"
	case DecisionLanding:
		return "landing"
	default:
		return "unknown"
	}
}

// Decision tells the gate what to do with a request. Location is empty for DecisionAllow.
type Decision struct {
	Kind     DecisionKind
	Location string
}

type compiledRule struct {
	prefix  string
	allowed map[Role]struct{}
}

func (r compiledRule) matches(path string) bool {
	return strings.HasPrefix(path, r.prefix) || path == strings.TrimSuffix(r.prefix, "/")
}

// AccessPolicy is the immutable path-to-role rule set consulted by the edge gate.
type AccessPolicy struct {
	rules     []compiledRule
	authEntry map[string]struct{}
}

// NewAccessPolicy validates and compiles rules. Every prefix must start with
// "/" and map to a non-empty set of known roles.
func NewAccessPolicy(rules []AuthorizationRule, authEntryPaths []string) (*AccessPolicy, error) {
	p := &AccessPolicy{authEntry: make(map[string]struct{}, len(authEntryPaths))}
	seen := make(map[string]struct{}, len(rules))

	for _, rule := range rules {
		if !strings.HasPrefix(rule.PathPrefix, "/") {
			return nil, fmt.Errorf("%w: prefix %q must start with /", ErrInvalidRule, rule.PathPrefix)
		}
		if _, dup := seen[rule.PathPrefix]; dup {
			return nil, fmt.Errorf("%w: duplicate prefix %q", ErrInvalidRule, rule.PathPrefix)
		}
		seen[rule.PathPrefix] = struct{}{}

		if len(rule.AllowedRoles) == 0 {
			return nil, fmt.Errorf("%w: prefix %q has no allowed roles", ErrInvalidRule, rule.PathPrefix)
		}
		allowed := make(map[Role]struct{}, len(rule.AllowedRoles))
		for _, r := range rule.AllowedRoles {
			if !r.Valid() {
				return nil, fmt.Errorf("%w: prefix %q grants unknown role %q", ErrInvalidRule, rule.PathPrefix, r)
			}
			allowed[r] = struct{}{}
		}
		p.rules = append(p.rules, compiledRule{prefix: rule.PathPrefix, allowed: allowed})
	}

	// Longest prefix wins.
	sort.SliceStable(p.rules, func(i, j int) bool {
		return len(p.rules[i].prefix) > len(p.rules[j].prefix)
	})

	for _, path := range authEntryPaths {
		p.authEntry[path] = struct{}{}
	}
	return p, nil
}

// Protected reports whether path falls under any rule.
func (p *AccessPolicy) Protected(path string) bool {
	_, ok := p.match(path)
	return ok
}

// AuthEntry reports whether path is a login-type page.
func (p *AccessPolicy) AuthEntry(path string) bool {
	_, ok := p.authEntry[path]
	return ok
}

// Decide evaluates a request target (path plus optional query) for the caller
// holding claims, nil when there is no valid session. override skips the
// auth-entry redirect for flows that must finish while already signed in.
func (p *AccessPolicy) Decide(target string, claims *AccessClaims, override bool) Decision {
	path := target
	if u, err := url.ParseRequestURI(target); err == nil {
		path = u.Path
	}

	authenticated := claims != nil && claims.Role.Valid()

	if authenticated && !override && p.AuthEntry(path) {
		return Decision{Kind: DecisionLanding, Location: LandingPath(claims.Role)}
	}

	rule, ok := p.match(path)
	if !ok {
		return Decision{Kind: DecisionAllow}
	}
	if !authenticated {
		return Decision{Kind: DecisionLogin, Location: LoginRedirect(target)}
	}
	if _, allowed := rule.allowed[claims.Role]; !allowed {
		return Decision{Kind: DecisionUnauthorized, Location: UnauthorizedPath}
	}
	return Decision{Kind: DecisionAllow}
}

func (p *AccessPolicy) match(path string) (compiledRule, bool) {
	for _, r := range p.rules {
		if r.matches(path) {
			return r, true
		}
	}
	return compiledRule{}, false
}

// LoginRedirect builds the login URL that returns to target afterwards.
func LoginRedirect(target string) string {
	safe := SafeCallback(target)
	if safe == "" {
		return LoginPath
	}
	return LoginPath + "?" + url.Values{"callbackUrl": {safe}}.Encode()
}

// SafeCallback returns raw when it is a same-origin relative path, "" otherwise.
func SafeCallback(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return ""
	}
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return raw
}
