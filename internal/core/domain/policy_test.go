package domain

import (
	"errors"
	"testing"
)

func newDefaultPolicy(t *testing.T) *AccessPolicy {
	t.Helper()
	p, err := NewAccessPolicy(DefaultRules(), DefaultAuthEntryPaths())
	if err != nil {
		t.Fatalf("NewAccessPolicy: %v", err)
	}
	return p
}

func TestNewAccessPolicy_RejectsBadRules(t *testing.T) {
	cases := map[string][]AuthorizationRule{
		"relative prefix": {{PathPrefix: "admin/", AllowedRoles: []Role{RoleAdmin}}},
		"empty roles":     {{PathPrefix: "/admin/"}},
		"unknown role":    {{PathPrefix: "/admin/", AllowedRoles: []Role{"root"}}},
		"none role":       {{PathPrefix: "/admin/", AllowedRoles: []Role{RoleNone}}},
		"duplicate": {
			{PathPrefix: "/admin/", AllowedRoles: []Role{RoleAdmin}},
			{PathPrefix: "/admin/", AllowedRoles: []Role{RoleManager}},
		},
	}
	for name, rules := range cases {
		if _, err := NewAccessPolicy(rules, nil); !errors.Is(err, ErrInvalidRule) {
			t.Fatalf("%s: expected ErrInvalidRule, got %v", name, err)
		}
	}
}

func TestDecide_PublicPathAllowedWithoutSession(t *testing.T) {
	p := newDefaultPolicy(t)
	for _, path := range []string{"/", "/login", "/unauthorized", "/maintenance", "/pricing"} {
		if d := p.Decide(path, nil, false); d.Kind != DecisionAllow {
			t.Fatalf("%s: expected allow, got %s", path, d.Kind)
		}
	}
}

func TestDecide_ProtectedWithoutSessionRedirectsToLogin(t *testing.T) {
	p := newDefaultPolicy(t)

	d := p.Decide("/client/profile?tab=billing", nil, false)
	if d.Kind != DecisionLogin {
		t.Fatalf("expected login, got %s", d.Kind)
	}
	want := "/login?callbackUrl=%2Fclient%2Fprofile%3Ftab%3Dbilling"
	if d.Location != want {
		t.Fatalf("expected %s, got %s", want, d.Location)
	}
}

func TestDecide_BarePrefixIsProtected(t *testing.T) {
	p := newDefaultPolicy(t)
	if d := p.Decide("/admin", nil, false); d.Kind != DecisionLogin {
		t.Fatalf("expected /admin to be protected, got %s", d.Kind)
	}
	if d := p.Decide("/administrator", nil, false); d.Kind != DecisionAllow {
		t.Fatalf("expected /administrator to be public, got %s", d.Kind)
	}
}

func TestDecide_RoleNeverExceedsRule(t *testing.T) {
	p := newDefaultPolicy(t)
	paths := map[string][]Role{
		"/admin/users":      {RoleAdmin},
		"/manager/reports":  {RoleAdmin, RoleManager},
		"/client/dashboard": {RoleAdmin, RoleManager, RoleMember},
	}
	for path, allowed := range paths {
		for _, role := range Roles() {
			d := p.Decide(path, &AccessClaims{UserID: 1, Role: role}, false)
			want := false
			for _, r := range allowed {
				if r == role {
					want = true
				}
			}
			if got := d.Kind == DecisionAllow; got != want {
				t.Fatalf("%s as %s: allow=%v, want %v", path, role, got, want)
			}
			if !want && (d.Kind != DecisionUnauthorized || d.Location != UnauthorizedPath) {
				t.Fatalf("%s as %s: expected unauthorized redirect, got %+v", path, role, d)
			}
		}
	}
}

func TestDecide_UnknownRoleIsTreatedAsNoSession(t *testing.T) {
	p := newDefaultPolicy(t)
	d := p.Decide("/client/dashboard", &AccessClaims{UserID: 1, Role: Role("owner")}, false)
	if d.Kind != DecisionLogin {
		t.Fatalf("expected login for unknown role, got %s", d.Kind)
	}
}

func TestDecide_MemberOnAdminDoesNotLoop(t *testing.T) {
	p := newDefaultPolicy(t)
	member := &AccessClaims{UserID: 7, Role: RoleMember}

	d := p.Decide("/admin/users", member, false)
	if d.Kind != DecisionUnauthorized {
		t.Fatalf("expected unauthorized, got %s", d.Kind)
	}
	if again := p.Decide(d.Location, member, false); again.Kind != DecisionAllow {
		t.Fatalf("expected unauthorized page to render, got %s", again.Kind)
	}
}

func TestDecide_AuthEntryWithSessionGoesToLanding(t *testing.T) {
	p := newDefaultPolicy(t)

	d := p.Decide("/login", &AccessClaims{UserID: 1, Role: RoleManager}, false)
	if d.Kind != DecisionLanding || d.Location != "/manager/dashboard" {
		t.Fatalf("unexpected decision: %+v", d)
	}

	d = p.Decide("/auth/verify?force=true", &AccessClaims{UserID: 1, Role: RoleManager}, true)
	if d.Kind != DecisionAllow {
		t.Fatalf("expected override to allow, got %s", d.Kind)
	}
}

func TestSafeCallback(t *testing.T) {
	cases := map[string]string{
		"/client/profile":       "/client/profile",
		"/client?x=1":           "/client?x=1",
		"":                      "",
		"https://evil.example":  "",
		"//evil.example/path":   "",
		"/\\evil.example":       "",
		"client/profile":        "",
		"javascript:alert(1)":   "",
	}
	for in, want := range cases {
		if got := SafeCallback(in); got != want {
			t.Fatalf("SafeCallback(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLandingPath(t *testing.T) {
	if LandingPath(RoleAdmin) != "/admin/dashboard" {
		t.Fatalf("admin landing")
	}
	if LandingPath(RoleMember) != "/client/dashboard" {
		t.Fatalf("member landing")
	}
	if LandingPath(RoleNone) != LoginPath {
		t.Fatalf("no-role landing must be login")
	}
}
