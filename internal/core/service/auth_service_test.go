package service

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

type authFixture struct {
	svc         *AuthService
	users       *stubUserRepo
	tokens      *stubRefreshRepo
	dispatcher  *recordingDispatcher
	events      *recordingPublisher
	maintenance *stubMaintenance
	clock       *fakeClock
}

func newAuthFixture() *authFixture {
	f := &authFixture{
		users:       newStubUserRepo(alice()),
		tokens:      newStubRefreshRepo(),
		dispatcher:  &recordingDispatcher{},
		events:      &recordingPublisher{},
		maintenance: &stubMaintenance{},
		clock:       newFakeClock(),
	}
	links := NewMagicLinkService(MagicLinkConfig{
		CallbackURL: "https://seller.example.com/auth/callback",
		Now:         f.clock.Now,
	}, newStubLinkRepo(), f.users, f.dispatcher, nil, zerolog.Nop())
	tokens := NewTokenIssuer(TokenIssuerConfig{
		Secret: testSecret,
		Issuer: "seller-auth",
		Now:    f.clock.Now,
	}, f.users, f.tokens, f.events, zerolog.Nop())
	f.svc = NewAuthService(links, tokens, f.users, f.maintenance, f.events, zerolog.Nop())
	return f
}

func (f *authFixture) login(t *testing.T) *domain.Login {
	t.Helper()
	ctx := context.Background()
	if err := f.svc.RequestMagicLink(ctx, "alice@example.com", nil); err != nil {
		t.Fatalf("RequestMagicLink: %v", err)
	}
	u, _ := url.Parse(f.dispatcher.last().Link)
	login, err := f.svc.Verify(ctx, "alice@example.com", u.Query().Get("token"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	return login
}

func TestAuthService_LoginMatchesStoredRole(t *testing.T) {
	f := newAuthFixture()
	login := f.login(t)

	if login.Identity.Role != domain.RoleManager {
		t.Fatalf("unexpected role %s", login.Identity.Role)
	}
	user, claims, err := f.svc.Session(context.Background(), login.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if user.ID != 42 || claims.Role != domain.RoleManager {
		t.Fatalf("unexpected session %+v %+v", user, claims)
	}
}

func TestAuthService_VerifyNeverIssuedToken(t *testing.T) {
	f := newAuthFixture()
	if _, err := f.svc.Verify(context.Background(), "alice@example.com", "never-issued"); !errors.Is(err, domain.ErrInvalidLink) {
		t.Fatalf("expected ErrInvalidLink, got %v", err)
	}
	if len(f.tokens.tokens) != 0 {
		t.Fatalf("no session may be created")
	}
}

func TestAuthService_MaintenanceShortCircuits(t *testing.T) {
	f := newAuthFixture()
	login := f.login(t)
	f.maintenance.enabled = true
	ctx := context.Background()

	if err := f.svc.RequestMagicLink(ctx, "alice@example.com", nil); !errors.Is(err, domain.ErrMaintenance) {
		t.Fatalf("request: expected ErrMaintenance, got %v", err)
	}
	if _, err := f.svc.Verify(ctx, "alice@example.com", "x"); !errors.Is(err, domain.ErrMaintenance) {
		t.Fatalf("verify: expected ErrMaintenance, got %v", err)
	}
	if _, err := f.svc.Refresh(ctx, login.Tokens.RefreshToken); !errors.Is(err, domain.ErrMaintenance) {
		t.Fatalf("refresh: expected ErrMaintenance, got %v", err)
	}
}

func TestAuthService_MaintenanceStoreFailureIsNotMaintenance(t *testing.T) {
	f := newAuthFixture()
	f.maintenance.err = errors.New("redis down")
	if f.svc.Maintenance(context.Background()) {
		t.Fatalf("store failure must read as not in maintenance")
	}
}

func TestAuthService_LogoutRevokesAndNotifies(t *testing.T) {
	f := newAuthFixture()
	login := f.login(t)
	ctx := context.Background()

	if err := f.svc.Logout(ctx, login.Tokens.RefreshToken, login.Identity.ID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, login.Tokens.RefreshToken); !errors.Is(err, domain.ErrRefreshFailed) {
		t.Fatalf("expected refresh after logout to fail, got %v", err)
	}
	kinds := f.events.kinds()
	if len(kinds) != 2 || kinds[0] != domain.SessionLogin || kinds[1] != domain.SessionLogout {
		t.Fatalf("expected login then logout events, got %v", kinds)
	}
	_, claims, _ := f.svc.Session(ctx, login.Tokens.AccessToken)
	if logout := f.events.events[1]; claims == nil || logout.FamilyID != claims.SessionID {
		t.Fatalf("logout event must name the ended family, got %+v", logout)
	}
}

func TestAuthService_ChangeRoleForcesReauth(t *testing.T) {
	f := newAuthFixture()
	login := f.login(t)
	ctx := context.Background()

	if _, err := f.svc.ChangeRole(ctx, 42, domain.RoleMember); err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}

	// The old access token still verifies cryptographically but no longer
	// matches the stored role.
	if _, _, err := f.svc.Session(ctx, login.Tokens.AccessToken); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected stale-role session to be rejected, got %v", err)
	}
	if _, err := f.svc.Refresh(ctx, login.Tokens.RefreshToken); !errors.Is(err, domain.ErrRefreshFailed) {
		t.Fatalf("expected refresh of pre-migration token to fail, got %v", err)
	}
	kinds := f.events.kinds()
	if len(kinds) != 2 || kinds[1] != domain.SessionRoleChanged {
		t.Fatalf("expected role_changed after login, got %v", kinds)
	}
}

func TestAuthService_ChangeRoleRejectsUnknownRole(t *testing.T) {
	f := newAuthFixture()
	if _, err := f.svc.ChangeRole(context.Background(), 42, domain.Role("owner")); !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestAuthService_InviteSendsLinkWithContext(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	user, err := f.svc.Invite(ctx, "bob@example.com", "Bob", domain.RoleMember, 42)
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if user.ID == 0 || user.Role != domain.RoleMember {
		t.Fatalf("unexpected invited user %+v", user)
	}

	u, _ := url.Parse(f.dispatcher.last().Link)
	login, err := f.svc.Verify(ctx, "bob@example.com", u.Query().Get("token"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if login.Metadata[domain.MetaInvitedBy] != "42" || login.Metadata[domain.MetaCallbackURL] != "/client/dashboard" {
		t.Fatalf("unexpected invitation metadata %+v", login.Metadata)
	}

	if _, err := f.svc.Invite(ctx, "bob@example.com", "Bob", domain.RoleMember, 42); !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestAuthService_RefreshKeepsSessionAlive(t *testing.T) {
	f := newAuthFixture()
	login := f.login(t)
	ctx := context.Background()

	f.clock.Advance(11 * time.Minute)
	if _, _, err := f.svc.Session(ctx, login.Tokens.AccessToken); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected expired access token, got %v", err)
	}

	pair, err := f.svc.Refresh(ctx, login.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, _, err := f.svc.Session(ctx, pair.AccessToken); err != nil {
		t.Fatalf("refreshed session invalid: %v", err)
	}
}

func TestEnsureAdmin(t *testing.T) {
	users := newStubUserRepo()
	ctx := context.Background()

	if err := EnsureAdmin(ctx, users, "Root@Example.com", "Root", zerolog.Nop()); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	admin, err := users.FindByEmail(ctx, "root@example.com")
	if err != nil || admin.Role != domain.RoleAdmin {
		t.Fatalf("admin not created: %+v %v", admin, err)
	}

	if err := EnsureAdmin(ctx, users, "root@example.com", "Root", zerolog.Nop()); err != nil {
		t.Fatalf("second EnsureAdmin must be a no-op: %v", err)
	}
	if len(users.users) != 1 {
		t.Fatalf("expected a single admin, got %d users", len(users.users))
	}
	if err := EnsureAdmin(ctx, users, "", "", zerolog.Nop()); err != nil {
		t.Fatalf("empty email must disable bootstrap: %v", err)
	}
}
