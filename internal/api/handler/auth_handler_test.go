package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shopdesk/seller-auth/internal/api/cookies"
	"github.com/shopdesk/seller-auth/internal/api/middleware"
	"github.com/shopdesk/seller-auth/internal/core/domain"
)

type stubAuthService struct {
	requestFn     func(ctx context.Context, email string, metadata map[string]string) error
	verifyFn      func(ctx context.Context, email, token string) (*domain.Login, error)
	refreshFn     func(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	logoutFn      func(ctx context.Context, refreshToken string, userID int64) error
	sessionFn     func(ctx context.Context, accessToken string) (*domain.Identity, *domain.AccessClaims, error)
	inviteFn      func(ctx context.Context, email, name string, role domain.Role, invitedBy int64) (*domain.Identity, error)
	changeRoleFn  func(ctx context.Context, userID int64, role domain.Role) (*domain.Identity, error)
	maintenanceOn bool
	setMaintFn    func(ctx context.Context, enabled bool) error
}

func (s *stubAuthService) RequestMagicLink(ctx context.Context, email string, metadata map[string]string) error {
	return s.requestFn(ctx, email, metadata)
}

func (s *stubAuthService) Verify(ctx context.Context, email, token string) (*domain.Login, error) {
	return s.verifyFn(ctx, email, token)
}

func (s *stubAuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	return s.refreshFn(ctx, refreshToken)
}

func (s *stubAuthService) Logout(ctx context.Context, refreshToken string, userID int64) error {
	return s.logoutFn(ctx, refreshToken, userID)
}

func (s *stubAuthService) Session(ctx context.Context, accessToken string) (*domain.Identity, *domain.AccessClaims, error) {
	return s.sessionFn(ctx, accessToken)
}

func (s *stubAuthService) Invite(ctx context.Context, email, name string, role domain.Role, invitedBy int64) (*domain.Identity, error) {
	return s.inviteFn(ctx, email, name, role, invitedBy)
}

func (s *stubAuthService) ChangeRole(ctx context.Context, userID int64, role domain.Role) (*domain.Identity, error) {
	return s.changeRoleFn(ctx, userID, role)
}

func (s *stubAuthService) SetMaintenance(ctx context.Context, enabled bool) error {
	return s.setMaintFn(ctx, enabled)
}

func (s *stubAuthService) Maintenance(context.Context) bool { return s.maintenanceOn }

const validToken = "ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12"

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func samplePair() *domain.TokenPair {
	now := time.Now()
	return &domain.TokenPair{
		AccessToken:        "access-2",
		AccessTokenExpiry:  now.Add(10 * time.Minute),
		RefreshToken:       "refresh-2",
		RefreshTokenExpiry: now.Add(14 * 24 * time.Hour),
	}
}

func responseCookies(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, ck := range rec.Result().Cookies() {
		out[ck.Name] = ck
	}
	return out
}

func TestAuthHandler_RequestMagicLink_Success(t *testing.T) {
	e := newEcho()
	stub := &stubAuthService{
		requestFn: func(_ context.Context, email string, metadata map[string]string) error {
			if email != "alice@shop.test" {
				t.Fatalf("unexpected email %q", email)
			}
			if metadata[domain.MetaCallbackURL] != "/manager/orders" {
				t.Fatalf("expected callback metadata, got %v", metadata)
			}
			return nil
		},
	}
	h := NewAuthHandler(stub, cookies.Jar{})

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/auth/request-magic-link",
		`{"email":"alice@shop.test","callbackUrl":"/manager/orders"}`), rec)

	if err := h.RequestMagicLink(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthHandler_RequestMagicLink_DropsForeignCallback(t *testing.T) {
	e := newEcho()
	stub := &stubAuthService{
		requestFn: func(_ context.Context, _ string, metadata map[string]string) error {
			if metadata != nil {
				t.Fatalf("off-site callback must not be stored: %v", metadata)
			}
			return nil
		},
	}
	h := NewAuthHandler(stub, cookies.Jar{})

	c := e.NewContext(jsonRequest(http.MethodPost, "/auth/request-magic-link",
		`{"email":"alice@shop.test","callbackUrl":"https://evil.test/phish"}`), httptest.NewRecorder())
	if err := h.RequestMagicLink(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
}

func TestAuthHandler_RequestMagicLink_Errors(t *testing.T) {
	e := newEcho()
	h := NewAuthHandler(&stubAuthService{
		requestFn: func(context.Context, string, map[string]string) error { return domain.ErrMaintenance },
	}, cookies.Jar{})

	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"email":"alice@shop.test"}`), httptest.NewRecorder())
	if err := h.RequestMagicLink(c); !errors.Is(err, domain.ErrMaintenance) {
		t.Fatalf("expected ErrMaintenance, got %v", err)
	}

	c = e.NewContext(jsonRequest(http.MethodPost, "/", `{"email":"not-an-email"}`), httptest.NewRecorder())
	err := h.RequestMagicLink(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
}

func TestAuthHandler_Callback(t *testing.T) {
	e := newEcho()
	h := NewAuthHandler(&stubAuthService{}, cookies.Jar{})
	target := "/auth/callback?email=alice%40shop.test&token=" + validToken
	verify := "/auth/verify?" + url.Values{"email": {"alice@shop.test"}, "token": {validToken}}.Encode()

	rec := httptest.NewRecorder()
	if err := h.Callback(e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusSeeOther || rec.Header().Get(echo.HeaderLocation) != verify {
		t.Fatalf("expected 303 to %s, got %d %s", verify, rec.Code, rec.Header().Get(echo.HeaderLocation))
	}

	// Already signed in: sign out first, then verify.
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.AddCookie(&http.Cookie{Name: cookies.AccessName, Value: "someone-else"})
	rec = httptest.NewRecorder()
	if err := h.Callback(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var intent *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == cookies.IntentName {
			intent = ck
		}
	}
	if intent == nil || intent.Value == "" || intent.Path != "/auth/signout" {
		t.Fatalf("expected a sign-out intent cookie, got %+v", intent)
	}
	want := "/auth/signout?" + url.Values{"callbackUrl": {verify}, "intent": {intent.Value}}.Encode()
	if rec.Header().Get(echo.HeaderLocation) != want {
		t.Fatalf("expected sign-out-then-verify, got %s", rec.Header().Get(echo.HeaderLocation))
	}
}

func TestAuthHandler_Verify_SetsCookiesAndRedirect(t *testing.T) {
	e := newEcho()
	stub := &stubAuthService{
		verifyFn: func(_ context.Context, email, token string) (*domain.Login, error) {
			if email != "alice@shop.test" || token != validToken {
				t.Fatalf("unexpected args %s %s", email, token)
			}
			return &domain.Login{
				Identity: &domain.Identity{ID: 42, Email: email, Role: domain.RoleManager},
				Tokens:   samplePair(),
				Metadata: map[string]string{domain.MetaCallbackURL: "/manager/orders"},
			}, nil
		},
	}
	h := NewAuthHandler(stub, cookies.Jar{Secure: true})

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/auth/verify",
		`{"email":"alice@shop.test","token":"`+validToken+`"}`), rec)
	if err := h.Verify(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Redirect != "/manager/orders" || resp.AccessToken != "access-2" || resp.ExpiresIn <= 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
	set := responseCookies(rec)
	if set[cookies.AccessName] == nil || !set[cookies.AccessName].HttpOnly {
		t.Fatalf("expected http-only access cookie")
	}
}

func TestAuthHandler_Verify_FallsBackToLanding(t *testing.T) {
	e := newEcho()
	stub := &stubAuthService{
		verifyFn: func(context.Context, string, string) (*domain.Login, error) {
			return &domain.Login{
				Identity: &domain.Identity{ID: 1, Role: domain.RoleAdmin},
				Tokens:   samplePair(),
				Metadata: map[string]string{domain.MetaCallbackURL: "//evil.test"},
			}, nil
		},
	}
	h := NewAuthHandler(stub, cookies.Jar{})

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/auth/verify",
		`{"email":"root@shop.test","token":"`+validToken+`"}`), rec)
	if err := h.Verify(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"redirect":"/admin/dashboard"`) {
		t.Fatalf("expected admin landing, got %s", rec.Body.String())
	}
}

func TestAuthHandler_Verify_MalformedTokenIsInvalidLink(t *testing.T) {
	e := newEcho()
	h := NewAuthHandler(&stubAuthService{
		verifyFn: func(context.Context, string, string) (*domain.Login, error) {
			t.Fatalf("service must not be called for malformed tokens")
			return nil, nil
		},
	}, cookies.Jar{})

	c := e.NewContext(jsonRequest(http.MethodPost, "/auth/verify", `{"email":"a@shop.test","token":"xyz"}`), httptest.NewRecorder())
	if err := h.Verify(c); err != domain.ErrInvalidLink {
		t.Fatalf("expected ErrInvalidLink, got %v", err)
	}
}

func TestAuthHandler_RefreshToken_Body(t *testing.T) {
	e := newEcho()
	h := NewAuthHandler(&stubAuthService{
		refreshFn: func(_ context.Context, token string) (*domain.TokenPair, error) {
			if token != "refresh-1" {
				t.Fatalf("unexpected token %q", token)
			}
			return samplePair(), nil
		},
	}, cookies.Jar{})

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/auth/refresh-token", `{"refreshToken":"refresh-1"}`), rec)
	if err := h.RefreshToken(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	for _, k := range []string{"accessToken", "refreshToken", "expiresIn"} {
		if _, ok := resp[k]; !ok {
			t.Fatalf("response missing %s: %v", k, resp)
		}
	}
	if len(responseCookies(rec)) != 0 {
		t.Fatalf("body refresh must not set cookies")
	}
}

func TestAuthHandler_RefreshToken_CookieFailureClears(t *testing.T) {
	e := newEcho()
	h := NewAuthHandler(&stubAuthService{
		refreshFn: func(context.Context, string) (*domain.TokenPair, error) {
			return nil, domain.ErrRefreshReused
		},
	}, cookies.Jar{})

	req := jsonRequest(http.MethodPost, "/auth/refresh-token", `{}`)
	req.AddCookie(&http.Cookie{Name: cookies.RefreshName, Value: "stolen"})
	rec := httptest.NewRecorder()

	err := h.RefreshToken(e.NewContext(req, rec))
	if !errors.Is(err, domain.ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}
	if ck := responseCookies(rec)[cookies.RefreshName]; ck == nil || ck.MaxAge >= 0 {
		t.Fatalf("expected refresh cookie cleared")
	}
}

func TestAuthHandler_RefreshToken_Missing(t *testing.T) {
	e := newEcho()
	h := NewAuthHandler(&stubAuthService{}, cookies.Jar{})
	c := e.NewContext(jsonRequest(http.MethodPost, "/auth/refresh-token", `{}`), httptest.NewRecorder())
	if err := h.RefreshToken(c); !errors.Is(err, domain.ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	e := newEcho()
	var gotToken string
	var gotUser int64
	h := NewAuthHandler(&stubAuthService{
		logoutFn: func(_ context.Context, token string, userID int64) error {
			gotToken, gotUser = token, userID
			return nil
		},
	}, cookies.Jar{})

	req := jsonRequest(http.MethodPost, "/auth/logout", `{}`)
	req.AddCookie(&http.Cookie{Name: cookies.RefreshName, Value: "refresh-1"})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(middleware.UserIDKey, int64(42))

	if err := h.Logout(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if gotToken != "refresh-1" || gotUser != 42 {
		t.Fatalf("unexpected logout args %q %d", gotToken, gotUser)
	}
	if len(responseCookies(rec)) != 2 {
		t.Fatalf("expected both cookies cleared")
	}
}

func TestAuthHandler_SignOut_ContinuesToSafeCallback(t *testing.T) {
	e := newEcho()
	h := NewAuthHandler(&stubAuthService{
		logoutFn: func(context.Context, string, int64) error { return nil },
	}, cookies.Jar{})

	cases := map[string]string{
		"/auth/signout?callbackUrl=%2Fauth%2Fverify%3Femail%3Da": "/auth/verify?email=a",
		"/auth/signout?callbackUrl=https%3A%2F%2Fevil.test":      "/login",
		"/auth/signout": "/login",
	}
	for target, want := range cases {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Sec-Fetch-Site", "same-origin")
		req.AddCookie(&http.Cookie{Name: cookies.RefreshName, Value: "refresh-1"})
		rec := httptest.NewRecorder()
		if err := h.SignOut(e.NewContext(req, rec)); err != nil {
			t.Fatalf("%s: handler error: %v", target, err)
		}
		if got := rec.Header().Get(echo.HeaderLocation); got != want {
			t.Fatalf("%s: expected %s, got %s", target, want, got)
		}
	}
}

func TestAuthHandler_SignOut_RefusesCrossSite(t *testing.T) {
	e := newEcho()
	var loggedOut []string
	h := NewAuthHandler(&stubAuthService{
		logoutFn: func(_ context.Context, refreshToken string, _ int64) error {
			loggedOut = append(loggedOut, refreshToken)
			return nil
		},
	}, cookies.Jar{})

	refused := []func(*http.Request){
		func(r *http.Request) { r.Header.Set("Sec-Fetch-Site", "cross-site") },
		func(r *http.Request) { r.Header.Set("Sec-Fetch-Site", "same-site") },
		func(r *http.Request) { r.Header.Set("Referer", "https://evil.test/page") },
		func(*http.Request) {},
		func(r *http.Request) {
			r.Header.Set("Sec-Fetch-Site", "cross-site")
			r.URL.RawQuery = "intent=guessed"
			r.AddCookie(&http.Cookie{Name: cookies.IntentName, Value: "issued"})
		},
	}
	for i, setup := range refused {
		req := httptest.NewRequest(http.MethodGet, "/auth/signout", nil)
		req.AddCookie(&http.Cookie{Name: cookies.RefreshName, Value: "refresh-1"})
		setup(req)
		err := h.SignOut(e.NewContext(req, httptest.NewRecorder()))
		var he *echo.HTTPError
		if !errors.As(err, &he) || he.Code != http.StatusForbidden {
			t.Fatalf("case %d: expected 403, got %v", i, err)
		}
	}
	if len(loggedOut) != 0 {
		t.Fatalf("refused sign-outs must not log out, got %v", loggedOut)
	}

	// The callback hop is cross-site but carries the intent it was issued.
	req := httptest.NewRequest(http.MethodGet, "/auth/signout?intent=issued&callbackUrl=%2Fauth%2Fverify", nil)
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.AddCookie(&http.Cookie{Name: cookies.RefreshName, Value: "refresh-1"})
	req.AddCookie(&http.Cookie{Name: cookies.IntentName, Value: "issued"})
	rec := httptest.NewRecorder()
	if err := h.SignOut(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Header().Get(echo.HeaderLocation) != "/auth/verify" || len(loggedOut) != 1 {
		t.Fatalf("expected sign-out then verify, got %s %v", rec.Header().Get(echo.HeaderLocation), loggedOut)
	}
}

func TestAuthHandler_Session(t *testing.T) {
	e := newEcho()
	exp := time.Now().Add(5 * time.Minute).UTC().Truncate(time.Second)
	h := NewAuthHandler(&stubAuthService{
		sessionFn: func(_ context.Context, token string) (*domain.Identity, *domain.AccessClaims, error) {
			if token != "access-1" {
				return nil, nil, domain.ErrInvalidToken
			}
			return &domain.Identity{ID: 42, Email: "alice@shop.test", Role: domain.RoleMember},
				&domain.AccessClaims{UserID: 42, Role: domain.RoleMember, ExpiresAt: exp}, nil
		},
	}, cookies.Jar{})

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.Header.Set("Authorization", "Bearer access-1")
	rec := httptest.NewRecorder()
	if err := h.Session(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"role":"member"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	if err := h.Session(e.NewContext(req, httptest.NewRecorder())); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken without a token, got %v", err)
	}
}
