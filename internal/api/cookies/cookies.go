// Package cookies owns the session cookie contract: both tokens travel in
// HTTP-only, Secure, SameSite=Lax cookies that scripts cannot read.
package cookies

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

const (
	AccessName  = "seller_access"
	RefreshName = "seller_refresh"
	// IntentName holds the one-time value that lets the callback's sign-out
	// hop through even though the navigation started on another site.
	IntentName = "seller_signout"
)

// Jar writes and clears the session cookies.
type Jar struct {
	Domain string
	Secure bool
}

// SetSession stores pair in the access and refresh cookies. Both cover the
// whole site because the gate refreshes on page navigations.
func (j Jar) SetSession(c echo.Context, pair *domain.TokenPair) {
	c.SetCookie(j.cookie(AccessName, pair.AccessToken, "/", pair.AccessTokenExpiry))
	c.SetCookie(j.cookie(RefreshName, pair.RefreshToken, "/", pair.RefreshTokenExpiry))
}

// Clear expires both cookies.
func (j Jar) Clear(c echo.Context) {
	for _, name := range []string{AccessName, RefreshName} {
		ck := j.cookie(name, "", "/", time.Unix(0, 0))
		ck.MaxAge = -1
		c.SetCookie(ck)
	}
}

// SetSignOutIntent scopes value to the sign-out path until expires.
func (j Jar) SetSignOutIntent(c echo.Context, value string, expires time.Time) {
	c.SetCookie(j.cookie(IntentName, value, domain.SignOutPath, expires))
}

// ClearSignOutIntent expires the intent cookie.
func (j Jar) ClearSignOutIntent(c echo.Context) {
	ck := j.cookie(IntentName, "", domain.SignOutPath, time.Unix(0, 0))
	ck.MaxAge = -1
	c.SetCookie(ck)
}

func (j Jar) cookie(name, value, path string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   j.Domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Access returns the access token cookie value, or "".
func Access(c echo.Context) string {
	return read(c, AccessName)
}

// Refresh returns the refresh token cookie value, or "".
func Refresh(c echo.Context) string {
	return read(c, RefreshName)
}

// SignOutIntent returns the sign-out intent cookie value, or "".
func SignOutIntent(c echo.Context) string {
	return read(c, IntentName)
}

func read(c echo.Context, name string) string {
	ck, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
