package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shopdesk/seller-auth/internal/api/cookies"
	"github.com/shopdesk/seller-auth/internal/api/metrics"
	"github.com/shopdesk/seller-auth/internal/core/domain"
	"github.com/shopdesk/seller-auth/internal/core/ports"
)

// requestLinkMessage is returned whether or not the address is registered.
const requestLinkMessage = "If the address belongs to an account, a sign-in link is on its way."

const signOutIntentTTL = time.Minute

type AuthHandler struct {
	authService ports.AuthService
	cookies     cookies.Jar
	now         func() time.Time
}

func NewAuthHandler(authService ports.AuthService, jar cookies.Jar) *AuthHandler {
	return &AuthHandler{authService: authService, cookies: jar, now: time.Now}
}

// RequestMagicLink mails a single-use sign-in link.
//
// @Summary      Request a magic sign-in link
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      requestLinkRequest  true  "Email address"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /auth/request-magic-link [post]
func (h *AuthHandler) RequestMagicLink(c echo.Context) error {
	var req requestLinkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	var meta map[string]string
	if cb := domain.SafeCallback(req.CallbackURL); cb != "" {
		meta = map[string]string{domain.MetaCallbackURL: cb}
	}

	if err := h.authService.RequestMagicLink(c.Request().Context(), req.Email, meta); err != nil {
		metrics.MagicLinkRequestsTotal.WithLabelValues(resultLabel(err)).Inc()
		return err
	}
	metrics.MagicLinkRequestsTotal.WithLabelValues("accepted").Inc()
	return c.JSON(http.StatusOK, messageResponse{Message: requestLinkMessage})
}

// Callback is the target of the emailed link. It never consumes the token:
// it forwards to the verify page, signing out an existing session first.
//
// @Summary      Magic link landing
// @Tags         auth
// @Param        email  query  string  true  "Email the link was sent to"
// @Param        token  query  string  true  "Link token"
// @Success      303
// @Router       /auth/callback [get]
func (h *AuthHandler) Callback(c echo.Context) error {
	email, token := c.QueryParam("email"), c.QueryParam("token")
	if email == "" || token == "" {
		return c.Redirect(http.StatusSeeOther, domain.LoginPath)
	}

	verify := domain.VerifyPath + "?" + url.Values{"email": {email}, "token": {token}}.Encode()
	if cookies.Access(c) != "" || cookies.Refresh(c) != "" {
		// The link was opened from a mail client, so the sign-out hop is a
		// cross-site navigation; the intent cookie vouches for it.
		intent, err := newIntent()
		if err != nil {
			return err
		}
		h.cookies.SetSignOutIntent(c, intent, h.now().Add(signOutIntentTTL))
		signOut := domain.SignOutPath + "?" + url.Values{"callbackUrl": {verify}, "intent": {intent}}.Encode()
		return c.Redirect(http.StatusSeeOther, signOut)
	}
	return c.Redirect(http.StatusSeeOther, verify)
}

// Verify redeems a magic link and opens a session.
//
// @Summary      Redeem a magic link
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      verifyRequest  true  "Email and link token"
// @Success      200   {object}  loginResponse
// @Failure      401   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /auth/verify [post]
func (h *AuthHandler) Verify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		// A malformed token is just another bad link.
		metrics.MagicLinkRedemptionsTotal.WithLabelValues("rejected").Inc()
		return domain.ErrInvalidLink
	}

	login, err := h.authService.Verify(c.Request().Context(), req.Email, req.Token)
	if err != nil {
		metrics.MagicLinkRedemptionsTotal.WithLabelValues(resultLabel(err)).Inc()
		return err
	}
	metrics.MagicLinkRedemptionsTotal.WithLabelValues("redeemed").Inc()

	h.cookies.SetSession(c, login.Tokens)

	redirect := domain.SafeCallback(login.Metadata[domain.MetaCallbackURL])
	if redirect == "" {
		redirect = domain.LandingPath(login.Identity.Role)
	}

	return c.JSON(http.StatusOK, loginResponse{
		User:         login.Identity,
		AccessToken:  login.Tokens.AccessToken,
		RefreshToken: login.Tokens.RefreshToken,
		ExpiresIn:    login.Tokens.ExpiresIn(h.now()),
		Redirect:     redirect,
	})
}

// RefreshToken rotates the refresh token from the body or, when absent, the
// refresh cookie.
//
// @Summary      Rotate tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  false  "Refresh token"
// @Success      200   {object}  tokenResponse
// @Failure      401   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /auth/refresh-token [post]
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	fromCookie := false
	if req.RefreshToken == "" {
		req.RefreshToken = cookies.Refresh(c)
		fromCookie = true
	}
	if req.RefreshToken == "" {
		metrics.TokenRefreshTotal.WithLabelValues("api", "failed").Inc()
		return domain.ErrRefreshFailed
	}

	pair, err := h.authService.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("api", resultLabel(err)).Inc()
		if fromCookie && isRefreshFailure(err) {
			h.cookies.Clear(c)
		}
		return err
	}
	metrics.TokenRefreshTotal.WithLabelValues("api", "rotated").Inc()

	if fromCookie {
		h.cookies.SetSession(c, pair)
	}
	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn(h.now()),
	})
}

// Logout revokes the current login and clears the session cookies.
//
// @Summary      Log out
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body  refreshRequest  false  "Refresh token"
// @Success      204
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if req.RefreshToken == "" {
		req.RefreshToken = cookies.Refresh(c)
	}

	if err := h.logout(c, req.RefreshToken); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// SignOut is the navigable variant of Logout used by the magic-link callback.
// Other sites cannot trigger it: the request must come from this site or carry
// the intent the callback handed out.
//
// @Summary      Sign out and continue
// @Tags         auth
// @Param        callbackUrl  query  string  false  "Same-origin path to continue to"
// @Param        intent       query  string  false  "One-time value issued by the callback"
// @Success      303
// @Failure      403  {object}  errorResponse
// @Router       /auth/signout [get]
func (h *AuthHandler) SignOut(c echo.Context) error {
	if !signOutAllowed(c) {
		return echo.NewHTTPError(http.StatusForbidden, "cross-site sign-out refused")
	}
	if cookies.SignOutIntent(c) != "" {
		h.cookies.ClearSignOutIntent(c)
	}
	if err := h.logout(c, cookies.Refresh(c)); err != nil {
		return err
	}

	next := domain.SafeCallback(c.QueryParam("callbackUrl"))
	if next == "" {
		next = domain.LoginPath
	}
	return c.Redirect(http.StatusSeeOther, next)
}

func signOutAllowed(c echo.Context) bool {
	req := c.Request()
	if intent := c.QueryParam("intent"); intent != "" {
		want := cookies.SignOutIntent(c)
		return want != "" && subtle.ConstantTimeCompare([]byte(intent), []byte(want)) == 1
	}
	switch req.Header.Get("Sec-Fetch-Site") {
	case "same-origin", "none":
		return true
	case "":
		// No fetch metadata: trust a Referer from this host.
		ref, err := url.Parse(req.Referer())
		return err == nil && ref.Host != "" && ref.Host == req.Host
	}
	return false
}

func newIntent() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (h *AuthHandler) logout(c echo.Context, refreshToken string) error {
	if refreshToken != "" {
		if err := h.authService.Logout(c.Request().Context(), refreshToken, callerID(c)); err != nil {
			return err
		}
	}
	h.cookies.Clear(c)
	return nil
}

// Session returns the identity behind the presented access token.
//
// @Summary      Current session
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  sessionResponse
// @Failure      401  {object}  errorResponse
// @Router       /auth/session [get]
func (h *AuthHandler) Session(c echo.Context) error {
	token := bearer(c)
	if token == "" {
		token = cookies.Access(c)
	}
	if token == "" {
		return domain.ErrInvalidToken
	}

	user, claims, err := h.authService.Session(c.Request().Context(), token)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessionResponse{User: user, Role: claims.Role, ExpiresAt: claims.ExpiresAt})
}
