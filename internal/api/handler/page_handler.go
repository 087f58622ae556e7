package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

// pageAction is the one thing a page offers the user to do next.
type pageAction struct {
	Label  string            `json:"label"`
	Method string            `json:"method"`
	Href   string            `json:"href"`
	Fields map[string]string `json:"fields,omitempty"`
}

// pageResponse describes a page for the console front end. Terminal failure
// pages always carry exactly one action.
type pageResponse struct {
	Page    string      `json:"page"`
	Title   string      `json:"title"`
	Message string      `json:"message,omitempty"`
	Role    domain.Role `json:"role,omitempty"`
	Action  *pageAction `json:"action,omitempty"`
}

// PageHandler renders the auth pages and the role areas behind the gate.
type PageHandler struct{}

func NewPageHandler() *PageHandler {
	return &PageHandler{}
}

// Login renders the sign-in form.
//
// @Summary      Sign-in page
// @Tags         pages
// @Produce      json
// @Param        callbackUrl  query  string  false  "Path to return to"
// @Success      200  {object}  pageResponse
// @Router       /login [get]
func (h *PageHandler) Login(c echo.Context) error {
	fields := map[string]string{"email": ""}
	if cb := domain.SafeCallback(c.QueryParam("callbackUrl")); cb != "" {
		fields["callbackUrl"] = cb
	}
	return c.JSON(http.StatusOK, pageResponse{
		Page:  "login",
		Title: "Sign in",
		Action: &pageAction{
			Label:  "Email me a sign-in link",
			Method: http.MethodPost,
			Href:   "/auth/request-magic-link",
			Fields: fields,
		},
	})
}

// Verify renders the confirmation step for an emailed link. Redemption only
// happens on POST so link scanners cannot burn the token.
//
// @Summary      Verify page
// @Tags         pages
// @Produce      json
// @Param        email  query  string  true  "Email"
// @Param        token  query  string  true  "Token"
// @Success      200  {object}  pageResponse
// @Router       /auth/verify [get]
func (h *PageHandler) Verify(c echo.Context) error {
	email, token := c.QueryParam("email"), c.QueryParam("token")
	if email == "" || token == "" {
		return c.JSON(http.StatusOK, invalidLinkPage())
	}
	return c.JSON(http.StatusOK, pageResponse{
		Page:  "verify",
		Title: "Finish signing in",
		Action: &pageAction{
			Label:  "Continue",
			Method: http.MethodPost,
			Href:   domain.VerifyPath,
			Fields: map[string]string{"email": email, "token": token},
		},
	})
}

func invalidLinkPage() pageResponse {
	return pageResponse{
		Page:    "invalid-link",
		Title:   "Link not valid",
		Message: domain.ErrInvalidLink.Error(),
		Action:  &pageAction{Label: "Request a new link", Method: http.MethodGet, Href: domain.LoginPath},
	}
}

// Unauthorized is shown when a signed-in user reaches an area their role
// cannot open. It does not say which roles could.
//
// @Summary      Access denied page
// @Tags         pages
// @Produce      json
// @Success      403  {object}  pageResponse
// @Router       /unauthorized [get]
func (h *PageHandler) Unauthorized(c echo.Context) error {
	action := &pageAction{Label: "Sign in with another account", Method: http.MethodGet, Href: domain.SignOutPath}
	if claims, err := ctxClaims(c); err == nil {
		action = &pageAction{Label: "Back to your dashboard", Method: http.MethodGet, Href: domain.LandingPath(claims.Role)}
	}
	return c.JSON(http.StatusForbidden, pageResponse{
		Page:    "unauthorized",
		Title:   "Access denied",
		Message: domain.ErrUnauthorized.Error(),
		Action:  action,
	})
}

// Maintenance is the holding page while sign-in is disabled.
//
// @Summary      Maintenance page
// @Tags         pages
// @Produce      json
// @Success      503  {object}  pageResponse
// @Router       /maintenance [get]
func (h *PageHandler) Maintenance(c echo.Context) error {
	return c.JSON(http.StatusServiceUnavailable, pageResponse{
		Page:    "maintenance",
		Title:   "Down for maintenance",
		Message: "Seller Center is being updated. Please try again shortly.",
		Action:  &pageAction{Label: "Try again", Method: http.MethodGet, Href: domain.LoginPath},
	})
}

// Expired is where a failed refresh lands.
//
// @Summary      Session expired page
// @Tags         pages
// @Produce      json
// @Param        callbackUrl  query  string  false  "Path to return to"
// @Success      401  {object}  pageResponse
// @Router       /auth/expired [get]
func (h *PageHandler) Expired(c echo.Context) error {
	href := domain.LoginPath
	if cb := domain.SafeCallback(c.QueryParam("callbackUrl")); cb != "" {
		href += "?" + url.Values{"callbackUrl": {cb}}.Encode()
	}
	return c.JSON(http.StatusUnauthorized, pageResponse{
		Page:    "expired",
		Title:   "Session expired",
		Message: "Your session has ended. Sign in again to continue.",
		Action:  &pageAction{Label: "Sign in again", Method: http.MethodGet, Href: href},
	})
}

// Area renders a page inside a role area. The gate has already admitted the
// caller, so claims are always present here.
//
// @Summary      Role area page
// @Tags         pages
// @Produce      json
// @Success      200  {object}  pageResponse
// @Failure      401  {object}  errorResponse
// @Router       /admin/{page} [get]
// @Router       /manager/{page} [get]
// @Router       /client/{page} [get]
func (h *PageHandler) Area(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}
	page := strings.Trim(c.Request().URL.Path, "/")
	return c.JSON(http.StatusOK, pageResponse{
		Page:  page,
		Title: strings.ReplaceAll(page, "/", " / "),
		Role:  claims.Role,
		Action: &pageAction{
			Label:  "Sign out",
			Method: http.MethodGet,
			Href:   domain.SignOutPath,
		},
	})
}
