package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/shopdesk/seller-auth/internal/api/middleware"
	"github.com/shopdesk/seller-auth/internal/core/domain"
)

// ctxClaims extracts the claims injected by the Auth or Gate middleware and
// fails fast when they are absent or carry no usable role.
func ctxClaims(c echo.Context) (*domain.AccessClaims, error) {
	claims, _ := c.Get(middleware.ClaimsKey).(*domain.AccessClaims)
	if claims == nil || !claims.Role.Valid() {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return claims, nil
}

// callerID returns the authenticated user id, or 0 for anonymous requests.
func callerID(c echo.Context) int64 {
	id, _ := c.Get(middleware.UserIDKey).(int64)
	return id
}

// bearer returns the token of an "Authorization: Bearer" header, or "".
func bearer(c echo.Context) string {
	scheme, token, ok := strings.Cut(c.Request().Header.Get(echo.HeaderAuthorization), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func isRefreshFailure(err error) bool {
	return errors.Is(err, domain.ErrRefreshFailed)
}

// resultLabel buckets a service error into a metrics label.
func resultLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrMaintenance):
		return "maintenance"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrInvalidEmail), errors.Is(err, domain.ErrInvalidLink):
		return "rejected"
	case errors.Is(err, domain.ErrRefreshReused):
		return "reused"
	case errors.Is(err, domain.ErrRefreshFailed):
		return "failed"
	default:
		return "error"
	}
}
