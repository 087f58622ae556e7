package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shopdesk/seller-auth/internal/core/domain"
)

// RBAC enforces role-based access control. It must run after Auth; a missing
// or unknown role is treated like any other disallowed role.
func RBAC(allowedRoles ...domain.Role) echo.MiddlewareFunc {
	allowed := make(map[domain.Role]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		if r.Valid() {
			allowed[r] = struct{}{}
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(RoleKey).(domain.Role)
			if _, ok := allowed[role]; !ok {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "access denied"})
			}
			return next(c)
		}
	}
}
