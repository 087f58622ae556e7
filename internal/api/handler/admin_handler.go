package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/shopdesk/seller-auth/internal/core/domain"
	"github.com/shopdesk/seller-auth/internal/core/ports"
)

// AdminHandler serves operations that change who can sign in and as what.
// Routes are mounted behind Auth and RBAC(admin).
type AdminHandler struct {
	authService ports.AuthService
}

func NewAdminHandler(authService ports.AuthService) *AdminHandler {
	return &AdminHandler{authService: authService}
}

// Maintenance reports the maintenance switch.
//
// @Summary      Maintenance status
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  maintenanceResponse
// @Router       /api/admin/maintenance [get]
func (h *AdminHandler) Maintenance(c echo.Context) error {
	return c.JSON(http.StatusOK, maintenanceResponse{Enabled: h.authService.Maintenance(c.Request().Context())})
}

// SetMaintenance turns maintenance mode on or off.
//
// @Summary      Toggle maintenance
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      maintenanceRequest  true  "Desired state"
// @Success      200   {object}  maintenanceResponse
// @Failure      403   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /api/admin/maintenance [put]
func (h *AdminHandler) SetMaintenance(c echo.Context) error {
	var req maintenanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	if err := h.authService.SetMaintenance(c.Request().Context(), *req.Enabled); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, maintenanceResponse{Enabled: *req.Enabled})
}

// ChangeRole migrates a user to a new role and ends all of their sessions.
//
// @Summary      Change a user's role
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int                true  "User id"
// @Param        body  body      changeRoleRequest  true  "New role"
// @Success      200   {object}  domain.Identity
// @Failure      404   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /api/admin/users/{id}/role [patch]
func (h *AdminHandler) ChangeRole(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	var req changeRoleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	role, _ := domain.ParseRole(req.Role)

	user, err := h.authService.ChangeRole(c.Request().Context(), id, role)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// Invite creates an account and mails it a sign-in link.
//
// @Summary      Invite a user
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      inviteRequest  true  "Invitation"
// @Success      201   {object}  domain.Identity
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /api/admin/users [post]
func (h *AdminHandler) Invite(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}

	var req inviteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	role, _ := domain.ParseRole(req.Role)

	user, err := h.authService.Invite(c.Request().Context(), req.Email, req.Name, role, claims.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, user)
}
