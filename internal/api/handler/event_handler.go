package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/shopdesk/seller-auth/internal/core/ports"
)

// EventHandler exposes the session audit trail to admins.
type EventHandler struct {
	audit ports.AuditLog
}

func NewEventHandler(audit ports.AuditLog) *EventHandler {
	return &EventHandler{audit: audit}
}

// History lists a user's session events, newest first.
//
// @Summary      Session audit trail
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      int  true   "User id"
// @Param        limit  query     int  false  "Maximum entries (default 50, max 200)"
// @Success      200    {object}  auditHistoryResponse
// @Failure      400    {object}  errorResponse
// @Failure      403    {object}  errorResponse
// @Router       /api/admin/users/{id}/events [get]
func (h *EventHandler) History(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
	}

	entries, err := h.audit.History(c.Request().Context(), id, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAuditHistory(id, entries))
}
