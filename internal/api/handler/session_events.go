package handler

import (
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// SocketServer takes ownership of an upgraded session-event socket.
type SocketServer interface {
	Serve(conn *websocket.Conn, userID int64)
}

// SessionEventsHandler upgrades signed-in tabs to a websocket that receives
// logout, revocation and role-change events for their user.
type SessionEventsHandler struct {
	hub      SocketServer
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewSessionEventsHandler(hub SocketServer, log zerolog.Logger) *SessionEventsHandler {
	return &SessionEventsHandler{
		hub: hub,
		// Default CheckOrigin: the Origin host must equal the request host.
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		log:      log,
	}
}

// Stream handles GET /auth/session/events.
//
// @Summary      Session event stream
// @Tags         auth
// @Security     BearerAuth
// @Success      101
// @Failure      401  {object}  errorResponse
// @Router       /auth/session/events [get]
func (h *SessionEventsHandler) Stream(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Debug().Err(err).Int64("user_id", claims.UserID).Msg("session socket upgrade failed")
		return nil
	}
	h.hub.Serve(conn, claims.UserID)
	return nil
}
