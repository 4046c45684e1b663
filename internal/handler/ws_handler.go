package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"focusroom/internal/hub"
	"focusroom/internal/middleware"
)

type WSHandler struct {
	hub      *hub.Hub
	upgrader websocket.Upgrader
	logger   logrus.FieldLogger
}

func NewWSHandler(h *hub.Hub, origins middleware.Origins, logger logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		hub:    h,
		logger: logger.WithField("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.CheckRequest,
		},
	}
}

// Serve upgrades the request. When roomCode and userId are in the query the
// connection joins that room immediately.
func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	var join *hub.JoinRoomPayload
	if roomCode, userID := c.Query("roomCode"), c.Query("userId"); roomCode != "" && userID != "" {
		join = &hub.JoinRoomPayload{
			RoomCode:       roomCode,
			UserID:         userID,
			DisplayName:    c.Query("displayName"),
			Color:          c.Query("color"),
			TotalFocusTime: int64(queryInt(c, "totalFocusTime", 0)),
		}
	}
	h.hub.Serve(conn, join)
}
