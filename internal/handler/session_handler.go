package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "focusroom/internal/errors"
	"focusroom/internal/model"
	"focusroom/internal/service"
)

type SessionHandler struct {
	sessionService *service.SessionService
}

type startSessionRequest struct {
	UserID   string `json:"userId"`
	RoomCode string `json:"roomCode"`
}

type endSessionRequest struct {
	SessionID string `json:"sessionId"`
}

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

func (h *SessionHandler) Start(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	session, apiErr := h.sessionService.StartFocus(c.Request.Context(), req.UserID, req.RoomCode)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) End(c *gin.Context) {
	var req endSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	session, apiErr := h.sessionService.CloseFocus(c.Request.Context(), req.SessionID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, session)
}

// List returns a user's sessions, or a room's when roomCode is given
// instead of userId.
func (h *SessionHandler) List(c *gin.Context) {
	limit := queryInt(c, "limit", 20)
	userID := c.Query("userId")
	roomCode := c.Query("roomCode")

	var (
		sessions []model.FocusSession
		apiErr   *apperrors.APIError
	)
	switch {
	case userID != "":
		sessions, apiErr = h.sessionService.ListUserSessions(c.Request.Context(), userID, limit)
	case roomCode != "":
		sessions, apiErr = h.sessionService.ListRoomSessions(c.Request.Context(), roomCode, limit)
	default:
		apiErr = apperrors.BadRequest("missing_filter", "userId or roomCode is required")
	}
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *SessionHandler) Stats(c *gin.Context) {
	stats, apiErr := h.sessionService.UserStats(c.Request.Context(), c.Query("userId"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, stats)
}
