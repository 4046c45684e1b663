package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"focusroom/internal/service"
)

type PresenceHandler struct {
	presenceService *service.PresenceService
}

type joinRequest struct {
	RoomCode       string `json:"roomCode"`
	UserID         string `json:"userId"`
	DisplayName    string `json:"displayName"`
	Color          string `json:"color"`
	IsFocusing     bool   `json:"isFocusing"`
	FocusStartTime *int64 `json:"focusStartTime"`
	TotalFocusTime int64  `json:"totalFocusTime"`
}

type statusRequest struct {
	RoomCode   string `json:"roomCode"`
	UserID     string `json:"userId"`
	IsFocusing bool   `json:"isFocusing"`
}

type memberRequest struct {
	RoomCode string `json:"roomCode"`
	UserID   string `json:"userId"`
}

func NewPresenceHandler(presenceService *service.PresenceService) *PresenceHandler {
	return &PresenceHandler{presenceService: presenceService}
}

func (h *PresenceHandler) Join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	member, apiErr := h.presenceService.Join(c.Request.Context(), service.JoinInput{
		RoomCode:       req.RoomCode,
		UserID:         req.UserID,
		DisplayName:    req.DisplayName,
		Color:          req.Color,
		IsFocusing:     req.IsFocusing,
		FocusStartTime: req.FocusStartTime,
		TotalFocusTime: req.TotalFocusTime,
	})
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, member)
}

// List serves the pull channel. asOf, in unix milliseconds, defaults to now.
func (h *PresenceHandler) List(c *gin.Context) {
	var asOf time.Time
	if raw := c.Query("asOf"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{"code": "invalid_as_of", "message": "asOf must be unix milliseconds"},
			})
			return
		}
		asOf = time.UnixMilli(ms).UTC()
	}

	snapshot, apiErr := h.presenceService.ListLive(c.Request.Context(), c.Query("roomCode"), asOf)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *PresenceHandler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	member, apiErr := h.presenceService.RecordStatus(c.Request.Context(), req.RoomCode, req.UserID, req.IsFocusing)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, member)
}

func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	if apiErr := h.presenceService.Heartbeat(c.Request.Context(), req.RoomCode, req.UserID); apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PresenceHandler) Leave(c *gin.Context) {
	if apiErr := h.presenceService.Leave(c.Request.Context(), c.Query("roomCode"), c.Query("userId")); apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
