package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"focusroom/internal/service"
)

type RoomHandler struct {
	roomService *service.RoomService
}

type createRoomRequest struct {
	RoomCode string `json:"roomCode"`
	Name     string `json:"name"`
}

func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	return &RoomHandler{roomService: roomService}
}

func (h *RoomHandler) Get(c *gin.Context) {
	room, apiErr := h.roomService.GetRoom(c.Request.Context(), c.Query("roomCode"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) Create(c *gin.Context) {
	var req createRoomRequest
	// An empty body creates a room with a generated code.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeInvalidJSON(c)
			return
		}
	}

	room, apiErr := h.roomService.CreateRoom(c.Request.Context(), req.RoomCode, req.Name)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, room)
}
