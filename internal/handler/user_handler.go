package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"focusroom/internal/service"
)

type UserHandler struct {
	userService *service.UserService
}

type upsertUserRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Email string `json:"email"`
}

func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

func (h *UserHandler) Upsert(c *gin.Context) {
	var req upsertUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeInvalidJSON(c)
		return
	}

	user, apiErr := h.userService.UpsertUser(c.Request.Context(), req.Name, req.Color, req.Email)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *UserHandler) Get(c *gin.Context) {
	user, apiErr := h.userService.GetUser(c.Request.Context(), c.Query("id"))
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, user)
}
