package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/service"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
	"github.com/immersup/immersup-api/pkg/response"
)

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth  *service.AuthService
	users actorReader
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *service.AuthService, users actorReader) *AuthHandler {
	return &AuthHandler{auth: auth, users: users}
}

// Login authenticates a user.
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Refresh rotates a refresh token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.auth.RefreshToken(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Hijack issues an acting-as token for the target user.
func (h *AuthHandler) Hijack(c *gin.Context) {
	actor := loadActor(c, h.users)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.auth.Hijack(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	actor := loadActor(c, h.users)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	info := models.UserInfo{
		ID:        actor.ID,
		Email:     actor.Email,
		FirstName: actor.FirstName,
		LastName:  actor.LastName,
		Role:      actor.Role,
	}
	response.JSON(c, http.StatusOK, info, nil)
}
