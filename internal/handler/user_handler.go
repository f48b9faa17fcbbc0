package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/service"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
	"github.com/immersup/immersup-api/pkg/response"
)

// UserHandler exposes account administration endpoints.
type UserHandler struct {
	authority *service.AuthorityService
	users     actorReader
}

// NewUserHandler constructs UserHandler.
func NewUserHandler(authority *service.AuthorityService, users actorReader) *UserHandler {
	return &UserHandler{authority: authority, users: users}
}

type mergeAccountsRequest struct {
	Label      string   `json:"label" binding:"required"`
	AccountIDs []string `json:"account_ids" binding:"required"`
}

// Merge links accounts known to be the same person into a group.
func (h *UserHandler) Merge(c *gin.Context) {
	var req mergeAccountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	group, err := h.authority.MergeAccounts(c.Request.Context(), req.Label, req.AccountIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// GroupMembers returns the accounts linked by a merge group.
func (h *UserHandler) GroupMembers(c *gin.Context) {
	members, err := h.authority.GroupMembers(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, members, nil)
}

// MyEstablishments returns the establishments the caller administers.
func (h *UserHandler) MyEstablishments(c *gin.Context) {
	actor := loadActor(c, h.users)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	establishments, err := h.authority.UserEstablishments(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, establishments, nil)
}

// MyStructures returns the structures the caller is attached to.
func (h *UserHandler) MyStructures(c *gin.Context) {
	actor := loadActor(c, h.users)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	structures, err := h.authority.UserStructures(c.Request.Context(), actor,
		models.RoleOperator, models.RoleMasterEstablishmentManager)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, structures, nil)
}
