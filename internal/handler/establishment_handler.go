package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/immersup/immersup-api/internal/service"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
	"github.com/immersup/immersup-api/pkg/response"
)

// EstablishmentHandler exposes the establishment side of the
// organization graph.
type EstablishmentHandler struct {
	orgs *service.OrganizationService
}

// NewEstablishmentHandler constructs EstablishmentHandler.
func NewEstablishmentHandler(orgs *service.OrganizationService) *EstablishmentHandler {
	return &EstablishmentHandler{orgs: orgs}
}

// List returns every establishment.
func (h *EstablishmentHandler) List(c *gin.Context) {
	establishments, err := h.orgs.ListEstablishments(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, establishments, nil)
}

// Get returns one establishment.
func (h *EstablishmentHandler) Get(c *gin.Context) {
	est, err := h.orgs.GetEstablishment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, est, nil)
}

// Create adds an establishment.
func (h *EstablishmentHandler) Create(c *gin.Context) {
	var req service.CreateEstablishmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	est, err := h.orgs.CreateEstablishment(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, est)
}

// Structures returns the structures of an establishment.
func (h *EstablishmentHandler) Structures(c *gin.Context) {
	structures, err := h.orgs.ListStructures(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, structures, nil)
}

// Structure returns one structure.
func (h *EstablishmentHandler) Structure(c *gin.Context) {
	structure, err := h.orgs.GetStructure(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, structure, nil)
}

// Course returns a course with its owner labels.
func (h *EstablishmentHandler) Course(c *gin.Context) {
	course, err := h.orgs.GetCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}
