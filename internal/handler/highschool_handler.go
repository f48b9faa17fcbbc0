package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/service"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
	"github.com/immersup/immersup-api/pkg/response"
)

// HighSchoolHandler exposes high school endpoints, including the agreed
// and post-bac views.
type HighSchoolHandler struct {
	orgs *service.OrganizationService
}

// NewHighSchoolHandler constructs HighSchoolHandler.
func NewHighSchoolHandler(orgs *service.OrganizationService) *HighSchoolHandler {
	return &HighSchoolHandler{orgs: orgs}
}

// List returns high schools with pagination.
func (h *HighSchoolHandler) List(c *gin.Context) {
	var filter models.HighSchoolFilter
	filter.Search = c.Query("search")
	if active := c.Query("active"); active != "" {
		v := active == "true"
		filter.Active = &v
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	schools, pagination, err := h.orgs.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schools, pagination)
}

// Agreed returns the schools whose pupils may currently register.
func (h *HighSchoolHandler) Agreed(c *gin.Context) {
	schools, err := h.orgs.ListAgreed(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schools, nil)
}

// Postbac returns schools offering post-bac immersions.
func (h *HighSchoolHandler) Postbac(c *gin.Context) {
	schools, err := h.orgs.ListPostbac(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schools, nil)
}

// Get returns one high school.
func (h *HighSchoolHandler) Get(c *gin.Context) {
	school, err := h.orgs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, school, nil)
}

// UploadLogo stores a school logo.
func (h *HighSchoolHandler) UploadLogo(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "missing file"))
		return
	}
	src, err := file.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer src.Close()

	school, err := h.orgs.UploadLogo(c.Request.Context(), c.Param("id"), file.Filename, src)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, school, nil)
}

// Logo streams a school's stored logo.
func (h *HighSchoolHandler) Logo(c *gin.Context) {
	file, err := h.orgs.LogoFile(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()
	c.File(file.Name())
}

// Create adds a high school.
func (h *HighSchoolHandler) Create(c *gin.Context) {
	var req service.CreateHighSchoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	school, err := h.orgs.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, school)
}
