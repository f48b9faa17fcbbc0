package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/immersup/immersup-api/pkg/geoapi"
	"github.com/immersup/immersup-api/pkg/response"
)

// GeoHandler proxies the French geo API for record edition suggestions.
// Upstream failures degrade to empty lists.
type GeoHandler struct {
	geo *geoapi.Client
}

// NewGeoHandler constructs GeoHandler.
func NewGeoHandler(geo *geoapi.Client) *GeoHandler {
	return &GeoHandler{geo: geo}
}

// Departments lists French departments as (code, label) pairs.
func (h *GeoHandler) Departments(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.geo.Departments(c.Request.Context()), nil)
}

// Cities lists the communes of a department.
func (h *GeoHandler) Cities(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.geo.Cities(c.Request.Context(), c.Param("department")), nil)
}

// ZipCodes lists the zip codes of a commune.
func (h *GeoHandler) ZipCodes(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.geo.ZipCodes(c.Request.Context(), c.Param("department"), c.Query("city")), nil)
}
