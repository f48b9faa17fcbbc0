package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/service"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
	"github.com/immersup/immersup-api/pkg/response"
)

// MailTemplateHandler exposes notification template administration.
type MailTemplateHandler struct {
	notifications *service.NotificationService
}

// NewMailTemplateHandler constructs MailTemplateHandler.
func NewMailTemplateHandler(notifications *service.NotificationService) *MailTemplateHandler {
	return &MailTemplateHandler{notifications: notifications}
}

// List returns every template.
func (h *MailTemplateHandler) List(c *gin.Context) {
	templates, err := h.notifications.ListTemplates(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, templates, nil)
}

// Update saves an edited template. Bodies referencing variables outside
// the template's declared set are refused.
func (h *MailTemplateHandler) Update(c *gin.Context) {
	var tpl models.MailTemplate
	if err := c.ShouldBindJSON(&tpl); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	tpl.ID = c.Param("id")
	if err := h.notifications.UpdateTemplate(c.Request.Context(), &tpl); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tpl, nil)
}
