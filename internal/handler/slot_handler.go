package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/service"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
	"github.com/immersup/immersup-api/pkg/response"
)

// SlotHandler exposes slot lifecycle endpoints.
type SlotHandler struct {
	slots *service.SlotService
	users actorReader
}

// NewSlotHandler constructs SlotHandler.
func NewSlotHandler(slots *service.SlotService, users actorReader) *SlotHandler {
	return &SlotHandler{slots: slots, users: users}
}

// List returns slots with filters.
func (h *SlotHandler) List(c *gin.Context) {
	var filter models.SlotFilter
	filter.CourseID = c.Query("courseId")
	if published := c.Query("published"); published != "" {
		v := published == "true"
		filter.Published = &v
	}
	if cancelled := c.Query("cancelled"); cancelled != "" {
		v := cancelled == "true"
		filter.Cancelled = &v
	}
	if from := c.Query("from"); from != "" {
		if d, err := time.Parse("2006-01-02", from); err == nil {
			filter.DateFrom = &d
		}
	}
	if to := c.Query("to"); to != "" {
		if d, err := time.Parse("2006-01-02", to); err == nil {
			filter.DateTo = &d
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	slots, pagination, err := h.slots.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, pagination)
}

// Get returns one slot with usage counters.
func (h *SlotHandler) Get(c *gin.Context) {
	actor := loadActor(c, h.users)
	detail, err := h.slots.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create adds a slot.
func (h *SlotHandler) Create(c *gin.Context) {
	var req service.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	slot, err := h.slots.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// Update edits a slot.
func (h *SlotHandler) Update(c *gin.Context) {
	actor := loadActor(c, h.users)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	slot, err := h.slots.Update(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Publish makes a slot visible to registrants.
func (h *SlotHandler) Publish(c *gin.Context) {
	if err := h.slots.SetPublished(c.Request.Context(), c.Param("id"), true); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Unpublish hides a slot.
func (h *SlotHandler) Unpublish(c *gin.Context) {
	if err := h.slots.SetPublished(c.Request.Context(), c.Param("id"), false); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

type cancelSlotRequest struct {
	CancelType string `json:"cancel_type" binding:"required"`
}

// Cancel cancels a slot and cascades to its registrations.
func (h *SlotHandler) Cancel(c *gin.Context) {
	var req cancelSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.slots.Cancel(c.Request.Context(), c.Param("id"), req.CancelType); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
