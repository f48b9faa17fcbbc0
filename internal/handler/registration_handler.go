package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/service"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
	"github.com/immersup/immersup-api/pkg/response"
)

// RegistrationHandler exposes the registration engine endpoints.
type RegistrationHandler struct {
	registrations *service.RegistrationService
	exports       *service.ExportService
	metrics       *service.MetricsService
	users         actorReader
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(registrations *service.RegistrationService, exports *service.ExportService, metrics *service.MetricsService, users actorReader) *RegistrationHandler {
	return &RegistrationHandler{registrations: registrations, exports: exports, metrics: metrics, users: users}
}

type placeRequest struct {
	SlotID    string `json:"slot_id" binding:"required"`
	StudentID string `json:"student_id"`
}

// Place registers a user on a slot. Managers may name another student;
// registrants always register themselves.
func (h *RegistrationHandler) Place(c *gin.Context) {
	actor := loadActor(c, h.users)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req placeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	registrant := actor
	if req.StudentID != "" && req.StudentID != actor.ID {
		target, err := h.users.FindByID(c.Request.Context(), req.StudentID)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "student not found"))
			return
		}
		registrant = target
	}

	immersion, err := h.registrations.Place(c.Request.Context(), req.SlotID, registrant, actor)
	if err != nil {
		h.metrics.ObserveRegistration(appErrors.FromError(err).Code)
		response.Error(c, err)
		return
	}
	h.metrics.ObserveRegistration("created")
	response.Created(c, immersion)
}

type cancelRequest struct {
	CancelType string `json:"cancel_type" binding:"required"`
}

// Cancel cancels a registration.
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	actor := loadActor(c, h.users)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	immersion, err := h.registrations.Cancel(c.Request.Context(), c.Param("id"), req.CancelType, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, immersion, nil)
}

type moveRequest struct {
	TargetSlotID string `json:"target_slot_id" binding:"required"`
	CancelType   string `json:"cancel_type" binding:"required"`
}

// Move transfers a registration to another slot.
func (h *RegistrationHandler) Move(c *gin.Context) {
	actor := loadActor(c, h.users)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	immersion, err := h.registrations.Move(c.Request.Context(), c.Param("id"), req.TargetSlotID, req.CancelType, actor, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, immersion, nil)
}

type attendanceRequest struct {
	Status int `json:"status" binding:"required"`
}

// Attendance records presence or absence on a past slot.
func (h *RegistrationHandler) Attendance(c *gin.Context) {
	actor := loadActor(c, h.users)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.registrations.MarkAttendance(c.Request.Context(), c.Param("id"), models.AttendanceStatus(req.Status), actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// PlaceGroup books a cohort on a slot.
func (h *RegistrationHandler) PlaceGroup(c *gin.Context) {
	actor := loadActor(c, h.users)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.GroupRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	group, err := h.registrations.PlaceGroup(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// ListForStudent returns a student's registrations.
func (h *RegistrationHandler) ListForStudent(c *gin.Context) {
	actor := loadActor(c, h.users)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	details, err := h.registrations.ListForStudent(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}

// Certificate renders the attendance certificate PDF.
func (h *RegistrationHandler) Certificate(c *gin.Context) {
	actor := loadActor(c, h.users)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	pdf, err := h.exports.AttendanceCertificate(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="attestation.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}
