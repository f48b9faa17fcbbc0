package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/service"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
	"github.com/immersup/immersup-api/pkg/response"
)

// RecordHandler exposes dossier endpoints.
type RecordHandler struct {
	records *service.RecordService
	users   actorReader
}

// NewRecordHandler constructs RecordHandler.
func NewRecordHandler(records *service.RecordService, users actorReader) *RecordHandler {
	return &RecordHandler{records: records, users: users}
}

// Submit creates or resubmits the caller's dossier.
func (h *RecordHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SubmitRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.records.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Mine returns the caller's dossier.
func (h *RecordHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	record, err := h.records.GetByUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// ListAwaiting returns dossiers waiting for review. High school managers
// only see their own school's.
func (h *RecordHandler) ListAwaiting(c *gin.Context) {
	actor := loadActor(c, h.users)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var scope *string
	if actor.Role == models.RoleHighSchoolManager {
		if actor.HighSchoolID == nil {
			response.JSON(c, http.StatusOK, []models.StudentRecord{}, nil)
			return
		}
		scope = actor.HighSchoolID
	}
	records, err := h.records.ListAwaitingValidation(c.Request.Context(), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Validate approves a dossier.
func (h *RecordHandler) Validate(c *gin.Context) {
	record, err := h.records.Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Reject turns a dossier down.
func (h *RecordHandler) Reject(c *gin.Context) {
	record, err := h.records.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Duplicates recomputes and returns the dossiers sharing a holder's
// identity.
func (h *RecordHandler) Duplicates(c *gin.Context) {
	ids, err := h.records.RefreshDuplicates(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	response.JSON(c, http.StatusOK, gin.H{"duplicates": ids}, nil)
}

// AttachDocument uploads an attachment on a dossier.
func (h *RecordHandler) AttachDocument(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "missing file"))
		return
	}
	var expiry *time.Time
	if raw := c.PostForm("expiry_date"); raw != "" {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid expiry date"))
			return
		}
		expiry = &d
	}

	src, err := file.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer src.Close()

	doc, err := h.records.AttachDocument(c.Request.Context(), c.Param("id"), c.PostForm("label"), file.Filename, file.Size, src, expiry)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}
