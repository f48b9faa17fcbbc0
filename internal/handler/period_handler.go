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

// PeriodHandler exposes the registration calendar.
type PeriodHandler struct {
	periods *service.PeriodService
}

// NewPeriodHandler constructs PeriodHandler.
func NewPeriodHandler(periods *service.PeriodService) *PeriodHandler {
	return &PeriodHandler{periods: periods}
}

// List returns periods, filtered to a civil year when ?year is given.
func (h *PeriodHandler) List(c *gin.Context) {
	year := 0
	if q := c.Query("year"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "year must be an integer"))
			return
		}
		year = v
	}
	periods, err := h.periods.List(c.Request.Context(), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, periods, nil)
}

// Get returns one period.
func (h *PeriodHandler) Get(c *gin.Context) {
	period, err := h.periods.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}

type createPeriodRequest struct {
	Label                  string    `json:"label" binding:"required"`
	RegistrationStartDate  time.Time `json:"registration_start_date" binding:"required"`
	RegistrationEndDate    time.Time `json:"registration_end_date" binding:"required"`
	ImmersionStartDate     time.Time `json:"immersion_start_date" binding:"required"`
	ImmersionEndDate       time.Time `json:"immersion_end_date" binding:"required"`
	CancellationLimitHours int       `json:"cancellation_limit_delay"`
	RegistrationEndPolicy  string    `json:"registration_end_date_policy"`
	YearQuota              int       `json:"year_nb_authorized_immersion"`
	EarlyRegistrationSlots int       `json:"registration_start_date_per_semester"`
}

// Create adds a period to the calendar.
func (h *PeriodHandler) Create(c *gin.Context) {
	var req createPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	policy := models.RegistrationEndPolicy(req.RegistrationEndPolicy)
	if policy == "" {
		policy = models.PolicyPeriodEnd
	}
	if policy != models.PolicyPeriodEnd && policy != models.PolicySlotStart {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown registration end date policy"))
		return
	}
	period := &models.Period{
		Label:                  req.Label,
		RegistrationStartDate:  req.RegistrationStartDate,
		RegistrationEndDate:    req.RegistrationEndDate,
		ImmersionStartDate:     req.ImmersionStartDate,
		ImmersionEndDate:       req.ImmersionEndDate,
		CancellationLimitHours: req.CancellationLimitHours,
		RegistrationEndPolicy:  policy,
		YearQuota:              req.YearQuota,
		EarlyRegistrationSlots: req.EarlyRegistrationSlots,
	}
	if err := h.periods.Create(c.Request.Context(), period); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, period)
}
