package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/immersup/immersup-api/internal/models"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
)

type slotRepository interface {
	FindByID(ctx context.Context, id string) (*models.Slot, error)
	FindDetailByID(ctx context.Context, id string) (*models.SlotDetail, error)
	List(ctx context.Context, filter models.SlotFilter) ([]models.Slot, int, error)
	Create(ctx context.Context, slot *models.Slot) error
	Update(ctx context.Context, slot *models.Slot) error
	SetPublished(ctx context.Context, id string, published bool) error
	CountActiveRegistrations(ctx context.Context, slotID string) (int, error)
	ListPublishedOn(ctx context.Context, day time.Time) ([]models.Slot, error)
}

type slotCascader interface {
	CancelSlotCascade(ctx context.Context, slotID, cancelCode string) ([]string, error)
	CancelTypeByCode(ctx context.Context, code string) (*models.CancelType, error)
	ListActiveStudentIDsBySlot(ctx context.Context, slotID string) ([]string, error)
}

type courseRefresher interface {
	RefreshCourseSlotDates(ctx context.Context, courseID string) error
}

type slotNotifier interface {
	SlotModified(ctx context.Context, slot *models.Slot, studentIDs []string)
	SlotCancelled(ctx context.Context, slot *models.Slot, studentIDs []string)
	SlotReminder(ctx context.Context, slot *models.Slot, studentIDs []string)
}

type slotSettings interface {
	Int(ctx context.Context, name string, fallback int) int
}

// CreateSlotRequest describes slot creation.
type CreateSlotRequest struct {
	CourseID              string   `json:"course_id" validate:"required"`
	Campus                *string  `json:"campus"`
	Building              *string  `json:"building"`
	Room                  *string  `json:"room"`
	Date                  string   `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime             string   `json:"start_time" validate:"required,datetime=15:04"`
	EndTime               string   `json:"end_time" validate:"required,datetime=15:04"`
	NPlaces               int      `json:"n_places" validate:"required,min=1"`
	AdditionalInformation *string  `json:"additional_information"`
	AllowIndividual       bool     `json:"allow_individual_registrations"`
	AllowGroup            bool     `json:"allow_group_registrations"`
	GroupMode             string   `json:"group_mode" validate:"omitempty,oneof=ONE_GROUP BY_PLACES"`
	PublicGroup           bool     `json:"public_group"`
	AllowedLevels         []string `json:"allowed_highschool_levels" validate:"dive,oneof=SECONDE PREMIERE TERMINALE POST-BAC"`
	CancellationLimit     *int     `json:"cancellation_limit_delay" validate:"omitempty,min=0"`
}

// UpdateSlotRequest describes a slot edit. Nil fields stay untouched.
type UpdateSlotRequest struct {
	Campus                *string  `json:"campus"`
	Building              *string  `json:"building"`
	Room                  *string  `json:"room"`
	Date                  *string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime             *string  `json:"start_time" validate:"omitempty,datetime=15:04"`
	EndTime               *string  `json:"end_time" validate:"omitempty,datetime=15:04"`
	NPlaces               *int     `json:"n_places" validate:"omitempty,min=1"`
	AdditionalInformation *string  `json:"additional_information"`
	AllowIndividual       *bool    `json:"allow_individual_registrations"`
	AllowGroup            *bool    `json:"allow_group_registrations"`
	AllowedLevels         []string `json:"allowed_highschool_levels" validate:"dive,oneof=SECONDE PREMIERE TERMINALE POST-BAC"`
	CancellationLimit     *int     `json:"cancellation_limit_delay" validate:"omitempty,min=0"`
}

// SlotService manages the slot lifecycle: creation, publication, edits
// restricted once registrations exist, and cancellation with cascade.
type SlotService struct {
	repo      slotRepository
	cascader  slotCascader
	courses   courseRefresher
	periods   *PeriodService
	notifier  slotNotifier
	settings  slotSettings
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSlotService constructs SlotService.
func NewSlotService(repo slotRepository, cascader slotCascader, courses courseRefresher, periods *PeriodService, notifier slotNotifier, settings slotSettings, validate *validator.Validate, logger *zap.Logger) *SlotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlotService{repo: repo, cascader: cascader, courses: courses, periods: periods, notifier: notifier, settings: settings, validator: validate, logger: logger}
}

// Create validates the request and persists a slot. The slot must fall
// inside exactly one period.
func (s *SlotService) Create(ctx context.Context, req CreateSlotRequest) (*models.Slot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid slot date")
	}
	if req.StartTime >= req.EndTime {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot must end after it starts")
	}

	slot := &models.Slot{
		CourseID:               req.CourseID,
		Campus:                 req.Campus,
		Building:               req.Building,
		Room:                   req.Room,
		Date:                   date,
		StartTime:              req.StartTime,
		EndTime:                req.EndTime,
		NPlaces:                req.NPlaces,
		AdditionalInformation:  req.AdditionalInformation,
		AllowIndividual:        req.AllowIndividual,
		AllowGroup:             req.AllowGroup,
		GroupMode:              models.GroupMode(req.GroupMode),
		PublicGroup:            req.PublicGroup,
		AllowedLevels:          req.AllowedLevels,
		SavedAllowedLevels:     req.AllowedLevels,
		CancellationLimitHours: req.CancellationLimit,
	}
	if _, err := s.periods.ForSlot(ctx, slot); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create slot")
	}
	if err := s.courses.RefreshCourseSlotDates(ctx, slot.CourseID); err != nil {
		s.logger.Warn("course slot dates refresh failed", zap.String("course_id", slot.CourseID), zap.Error(err))
	}
	return slot, nil
}

// Update edits a slot. Once registrations exist, date, times and the
// individual/group toggles are frozen for everyone but operators. A
// level-set edit snapshots the previous set so registered pupils keep
// their eligibility.
func (s *SlotService) Update(ctx context.Context, id string, req UpdateSlotRequest, actor *models.ImmersionUser) (*models.Slot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	slot, err := s.repo.FindByID(ctx, id)
	if err == sql.ErrNoRows {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}

	registrations, err := s.repo.CountActiveRegistrations(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count registrations")
	}
	touchesFrozen := req.Date != nil || req.StartTime != nil || req.EndTime != nil ||
		req.AllowIndividual != nil || req.AllowGroup != nil
	isOperator := actor.Superuser || actor.Role == models.RoleOperator
	if registrations > 0 && touchesFrozen && !isOperator {
		return nil, appErrors.ErrSlotHasRegistrations
	}

	if req.Date != nil {
		date, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid slot date")
		}
		slot.Date = date
	}
	if req.StartTime != nil {
		slot.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		slot.EndTime = *req.EndTime
	}
	if slot.StartTime >= slot.EndTime {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot must end after it starts")
	}
	if req.Campus != nil {
		slot.Campus = req.Campus
	}
	if req.Building != nil {
		slot.Building = req.Building
	}
	if req.Room != nil {
		slot.Room = req.Room
	}
	if req.NPlaces != nil {
		slot.NPlaces = *req.NPlaces
	}
	if req.AdditionalInformation != nil {
		slot.AdditionalInformation = req.AdditionalInformation
	}
	if req.AllowIndividual != nil {
		slot.AllowIndividual = *req.AllowIndividual
	}
	if req.AllowGroup != nil {
		slot.AllowGroup = *req.AllowGroup
	}
	if req.AllowedLevels != nil {
		// keep the previous set for pupils already registered
		slot.SavedAllowedLevels = slot.AllowedLevels
		slot.AllowedLevels = req.AllowedLevels
	}
	if req.CancellationLimit != nil {
		slot.CancellationLimitHours = req.CancellationLimit
	}

	if _, err := s.periods.ForSlot(ctx, slot); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update slot")
	}
	if err := s.courses.RefreshCourseSlotDates(ctx, slot.CourseID); err != nil {
		s.logger.Warn("course slot dates refresh failed", zap.String("course_id", slot.CourseID), zap.Error(err))
	}
	if registrations > 0 && s.notifier != nil {
		ids, err := s.cascader.ListActiveStudentIDsBySlot(ctx, slot.ID)
		if err != nil {
			s.logger.Error("slot modification: registrant listing failed", zap.String("slot_id", slot.ID), zap.Error(err))
		} else {
			s.notifier.SlotModified(ctx, slot, ids)
		}
	}
	return slot, nil
}

// SetPublished publishes or unpublishes a slot.
func (s *SlotService) SetPublished(ctx context.Context, id string, published bool) error {
	if _, err := s.repo.FindByID(ctx, id); err == sql.ErrNoRows {
		return appErrors.Clone(appErrors.ErrNotFound, "slot not found")
	} else if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}
	if err := s.repo.SetPublished(ctx, id, published); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish slot")
	}
	return nil
}

// Cancel cancels a slot with a reason and cascades to every active
// registration with the same reason. Attendance already recorded on past
// slots is untouched.
func (s *SlotService) Cancel(ctx context.Context, id, cancelCode string) error {
	slot, err := s.repo.FindByID(ctx, id)
	if err == sql.ErrNoRows {
		return appErrors.Clone(appErrors.ErrNotFound, "slot not found")
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}
	if slot.Cancelled {
		return appErrors.Clone(appErrors.ErrConflict, "slot already cancelled")
	}
	if _, err := s.cascader.CancelTypeByCode(ctx, cancelCode); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrValidation, "unknown cancellation reason")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cancellation reason")
	}

	studentIDs, err := s.cascader.CancelSlotCascade(ctx, id, cancelCode)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel slot")
	}
	slot.Cancelled = true
	if s.notifier != nil {
		s.notifier.SlotCancelled(ctx, slot, studentIDs)
	}
	return nil
}

// Get returns a slot with course context and usage counters. The remote
// course URL opens to registrants NB_DAYS_SLOT_REMINDER days before the
// slot; managers see it at any time.
func (s *SlotService) Get(ctx context.Context, id string, actor *models.ImmersionUser) (*models.SlotDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err == sql.ErrNoRows {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}
	if detail.URL != nil && (actor == nil || !actor.IsManager()) {
		days := 4
		if s.settings != nil {
			days = s.settings.Int(ctx, models.SettingNbDaysSlotReminder, days)
		}
		start, err := detail.StartDateTime()
		if err != nil || time.Until(start) > time.Duration(days)*24*time.Hour {
			detail.URL = nil
		}
	}
	return detail, nil
}

// SendReminders mails the active registrants of published slots taking
// place NB_DAYS_SLOT_REMINDER days from now. Returns the number of
// registrants notified.
func (s *SlotService) SendReminders(ctx context.Context, now time.Time) (int, error) {
	days := 4
	if s.settings != nil {
		days = s.settings.Int(ctx, models.SettingNbDaysSlotReminder, days)
	}
	day := now.AddDate(0, 0, days)
	slots, err := s.repo.ListPublishedOn(ctx, day)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slots for reminder")
	}

	notified := 0
	for i := range slots {
		ids, err := s.cascader.ListActiveStudentIDsBySlot(ctx, slots[i].ID)
		if err != nil {
			s.logger.Error("slot reminder: registrant listing failed", zap.String("slot_id", slots[i].ID), zap.Error(err))
			continue
		}
		if len(ids) == 0 {
			continue
		}
		if s.notifier != nil {
			s.notifier.SlotReminder(ctx, &slots[i], ids)
		}
		notified += len(ids)
	}
	return notified, nil
}

// List returns slots with pagination.
func (s *SlotService) List(ctx context.Context, filter models.SlotFilter) ([]models.Slot, *models.Pagination, error) {
	slots, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slots")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 || size > 100 {
		size = 20
	}
	return slots, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
