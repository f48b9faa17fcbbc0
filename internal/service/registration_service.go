package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/repository"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
)

type immersionRepository interface {
	Register(ctx context.Context, p repository.RegisterParams) (*models.Immersion, error)
	RegisterGroup(ctx context.Context, g *models.GroupRegistration) error
	Cancel(ctx context.Context, immersionID, cancelCode string) (*models.Immersion, error)
	FindByID(ctx context.Context, id string) (*models.Immersion, error)
	FindActiveBySlotAndStudent(ctx context.Context, slotID, studentID string) (*models.Immersion, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.ImmersionDetail, error)
	SetAttendance(ctx context.Context, immersionID string, status models.AttendanceStatus) error
	CancelTypeByCode(ctx context.Context, code string) (*models.CancelType, error)
}

type slotReader interface {
	FindByID(ctx context.Context, id string) (*models.Slot, error)
}

type recordReader interface {
	FindByUser(ctx context.Context, userID string) (*models.StudentRecord, error)
}

type schoolReader interface {
	FindByID(ctx context.Context, id string) (*models.HighSchool, error)
}

type agreementChecker interface {
	IsAgreed(ctx context.Context, schoolID string) (bool, error)
}

type registrationNotifier interface {
	RegistrationConfirmed(ctx context.Context, immersion *models.Immersion, slot *models.Slot)
	RegistrationCancelled(ctx context.Context, immersion *models.Immersion, slot *models.Slot)
}

// GroupRegistrationRequest describes a cohort booking.
type GroupRegistrationRequest struct {
	SlotID       string `json:"slot_id" validate:"required"`
	HighSchoolID string `json:"highschool_id" validate:"required"`
	NbStudents   int    `json:"nb_students" validate:"required,min=1"`
	NbGuides     int    `json:"nb_guides" validate:"min=0"`
	Comments     string `json:"comments"`
}

// RegistrationService is the registration engine. Place runs the full
// gate sequence, then commits atomically through the slot-locked
// repository transaction.
type RegistrationService struct {
	repo      immersionRepository
	slots     slotReader
	records   recordReader
	schools   schoolReader
	agreement agreementChecker
	periods   *PeriodService
	notifier  registrationNotifier
	now       func() time.Time
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRegistrationService constructs RegistrationService.
func NewRegistrationService(repo immersionRepository, slots slotReader, records recordReader, schools schoolReader, agreement agreementChecker, periods *PeriodService, notifier registrationNotifier, validate *validator.Validate, logger *zap.Logger) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		repo:      repo,
		slots:     slots,
		records:   records,
		schools:   schools,
		agreement: agreement,
		periods:   periods,
		notifier:  notifier,
		now:       time.Now,
		validator: validate,
		logger:    logger,
	}
}

func isOperator(u *models.ImmersionUser) bool {
	return u.Superuser || u.Role == models.RoleOperator
}

// Place registers registrant on the slot. The actor is either the
// registrant or a manager acting for them.
func (s *RegistrationService) Place(ctx context.Context, slotID string, registrant, actor *models.ImmersionUser) (*models.Immersion, error) {
	if actor.ID != registrant.ID && !actor.IsManager() {
		return nil, appErrors.ErrAuthorizationDenied
	}

	slot, err := s.loadSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if !slot.Published || slot.Cancelled {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "slot is not open for registration")
	}
	if !slot.AllowIndividual {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot does not accept individual registrations")
	}

	if registrant.Role == models.RolePupil {
		if err := s.checkPupil(ctx, registrant, slot); err != nil {
			return nil, err
		}
	}

	if existing, err := s.repo.FindActiveBySlotAndStudent(ctx, slotID, registrant.ID); err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing registration")
	} else if existing != nil {
		return nil, appErrors.ErrAlreadyRegistered
	}

	period, err := s.periods.ForSlot(ctx, slot)
	if err != nil {
		return nil, err
	}
	open, err := s.periods.RegistrationOpen(period, slot, s.now())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate registration window")
	}
	if !open {
		return nil, appErrors.ErrRegistrationWindowClosed
	}

	immersion, err := s.repo.Register(ctx, repository.RegisterParams{
		SlotID:      slotID,
		StudentID:   registrant.ID,
		Year:        slot.Date.Year(),
		YearQuota:   period.YearQuota,
		PeriodQuota: period.EarlyRegistrationSlots,
		PeriodStart: period.ImmersionStartDate,
		PeriodEnd:   period.ImmersionEndDate,
	})
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to place registration")
	}

	if s.notifier != nil {
		s.notifier.RegistrationConfirmed(ctx, immersion, slot)
	}
	return immersion, nil
}

// checkPupil verifies the record and school gates specific to pupils.
func (s *RegistrationService) checkPupil(ctx context.Context, pupil *models.ImmersionUser, slot *models.Slot) error {
	record, err := s.records.FindByUser(ctx, pupil.ID)
	if err == sql.ErrNoRows {
		return appErrors.ErrRecordNotValidated
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	if !record.IsValid() {
		return appErrors.ErrRecordNotValidated
	}
	if !slot.LevelAllowed(record.Level) {
		return appErrors.ErrLevelNotAllowed
	}
	if record.HighSchoolID == nil {
		return appErrors.ErrHighSchoolNotAgreed
	}
	agreed, err := s.agreement.IsAgreed(ctx, *record.HighSchoolID)
	if err != nil {
		return err
	}
	if agreed {
		return nil
	}
	school, err := s.schools.FindByID(ctx, *record.HighSchoolID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load high school")
	}
	if !school.AllowIndividualImmersions {
		return appErrors.ErrHighSchoolNotAgreed
	}
	return nil
}

// Cancel cancels a registration. Past the cutoff only operators may
// cancel.
func (s *RegistrationService) Cancel(ctx context.Context, immersionID, cancelCode string, actor *models.ImmersionUser) (*models.Immersion, error) {
	immersion, err := s.repo.FindByID(ctx, immersionID)
	if err == sql.ErrNoRows {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	if actor.ID != immersion.StudentID && !actor.IsManager() {
		return nil, appErrors.ErrAuthorizationDenied
	}
	if _, err := s.repo.CancelTypeByCode(ctx, cancelCode); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown cancellation reason")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cancellation reason")
	}

	slot, err := s.loadSlot(ctx, immersion.SlotID)
	if err != nil {
		return nil, err
	}
	if !isOperator(actor) {
		period, err := s.periods.ForSlot(ctx, slot)
		if err != nil {
			return nil, err
		}
		open, err := s.periods.CancellationOpen(period, slot, s.now())
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate cancellation window")
		}
		if !open {
			return nil, appErrors.ErrCancellationWindowClosed
		}
	}

	cancelled, err := s.repo.Cancel(ctx, immersionID, cancelCode)
	if err != nil {
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel registration")
	}
	if s.notifier != nil {
		s.notifier.RegistrationCancelled(ctx, cancelled, slot)
	}
	return cancelled, nil
}

// Move transfers a registration to another slot as cancel-then-place.
// The target is placed first so the source registration survives any
// target gate failure.
func (s *RegistrationService) Move(ctx context.Context, immersionID, targetSlotID, cancelCode string, registrant, actor *models.ImmersionUser) (*models.Immersion, error) {
	source, err := s.repo.FindByID(ctx, immersionID)
	if err == sql.ErrNoRows {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	if source.StudentID != registrant.ID {
		return nil, appErrors.ErrAuthorizationDenied
	}

	placed, err := s.Place(ctx, targetSlotID, registrant, actor)
	if err != nil {
		return nil, err
	}
	if _, err := s.Cancel(ctx, immersionID, cancelCode, actor); err != nil {
		// roll the move back so the user does not hold both slots
		if _, rbErr := s.repo.Cancel(ctx, placed.ID, cancelCode); rbErr != nil {
			s.logger.Error("move rollback failed", zap.String("immersion_id", placed.ID), zap.Error(rbErr))
		}
		return nil, err
	}
	return placed, nil
}

// MarkAttendance records presence once the slot has ended. Changing an
// already entered status is reserved to managers.
func (s *RegistrationService) MarkAttendance(ctx context.Context, immersionID string, status models.AttendanceStatus, actor *models.ImmersionUser) error {
	if status != models.AttendancePresent && status != models.AttendanceAbsent {
		return appErrors.Clone(appErrors.ErrValidation, "attendance must be present or absent")
	}
	immersion, err := s.repo.FindByID(ctx, immersionID)
	if err == sql.ErrNoRows {
		return appErrors.Clone(appErrors.ErrNotFound, "registration not found")
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	slot, err := s.loadSlot(ctx, immersion.SlotID)
	if err != nil {
		return err
	}
	editable, err := s.periods.AttendanceEditable(slot, s.now())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate attendance window")
	}
	if !editable {
		return appErrors.Clone(appErrors.ErrValidation, "attendance opens once the slot has ended")
	}
	if immersion.AttendanceStatus == status {
		return nil
	}
	if immersion.AttendanceStatus != models.AttendanceNotEntered && !actor.IsManager() {
		return appErrors.ErrAuthorizationDenied
	}
	if err := s.repo.SetAttendance(ctx, immersionID, status); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set attendance")
	}
	return nil
}

// PlaceGroup books a cohort on a slot.
func (s *RegistrationService) PlaceGroup(ctx context.Context, req GroupRegistrationRequest, actor *models.ImmersionUser) (*models.GroupRegistration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if !actor.IsManager() {
		return nil, appErrors.ErrAuthorizationDenied
	}

	slot, err := s.loadSlot(ctx, req.SlotID)
	if err != nil {
		return nil, err
	}
	if !slot.Published || slot.Cancelled {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "slot is not open for registration")
	}
	if !slot.AllowGroup {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot does not accept group registrations")
	}

	period, err := s.periods.ForSlot(ctx, slot)
	if err != nil {
		return nil, err
	}
	open, err := s.periods.RegistrationOpen(period, slot, s.now())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to evaluate registration window")
	}
	if !open {
		return nil, appErrors.ErrRegistrationWindowClosed
	}

	group := &models.GroupRegistration{
		SlotID:       req.SlotID,
		HighSchoolID: req.HighSchoolID,
		NbStudents:   req.NbStudents,
		NbGuides:     req.NbGuides,
		Comments:     req.Comments,
	}
	if err := s.repo.RegisterGroup(ctx, group); err != nil {
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrInternal.Code {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to place group registration")
	}
	return group, nil
}

// ListForStudent returns the student's registrations with slot context.
func (s *RegistrationService) ListForStudent(ctx context.Context, studentID string, actor *models.ImmersionUser) ([]models.ImmersionDetail, error) {
	if actor.ID != studentID && !actor.IsManager() {
		return nil, appErrors.ErrAuthorizationDenied
	}
	details, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	return details, nil
}

func (s *RegistrationService) loadSlot(ctx context.Context, slotID string) (*models.Slot, error) {
	slot, err := s.slots.FindByID(ctx, slotID)
	if err == sql.ErrNoRows {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}
	return slot, nil
}
