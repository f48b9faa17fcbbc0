package service

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/immersup/immersup-api/internal/models"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
)

type periodRepository interface {
	FindByID(ctx context.Context, id string) (*models.Period, error)
	List(ctx context.Context) ([]models.Period, error)
	ListForYear(ctx context.Context, year int) ([]models.Period, error)
	ForDate(ctx context.Context, d time.Time) (*models.Period, error)
	Create(ctx context.Context, period *models.Period) error
}

// PeriodService is the temporal gate engine. All window checks are
// boundary inclusive: the exact end instant is still open, one second
// past it is closed.
type PeriodService struct {
	repo   periodRepository
	logger *zap.Logger
}

// NewPeriodService constructs PeriodService.
func NewPeriodService(repo periodRepository, logger *zap.Logger) *PeriodService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodService{repo: repo, logger: logger}
}

// ForSlot resolves the unique period covering the slot's date.
func (s *PeriodService) ForSlot(ctx context.Context, slot *models.Slot) (*models.Period, error) {
	period, err := s.repo.ForDate(ctx, slot.Date)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrNoPeriodForSlot) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve slot period")
	}
	return period, nil
}

// RegistrationOpen reports whether a registration on the slot is inside
// the period's window at instant now.
func (s *PeriodService) RegistrationOpen(period *models.Period, slot *models.Slot, now time.Time) (bool, error) {
	if now.Before(period.RegistrationStartDate) {
		return false, nil
	}
	switch period.RegistrationEndPolicy {
	case models.PolicySlotStart:
		start, err := slot.StartDateTime()
		if err != nil {
			return false, err
		}
		return !now.After(start), nil
	default:
		return !now.After(period.RegistrationEndDate), nil
	}
}

// CancellationCutoff computes the last instant at which a registrant may
// cancel. The slot's own limit overrides the period's when larger.
func (s *PeriodService) CancellationCutoff(period *models.Period, slot *models.Slot) (time.Time, error) {
	start, err := slot.StartDateTime()
	if err != nil {
		return time.Time{}, err
	}
	hours := period.CancellationLimitHours
	if slot.CancellationLimitHours != nil && *slot.CancellationLimitHours > hours {
		hours = *slot.CancellationLimitHours
	}
	return start.Add(-time.Duration(hours) * time.Hour), nil
}

// CancellationOpen reports whether now is at or before the cutoff.
func (s *PeriodService) CancellationOpen(period *models.Period, slot *models.Slot, now time.Time) (bool, error) {
	cutoff, err := s.CancellationCutoff(period, slot)
	if err != nil {
		return false, err
	}
	return !now.After(cutoff), nil
}

// AttendanceEditable reports whether attendance may be entered, which is
// only once the slot has ended.
func (s *PeriodService) AttendanceEditable(slot *models.Slot, now time.Time) (bool, error) {
	end, err := slot.EndDateTime()
	if err != nil {
		return false, err
	}
	return !now.Before(end), nil
}

// List returns every period, or only those overlapping a civil year
// when year is non-zero.
func (s *PeriodService) List(ctx context.Context, year int) ([]models.Period, error) {
	var (
		periods []models.Period
		err     error
	)
	if year > 0 {
		periods, err = s.repo.ListForYear(ctx, year)
	} else {
		periods, err = s.repo.List(ctx)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list periods")
	}
	return periods, nil
}

// Get returns one period.
func (s *PeriodService) Get(ctx context.Context, id string) (*models.Period, error) {
	period, err := s.repo.FindByID(ctx, id)
	if err == sql.ErrNoRows {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "period not found")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load period")
	}
	return period, nil
}

// Create persists a period. Window consistency is checked in the
// repository.
func (s *PeriodService) Create(ctx context.Context, period *models.Period) error {
	if err := s.repo.Create(ctx, period); err != nil {
		if appErr := appErrors.FromError(err); appErr.Code == appErrors.ErrValidation.Code {
			return err
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create period")
	}
	return nil
}
