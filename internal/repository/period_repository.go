package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/immersup/immersup-api/internal/models"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
)

const periodColumns = `id, label, registration_start_date, registration_end_date, immersion_start_date,
    immersion_end_date, cancellation_limit_delay, registration_end_date_policy,
    year_nb_authorized_immersion, registration_start_date_per_semester, created_at`

// PeriodRepository handles persistence of registration periods.
type PeriodRepository struct {
	db *sqlx.DB
}

// NewPeriodRepository constructs the repository.
func NewPeriodRepository(db *sqlx.DB) *PeriodRepository {
	return &PeriodRepository{db: db}
}

// FindByID returns a period by primary key.
func (r *PeriodRepository) FindByID(ctx context.Context, id string) (*models.Period, error) {
	query := fmt.Sprintf(`SELECT %s FROM core_period WHERE id = $1`, periodColumns)
	var period models.Period
	if err := r.db.GetContext(ctx, &period, query, id); err != nil {
		return nil, err
	}
	return &period, nil
}

// List returns all periods ordered by immersion start.
func (r *PeriodRepository) List(ctx context.Context) ([]models.Period, error) {
	query := fmt.Sprintf(`SELECT %s FROM core_period ORDER BY immersion_start_date`, periodColumns)
	var periods []models.Period
	if err := r.db.SelectContext(ctx, &periods, query); err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	return periods, nil
}

// ForDate returns the unique period whose immersion window covers d.
func (r *PeriodRepository) ForDate(ctx context.Context, d time.Time) (*models.Period, error) {
	query := fmt.Sprintf(`SELECT %s FROM core_period
        WHERE immersion_start_date <= $1 AND immersion_end_date >= $1`, periodColumns)
	var period models.Period
	if err := r.db.GetContext(ctx, &period, query, d); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.ErrNoPeriodForSlot
		}
		return nil, fmt.Errorf("find period for date: %w", err)
	}
	return &period, nil
}

// ListForYear returns the periods overlapping a civil year.
func (r *PeriodRepository) ListForYear(ctx context.Context, year int) ([]models.Period, error) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)
	query := fmt.Sprintf(`SELECT %s FROM core_period
        WHERE immersion_start_date <= $2 AND immersion_end_date >= $1 ORDER BY immersion_start_date`, periodColumns)
	var periods []models.Period
	if err := r.db.SelectContext(ctx, &periods, query, start, end); err != nil {
		return nil, fmt.Errorf("list periods for year: %w", err)
	}
	return periods, nil
}

// Create persists a new period. The registration window must close
// before immersions start.
func (r *PeriodRepository) Create(ctx context.Context, period *models.Period) error {
	if period.RegistrationEndDate.After(period.ImmersionStartDate) {
		return appErrors.Clone(appErrors.ErrValidation, "registration end date must not be after immersion start date")
	}
	if period.ID == "" {
		period.ID = uuid.NewString()
	}
	period.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO core_period
        (id, label, registration_start_date, registration_end_date, immersion_start_date, immersion_end_date,
         cancellation_limit_delay, registration_end_date_policy, year_nb_authorized_immersion,
         registration_start_date_per_semester, created_at)
        VALUES (:id, :label, :registration_start_date, :registration_end_date, :immersion_start_date,
         :immersion_end_date, :cancellation_limit_delay, :registration_end_date_policy,
         :year_nb_authorized_immersion, :registration_start_date_per_semester, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, period); err != nil {
		return fmt.Errorf("create period: %w", err)
	}
	return nil
}
