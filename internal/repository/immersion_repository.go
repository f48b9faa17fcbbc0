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

// ImmersionRepository owns the registration transaction. Every mutation
// that affects slot capacity takes a row-level lock on the slot so that
// place and cancel on the same slot linearize.
type ImmersionRepository struct {
	db *sqlx.DB
}

// NewImmersionRepository constructs the repository.
func NewImmersionRepository(db *sqlx.DB) *ImmersionRepository {
	return &ImmersionRepository{db: db}
}

// RegisterParams carries the precomputed inputs of a placement. The
// period gates and audience checks happen in the registration service;
// capacity, uniqueness and quotas are re-checked here under the lock.
type RegisterParams struct {
	SlotID      string
	StudentID   string
	Year        int
	YearQuota   int
	PeriodQuota int
	PeriodStart time.Time
	PeriodEnd   time.Time
}

type lockedSlot struct {
	ID        string           `db:"id"`
	NPlaces   int              `db:"n_places"`
	GroupMode models.GroupMode `db:"group_mode"`
}

// Register places an individual registration atomically.
func (r *ImmersionRepository) Register(ctx context.Context, p RegisterParams) (*models.Immersion, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin registration tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	slot, err := lockSlot(ctx, tx, p.SlotID)
	if err != nil {
		return nil, err
	}

	const dupQuery = `SELECT 1 FROM core_immersion WHERE slot_id = $1 AND student_id = $2 AND cancellation_type IS NULL LIMIT 1`
	var dup int
	if err := tx.GetContext(ctx, &dup, dupQuery, p.SlotID, p.StudentID); err == nil {
		return nil, appErrors.ErrAlreadyRegistered
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check duplicate registration: %w", err)
	}

	used, err := placesUsed(ctx, tx, slot)
	if err != nil {
		return nil, err
	}
	if used+1 > slot.NPlaces {
		return nil, appErrors.ErrSlotFull
	}

	if p.YearQuota > 0 {
		count, err := countActiveInYear(ctx, tx, p.StudentID, p.Year)
		if err != nil {
			return nil, err
		}
		if count+1 > p.YearQuota {
			return nil, appErrors.ErrQuotaExceeded
		}
	}

	if p.PeriodQuota > 0 {
		count, err := countActiveBetween(ctx, tx, p.StudentID, p.PeriodStart, p.PeriodEnd)
		if err != nil {
			return nil, err
		}
		if count+1 > p.PeriodQuota {
			return nil, appErrors.ErrQuotaExceeded
		}
	}

	immersion := &models.Immersion{
		ID:               uuid.NewString(),
		SlotID:           p.SlotID,
		StudentID:        p.StudentID,
		AttendanceStatus: models.AttendanceNotEntered,
		CreatedAt:        time.Now().UTC(),
	}
	const insert = `INSERT INTO core_immersion (id, slot_id, student_id, attendance_status, cancellation_type, survey_email_sent, created_at)
        VALUES (:id, :slot_id, :student_id, :attendance_status, :cancellation_type, :survey_email_sent, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, immersion); err != nil {
		return nil, fmt.Errorf("insert registration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit registration: %w", err)
	}
	return immersion, nil
}

// RegisterGroup books a cohort on a slot atomically. Under ONE_GROUP a
// single active booking is accepted regardless of capacity; under
// BY_PLACES the cohort consumes places like individuals do.
func (r *ImmersionRepository) RegisterGroup(ctx context.Context, g *models.GroupRegistration) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin group registration tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	slot, err := lockSlot(ctx, tx, g.SlotID)
	if err != nil {
		return err
	}

	switch slot.GroupMode {
	case models.GroupModeOneGroup:
		const existsQuery = `SELECT 1 FROM core_slot_group_registration WHERE slot_id = $1 AND cancellation_type IS NULL LIMIT 1`
		var exists int
		if err := tx.GetContext(ctx, &exists, existsQuery, g.SlotID); err == nil {
			return appErrors.ErrSlotFull
		} else if err != sql.ErrNoRows {
			return fmt.Errorf("check existing group registration: %w", err)
		}
	case models.GroupModeByPlaces:
		used, err := placesUsed(ctx, tx, slot)
		if err != nil {
			return err
		}
		if used+g.Places() > slot.NPlaces {
			return appErrors.ErrSlotFull
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown group mode %q", slot.GroupMode))
	}

	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.CreatedAt = time.Now().UTC()
	const insert = `INSERT INTO core_slot_group_registration (id, slot_id, highschool_id, nb_students, nb_guides, comments, cancellation_type, created_at)
        VALUES (:id, :slot_id, :highschool_id, :nb_students, :nb_guides, :comments, :cancellation_type, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, g); err != nil {
		return fmt.Errorf("insert group registration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit group registration: %w", err)
	}
	return nil
}

// Cancel marks a registration cancelled with the given reason, freeing
// its place. Attendance already entered is preserved.
func (r *ImmersionRepository) Cancel(ctx context.Context, immersionID, cancelCode string) (*models.Immersion, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cancel tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const findQuery = `SELECT id, slot_id, student_id, attendance_status, cancellation_type, survey_email_sent, created_at
        FROM core_immersion WHERE id = $1`
	var immersion models.Immersion
	if err := tx.GetContext(ctx, &immersion, findQuery, immersionID); err != nil {
		return nil, err
	}

	if _, err := lockSlot(ctx, tx, immersion.SlotID); err != nil {
		return nil, err
	}
	if immersion.Cancelled() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration already cancelled")
	}

	const update = `UPDATE core_immersion SET cancellation_type = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, immersionID, cancelCode); err != nil {
		return nil, fmt.Errorf("cancel registration: %w", err)
	}
	immersion.CancellationType = &cancelCode

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}
	return &immersion, nil
}

// CancelSlotCascade cancels every active registration and group booking
// on a slot with a system reason, marking the slot cancelled. It returns
// the affected student IDs for notification.
func (r *ImmersionRepository) CancelSlotCascade(ctx context.Context, slotID, cancelCode string) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cascade tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := lockSlot(ctx, tx, slotID); err != nil {
		return nil, err
	}

	const students = `SELECT student_id FROM core_immersion WHERE slot_id = $1 AND cancellation_type IS NULL`
	var studentIDs []string
	if err := tx.SelectContext(ctx, &studentIDs, students, slotID); err != nil {
		return nil, fmt.Errorf("list active registrations: %w", err)
	}

	const cancelRegs = `UPDATE core_immersion SET cancellation_type = $2 WHERE slot_id = $1 AND cancellation_type IS NULL`
	if _, err := tx.ExecContext(ctx, cancelRegs, slotID, cancelCode); err != nil {
		return nil, fmt.Errorf("cancel slot registrations: %w", err)
	}
	const cancelGroups = `UPDATE core_slot_group_registration SET cancellation_type = $2 WHERE slot_id = $1 AND cancellation_type IS NULL`
	if _, err := tx.ExecContext(ctx, cancelGroups, slotID, cancelCode); err != nil {
		return nil, fmt.Errorf("cancel slot group registrations: %w", err)
	}
	const cancelSlot = `UPDATE core_slot SET cancelled = TRUE, updated_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, cancelSlot, slotID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("mark slot cancelled: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cascade: %w", err)
	}
	return studentIDs, nil
}

// ListActiveStudentIDsBySlot returns the students currently registered
// on a slot.
func (r *ImmersionRepository) ListActiveStudentIDsBySlot(ctx context.Context, slotID string) ([]string, error) {
	const query = `SELECT student_id FROM core_immersion WHERE slot_id = $1 AND cancellation_type IS NULL`
	var studentIDs []string
	if err := r.db.SelectContext(ctx, &studentIDs, query, slotID); err != nil {
		return nil, fmt.Errorf("list active registrations: %w", err)
	}
	return studentIDs, nil
}

// CancelFutureForStudent cancels the student's active registrations on
// slots that have not started yet, with a system reason. Used when a
// record leaves the Validated state.
func (r *ImmersionRepository) CancelFutureForStudent(ctx context.Context, studentID, cancelCode string, now time.Time) ([]models.Immersion, error) {
	const query = `UPDATE core_immersion i SET cancellation_type = $2
        FROM core_slot s
        WHERE i.slot_id = s.id AND i.student_id = $1 AND i.cancellation_type IS NULL AND s.date >= $3
        RETURNING i.id, i.slot_id, i.student_id, i.attendance_status, i.cancellation_type, i.survey_email_sent, i.created_at`
	var cancelled []models.Immersion
	if err := r.db.SelectContext(ctx, &cancelled, query, studentID, cancelCode, now.Truncate(24*time.Hour)); err != nil {
		return nil, fmt.Errorf("cancel future registrations: %w", err)
	}
	return cancelled, nil
}

// FindByID returns a registration by primary key.
func (r *ImmersionRepository) FindByID(ctx context.Context, id string) (*models.Immersion, error) {
	const query = `SELECT id, slot_id, student_id, attendance_status, cancellation_type, survey_email_sent, created_at
        FROM core_immersion WHERE id = $1`
	var immersion models.Immersion
	if err := r.db.GetContext(ctx, &immersion, query, id); err != nil {
		return nil, err
	}
	return &immersion, nil
}

// FindActiveBySlotAndStudent returns the active registration of a
// student on a slot, if any.
func (r *ImmersionRepository) FindActiveBySlotAndStudent(ctx context.Context, slotID, studentID string) (*models.Immersion, error) {
	const query = `SELECT id, slot_id, student_id, attendance_status, cancellation_type, survey_email_sent, created_at
        FROM core_immersion WHERE slot_id = $1 AND student_id = $2 AND cancellation_type IS NULL`
	var immersion models.Immersion
	if err := r.db.GetContext(ctx, &immersion, query, slotID, studentID); err != nil {
		return nil, err
	}
	return &immersion, nil
}

// ListByStudent returns a student's registrations with slot context.
func (r *ImmersionRepository) ListByStudent(ctx context.Context, studentID string) ([]models.ImmersionDetail, error) {
	const query = `SELECT i.id, i.slot_id, i.student_id, i.attendance_status, i.cancellation_type,
        i.survey_email_sent, i.created_at,
        s.date AS slot_date, s.start_time AS slot_start, s.end_time AS slot_end,
        c.label AS course_label,
        u.first_name || ' ' || u.last_name AS student_name
        FROM core_immersion i
        JOIN core_slot s ON s.id = i.slot_id
        JOIN core_course c ON c.id = s.course_id
        JOIN core_immersionuser u ON u.id = i.student_id
        WHERE i.student_id = $1
        ORDER BY s.date DESC, s.start_time DESC`
	var details []models.ImmersionDetail
	if err := r.db.SelectContext(ctx, &details, query, studentID); err != nil {
		return nil, fmt.Errorf("list student registrations: %w", err)
	}
	return details, nil
}

// ListAttendedByStudent returns a student's present registrations on
// past slots, for the attendance certificate.
func (r *ImmersionRepository) ListAttendedByStudent(ctx context.Context, studentID string) ([]models.ImmersionDetail, error) {
	const query = `SELECT i.id, i.slot_id, i.student_id, i.attendance_status, i.cancellation_type,
        i.survey_email_sent, i.created_at,
        s.date AS slot_date, s.start_time AS slot_start, s.end_time AS slot_end,
        c.label AS course_label,
        u.first_name || ' ' || u.last_name AS student_name
        FROM core_immersion i
        JOIN core_slot s ON s.id = i.slot_id
        JOIN core_course c ON c.id = s.course_id
        JOIN core_immersionuser u ON u.id = i.student_id
        WHERE i.student_id = $1 AND i.attendance_status = $2
        ORDER BY s.date, s.start_time`
	var details []models.ImmersionDetail
	if err := r.db.SelectContext(ctx, &details, query, studentID, models.AttendancePresent); err != nil {
		return nil, fmt.Errorf("list attended registrations: %w", err)
	}
	return details, nil
}

// SetAttendance records presence or absence. Idempotent.
func (r *ImmersionRepository) SetAttendance(ctx context.Context, immersionID string, status models.AttendanceStatus) error {
	const query = `UPDATE core_immersion SET attendance_status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, immersionID, status); err != nil {
		return fmt.Errorf("set attendance: %w", err)
	}
	return nil
}

// CancelTypeByCode returns an active cancellation reason.
func (r *ImmersionRepository) CancelTypeByCode(ctx context.Context, code string) (*models.CancelType, error) {
	const query = `SELECT id, code, label, system, active FROM core_cancel_type WHERE code = $1 AND active = TRUE`
	var ct models.CancelType
	if err := r.db.GetContext(ctx, &ct, query, code); err != nil {
		return nil, err
	}
	return &ct, nil
}

type queryer interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func lockSlot(ctx context.Context, tx *sqlx.Tx, slotID string) (*lockedSlot, error) {
	const query = `SELECT id, n_places, group_mode FROM core_slot WHERE id = $1 FOR UPDATE`
	var slot lockedSlot
	if err := tx.GetContext(ctx, &slot, query, slotID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, fmt.Errorf("lock slot: %w", err)
	}
	return &slot, nil
}

func placesUsed(ctx context.Context, tx *sqlx.Tx, slot *lockedSlot) (int, error) {
	const individuals = `SELECT COUNT(*) FROM core_immersion WHERE slot_id = $1 AND cancellation_type IS NULL`
	var used int
	if err := tx.GetContext(ctx, &used, individuals, slot.ID); err != nil {
		return 0, fmt.Errorf("count individual places: %w", err)
	}
	if slot.GroupMode == models.GroupModeByPlaces {
		const groups = `SELECT COALESCE(SUM(GREATEST(nb_students + nb_guides, 1)), 0)
            FROM core_slot_group_registration WHERE slot_id = $1 AND cancellation_type IS NULL`
		var groupPlaces int
		if err := tx.GetContext(ctx, &groupPlaces, groups, slot.ID); err != nil {
			return 0, fmt.Errorf("count group places: %w", err)
		}
		used += groupPlaces
	}
	return used, nil
}

func countActiveBetween(ctx context.Context, q queryer, studentID string, from, to time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM core_immersion i
        JOIN core_slot s ON s.id = i.slot_id
        WHERE i.student_id = $1 AND i.cancellation_type IS NULL
        AND s.date BETWEEN $2 AND $3`
	var count int
	if err := q.GetContext(ctx, &count, query, studentID, from, to); err != nil {
		return 0, fmt.Errorf("count registrations in period: %w", err)
	}
	return count, nil
}

func countActiveInYear(ctx context.Context, q queryer, studentID string, year int) (int, error) {
	const query = `SELECT COUNT(*) FROM core_immersion i
        JOIN core_slot s ON s.id = i.slot_id
        WHERE i.student_id = $1 AND i.cancellation_type IS NULL
        AND EXTRACT(YEAR FROM s.date) = $2`
	var count int
	if err := q.GetContext(ctx, &count, query, studentID, year); err != nil {
		return 0, fmt.Errorf("count registrations in year: %w", err)
	}
	return count, nil
}
