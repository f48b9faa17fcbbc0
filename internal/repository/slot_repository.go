package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/immersup/immersup-api/internal/models"
)

const slotColumns = `id, course_id, campus, building, room, date, start_time, end_time, n_places,
    additional_information, url, published, cancelled, allow_individual_registrations,
    allow_group_registrations, group_mode, public_group, allowed_highschool_levels,
    saved_allowed_highschool_levels, cancellation_limit_delay, created_at, updated_at`

// SlotRepository handles persistence of slots.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository constructs the repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// FindByID returns a slot by primary key.
func (r *SlotRepository) FindByID(ctx context.Context, id string) (*models.Slot, error) {
	query := fmt.Sprintf(`SELECT %s FROM core_slot WHERE id = $1`, slotColumns)
	var slot models.Slot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// FindDetailByID returns a slot with course context and usage counters.
func (r *SlotRepository) FindDetailByID(ctx context.Context, id string) (*models.SlotDetail, error) {
	const query = `SELECT s.id, s.course_id, s.campus, s.building, s.room, s.date, s.start_time, s.end_time,
        s.n_places, s.additional_information, s.url, s.published, s.cancelled,
        s.allow_individual_registrations, s.allow_group_registrations, s.group_mode, s.public_group,
        s.allowed_highschool_levels, s.saved_allowed_highschool_levels, s.cancellation_limit_delay,
        s.created_at, s.updated_at,
        c.label AS course_label, t.label AS training_label,
        (SELECT COUNT(*) FROM core_immersion i WHERE i.slot_id = s.id AND i.cancellation_type IS NULL)
        + COALESCE((SELECT SUM(GREATEST(g.nb_students + g.nb_guides, 1)) FROM core_slot_group_registration g
            WHERE g.slot_id = s.id AND g.cancellation_type IS NULL AND s.group_mode = 'BY_PLACES'), 0)
        AS places_used
        FROM core_slot s
        JOIN core_course c ON c.id = s.course_id
        JOIN core_training t ON t.id = c.training_id
        WHERE s.id = $1`
	var detail models.SlotDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListPublishedOn returns the published, non-cancelled slots taking
// place on a given day.
func (r *SlotRepository) ListPublishedOn(ctx context.Context, day time.Time) ([]models.Slot, error) {
	query := fmt.Sprintf(`SELECT %s FROM core_slot
        WHERE published = TRUE AND cancelled = FALSE AND date = $1::date
        ORDER BY start_time`, slotColumns)
	var slots []models.Slot
	if err := r.db.SelectContext(ctx, &slots, query, day); err != nil {
		return nil, fmt.Errorf("list slots for day: %w", err)
	}
	return slots, nil
}

// List returns slots matching the filter with a total count.
func (r *SlotRepository) List(ctx context.Context, filter models.SlotFilter) ([]models.Slot, int, error) {
	base := `FROM core_slot`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Published != nil {
		conditions = append(conditions, fmt.Sprintf("published = $%d", len(args)+1))
		args = append(args, *filter.Published)
	}
	if filter.Cancelled != nil {
		conditions = append(conditions, fmt.Sprintf("cancelled = $%d", len(args)+1))
		args = append(args, *filter.Cancelled)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY date, start_time LIMIT %d OFFSET %d`,
		slotColumns, base+clause, size, offset)
	var slots []models.Slot
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list slots: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count slots: %w", err)
	}
	return slots, total, nil
}

// Create persists a new slot.
func (r *SlotRepository) Create(ctx context.Context, slot *models.Slot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if slot.GroupMode == "" {
		slot.GroupMode = models.GroupModeOneGroup
	}
	now := time.Now().UTC()
	slot.CreatedAt = now
	slot.UpdatedAt = now
	const query = `INSERT INTO core_slot
        (id, course_id, campus, building, room, date, start_time, end_time, n_places,
         additional_information, url, published, cancelled, allow_individual_registrations,
         allow_group_registrations, group_mode, public_group, allowed_highschool_levels,
         saved_allowed_highschool_levels, cancellation_limit_delay, created_at, updated_at)
        VALUES (:id, :course_id, :campus, :building, :room, :date, :start_time, :end_time, :n_places,
         :additional_information, :url, :published, :cancelled, :allow_individual_registrations,
         :allow_group_registrations, :group_mode, :public_group, :allowed_highschool_levels,
         :saved_allowed_highschool_levels, :cancellation_limit_delay, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create slot: %w", err)
	}
	return nil
}

// Update rewrites a slot's mutable fields. Edit restrictions on slots
// holding registrations are enforced by the slot service.
func (r *SlotRepository) Update(ctx context.Context, slot *models.Slot) error {
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE core_slot SET campus = :campus, building = :building, room = :room,
        date = :date, start_time = :start_time, end_time = :end_time, n_places = :n_places,
        additional_information = :additional_information, url = :url, published = :published,
        allow_individual_registrations = :allow_individual_registrations,
        allow_group_registrations = :allow_group_registrations, group_mode = :group_mode,
        public_group = :public_group, allowed_highschool_levels = :allowed_highschool_levels,
        saved_allowed_highschool_levels = :saved_allowed_highschool_levels,
        cancellation_limit_delay = :cancellation_limit_delay, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("update slot: %w", err)
	}
	return nil
}

// SetPublished toggles slot visibility.
func (r *SlotRepository) SetPublished(ctx context.Context, id string, published bool) error {
	const query = `UPDATE core_slot SET published = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, published, time.Now().UTC()); err != nil {
		return fmt.Errorf("set slot published: %w", err)
	}
	return nil
}

// CountActiveRegistrations returns the number of non-cancelled
// individual registrations on a slot.
func (r *SlotRepository) CountActiveRegistrations(ctx context.Context, slotID string) (int, error) {
	const query = `SELECT COUNT(*) FROM core_immersion WHERE slot_id = $1 AND cancellation_type IS NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query, slotID); err != nil {
		return 0, fmt.Errorf("count slot registrations: %w", err)
	}
	return count, nil
}
