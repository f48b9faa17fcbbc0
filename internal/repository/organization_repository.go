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

// OrganizationRepository serves the read-mostly organization graph:
// establishments, structures, trainings and courses.
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository constructs the repository.
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// FindEstablishment returns an establishment by primary key.
func (r *OrganizationRepository) FindEstablishment(ctx context.Context, id string) (*models.Establishment, error) {
	const query = `SELECT id, code, label, short_label, address, department, city, zip_code, email,
        active, master, disability_notify, logo_path, signature_path, data_source_plugin, created_at, updated_at
        FROM core_establishment WHERE id = $1`
	var est models.Establishment
	if err := r.db.GetContext(ctx, &est, query, id); err != nil {
		return nil, err
	}
	return &est, nil
}

// ListEstablishments returns every active establishment.
func (r *OrganizationRepository) ListEstablishments(ctx context.Context) ([]models.Establishment, error) {
	const query = `SELECT id, code, label, short_label, address, department, city, zip_code, email,
        active, master, disability_notify, logo_path, signature_path, data_source_plugin, created_at, updated_at
        FROM core_establishment WHERE active = TRUE ORDER BY label`
	var ests []models.Establishment
	if err := r.db.SelectContext(ctx, &ests, query); err != nil {
		return nil, fmt.Errorf("list establishments: %w", err)
	}
	return ests, nil
}

// CreateEstablishment persists a new establishment. City is upper-cased
// in the mapping layer so reads and writes agree.
func (r *OrganizationRepository) CreateEstablishment(ctx context.Context, est *models.Establishment) error {
	if est.ID == "" {
		est.ID = uuid.NewString()
	}
	est.City = strings.ToUpper(est.City)
	now := time.Now().UTC()
	est.CreatedAt = now
	est.UpdatedAt = now
	const query = `INSERT INTO core_establishment
        (id, code, label, short_label, address, department, city, zip_code, email,
         active, master, disability_notify, logo_path, signature_path, data_source_plugin, created_at, updated_at)
        VALUES (:id, :code, :label, :short_label, :address, :department, :city, :zip_code, :email,
         :active, :master, :disability_notify, :logo_path, :signature_path, :data_source_plugin, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, est); err != nil {
		return fmt.Errorf("create establishment: %w", err)
	}
	return nil
}

// FindStructure returns a structure by primary key.
func (r *OrganizationRepository) FindStructure(ctx context.Context, id string) (*models.Structure, error) {
	const query = `SELECT id, code, label, mailing_list, active, establishment_id, created_at
        FROM core_structure WHERE id = $1`
	var structure models.Structure
	if err := r.db.GetContext(ctx, &structure, query, id); err != nil {
		return nil, err
	}
	return &structure, nil
}

// ListStructures returns active structures, optionally scoped to one
// establishment.
func (r *OrganizationRepository) ListStructures(ctx context.Context, establishmentID string) ([]models.Structure, error) {
	query := `SELECT id, code, label, mailing_list, active, establishment_id, created_at
        FROM core_structure WHERE active = TRUE`
	var args []interface{}
	if establishmentID != "" {
		query += " AND establishment_id = $1"
		args = append(args, establishmentID)
	}
	query += " ORDER BY label"
	var structures []models.Structure
	if err := r.db.SelectContext(ctx, &structures, query, args...); err != nil {
		return nil, fmt.Errorf("list structures: %w", err)
	}
	return structures, nil
}

// ListStructuresByIDs returns the active structures among the given IDs.
func (r *OrganizationRepository) ListStructuresByIDs(ctx context.Context, ids []string) ([]models.Structure, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, code, label, mailing_list, active, establishment_id, created_at
        FROM core_structure WHERE active = TRUE AND id IN (?) ORDER BY label`, ids)
	if err != nil {
		return nil, fmt.Errorf("build structures query: %w", err)
	}
	query = r.db.Rebind(query)
	var structures []models.Structure
	if err := r.db.SelectContext(ctx, &structures, query, args...); err != nil {
		return nil, fmt.Errorf("list structures by ids: %w", err)
	}
	return structures, nil
}

// FindCourse returns a course with owner labels.
func (r *OrganizationRepository) FindCourse(ctx context.Context, id string) (*models.CourseDetail, error) {
	const query = `SELECT c.id, c.label, c.training_id, c.structure_id, c.highschool_id, c.published,
        c.first_slot_date, c.last_slot_date, c.created_at,
        t.label AS training_label, s.label AS structure_label, h.label AS highschool_label
        FROM core_course c
        JOIN core_training t ON t.id = c.training_id
        LEFT JOIN core_structure s ON s.id = c.structure_id
        LEFT JOIN core_highschool h ON h.id = c.highschool_id
        WHERE c.id = $1`
	var course models.CourseDetail
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// RefreshCourseSlotDates recomputes the derived first/last slot dates
// from published, non-cancelled slots.
func (r *OrganizationRepository) RefreshCourseSlotDates(ctx context.Context, courseID string) error {
	const query = `UPDATE core_course SET
        first_slot_date = sub.first_date, last_slot_date = sub.last_date
        FROM (SELECT MIN(date) AS first_date, MAX(date) AS last_date
              FROM core_slot WHERE course_id = $1 AND published = TRUE AND cancelled = FALSE) sub
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, courseID); err != nil {
		return fmt.Errorf("refresh course slot dates: %w", err)
	}
	return nil
}
