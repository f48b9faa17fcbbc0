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

const highSchoolColumns = `id, label, country, address, department, city, zip_code, email, head_teacher_name,
    with_convention, convention_start_date, convention_end_date, allow_individual_immersions,
    postbac_immersion, mailing_list, logo_path, signature_path, active, created_at`

// HighSchoolRepository handles persistence of high schools.
type HighSchoolRepository struct {
	db *sqlx.DB
}

// NewHighSchoolRepository constructs the repository.
func NewHighSchoolRepository(db *sqlx.DB) *HighSchoolRepository {
	return &HighSchoolRepository{db: db}
}

// FindByID returns a high school by primary key.
func (r *HighSchoolRepository) FindByID(ctx context.Context, id string) (*models.HighSchool, error) {
	query := fmt.Sprintf(`SELECT %s FROM core_highschool WHERE id = $1`, highSchoolColumns)
	var school models.HighSchool
	if err := r.db.GetContext(ctx, &school, query, id); err != nil {
		return nil, err
	}
	return &school, nil
}

// ListActive returns all active high schools. The agreed predicate is
// applied by the organization service from live settings.
func (r *HighSchoolRepository) ListActive(ctx context.Context) ([]models.HighSchool, error) {
	query := fmt.Sprintf(`SELECT %s FROM core_highschool WHERE active = TRUE ORDER BY city, label`, highSchoolColumns)
	var schools []models.HighSchool
	if err := r.db.SelectContext(ctx, &schools, query); err != nil {
		return nil, fmt.Errorf("list active high schools: %w", err)
	}
	return schools, nil
}

// ListPostbac returns active schools offering post-bachelor immersions.
func (r *HighSchoolRepository) ListPostbac(ctx context.Context) ([]models.HighSchool, error) {
	query := fmt.Sprintf(`SELECT %s FROM core_highschool WHERE active = TRUE AND postbac_immersion = TRUE ORDER BY city, label`, highSchoolColumns)
	var schools []models.HighSchool
	if err := r.db.SelectContext(ctx, &schools, query); err != nil {
		return nil, fmt.Errorf("list postbac high schools: %w", err)
	}
	return schools, nil
}

// List returns high schools matching the filter with a total count.
func (r *HighSchoolRepository) List(ctx context.Context, filter models.HighSchoolFilter) ([]models.HighSchool, int, error) {
	base := `FROM core_highschool`
	var conditions []string
	var args []interface{}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(label ILIKE $%d OR city ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
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

	query := fmt.Sprintf(`SELECT %s %s ORDER BY city, label LIMIT %d OFFSET %d`,
		highSchoolColumns, base+clause, size, offset)
	var schools []models.HighSchool
	if err := r.db.SelectContext(ctx, &schools, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list high schools: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count high schools: %w", err)
	}
	return schools, total, nil
}

// Create persists a new high school. City is upper-cased so reads and
// writes agree on the normalized form.
func (r *HighSchoolRepository) Create(ctx context.Context, school *models.HighSchool) error {
	if school.ID == "" {
		school.ID = uuid.NewString()
	}
	school.City = strings.ToUpper(school.City)
	school.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO core_highschool
        (id, label, country, address, department, city, zip_code, email, head_teacher_name,
         with_convention, convention_start_date, convention_end_date, allow_individual_immersions,
         postbac_immersion, mailing_list, logo_path, signature_path, active, created_at)
        VALUES (:id, :label, :country, :address, :department, :city, :zip_code, :email, :head_teacher_name,
         :with_convention, :convention_start_date, :convention_end_date, :allow_individual_immersions,
         :postbac_immersion, :mailing_list, :logo_path, :signature_path, :active, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, school); err != nil {
		return fmt.Errorf("create high school: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of a high school.
func (r *HighSchoolRepository) Update(ctx context.Context, school *models.HighSchool) error {
	school.City = strings.ToUpper(school.City)
	const query = `UPDATE core_highschool SET label = :label, country = :country, address = :address,
        department = :department, city = :city, zip_code = :zip_code, email = :email,
        head_teacher_name = :head_teacher_name, with_convention = :with_convention,
        convention_start_date = :convention_start_date, convention_end_date = :convention_end_date,
        allow_individual_immersions = :allow_individual_immersions, postbac_immersion = :postbac_immersion,
        mailing_list = :mailing_list, active = :active
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, school); err != nil {
		return fmt.Errorf("update high school: %w", err)
	}
	return nil
}
