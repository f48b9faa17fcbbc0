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

const recordColumns = `id, kind, user_id, highschool_id, birth_date, phone, level, class_name,
    bachelor_type, bachelor_mention, validation, validation_date, rejected_date, duplicates,
    disclosure_agreed, version, created_at, updated_at`

// RecordRepository persists pupil and visitor dossiers.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository constructs the repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// FindByID returns a record by primary key.
func (r *RecordRepository) FindByID(ctx context.Context, id string) (*models.StudentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM core_record WHERE id = $1`
	var record models.StudentRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByUser returns the record attached to a user account.
func (r *RecordRepository) FindByUser(ctx context.Context, userID string) (*models.StudentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM core_record WHERE user_id = $1`
	var record models.StudentRecord
	if err := r.db.GetContext(ctx, &record, query, userID); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByValidation returns records in a given state, optionally scoped to
// one high school, ordered by last update.
func (r *RecordRepository) ListByValidation(ctx context.Context, state models.ValidationState, highSchoolID *string) ([]models.StudentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM core_record WHERE validation = $1`
	args := []interface{}{state}
	if highSchoolID != nil {
		query += fmt.Sprintf(" AND highschool_id = $%d", len(args)+1)
		args = append(args, *highSchoolID)
	}
	query += " ORDER BY updated_at DESC"

	var records []models.StudentRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// Create inserts a new record at version 1.
func (r *RecordRepository) Create(ctx context.Context, record *models.StudentRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.Version = 1
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	const query = `INSERT INTO core_record (id, kind, user_id, highschool_id, birth_date, phone, level,
        class_name, bachelor_type, bachelor_mention, validation, validation_date, rejected_date,
        duplicates, disclosure_agreed, version, created_at, updated_at)
        VALUES (:id, :kind, :user_id, :highschool_id, :birth_date, :phone, :level,
        :class_name, :bachelor_type, :bachelor_mention, :validation, :validation_date, :rejected_date,
        :duplicates, :disclosure_agreed, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields, guarded by the version the caller
// read. A no-op update means someone else advanced the record first.
func (r *RecordRepository) Update(ctx context.Context, record *models.StudentRecord) error {
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE core_record SET highschool_id = :highschool_id, birth_date = :birth_date,
        phone = :phone, level = :level, class_name = :class_name, bachelor_type = :bachelor_type,
        bachelor_mention = :bachelor_mention, validation = :validation, validation_date = :validation_date,
        rejected_date = :rejected_date, duplicates = :duplicates, disclosure_agreed = :disclosure_agreed,
        version = version + 1, updated_at = :updated_at
        WHERE id = :id AND version = :version`
	result, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record rows: %w", err)
	}
	if affected == 0 {
		return appErrors.ErrStaleState
	}
	record.Version++
	return nil
}

// SetValidation moves the record to a new state with the same version
// guard. validation_date and rejected_date are rewritten on every
// transition: stamped when entering Validated or Rejected, cleared
// otherwise, so a set date always means the record is in that state.
func (r *RecordRepository) SetValidation(ctx context.Context, id string, version int, state models.ValidationState) (*models.StudentRecord, error) {
	now := time.Now().UTC()
	var validationDate, rejectedDate *time.Time
	switch state {
	case models.RecordValidated:
		validationDate = &now
	case models.RecordRejected:
		rejectedDate = &now
	}

	const query = `UPDATE core_record SET validation = $3,
        validation_date = $4, rejected_date = $5,
        version = version + 1, updated_at = $6
        WHERE id = $1 AND version = $2
        RETURNING ` + recordColumns
	var record models.StudentRecord
	err := r.db.GetContext(ctx, &record, query, id, version, state, validationDate, rejectedDate, now)
	if err == sql.ErrNoRows {
		return nil, appErrors.ErrStaleState
	}
	if err != nil {
		return nil, fmt.Errorf("set record validation: %w", err)
	}
	return &record, nil
}

// FindDuplicateIDs returns the IDs of other records whose holder shares
// the reference record's names and birth date.
func (r *RecordRepository) FindDuplicateIDs(ctx context.Context, recordID string) ([]string, error) {
	const query = `SELECT other.id
        FROM core_record ref
        JOIN core_immersionuser ref_user ON ref_user.id = ref.user_id
        JOIN core_record other ON other.id <> ref.id AND other.birth_date = ref.birth_date
        JOIN core_immersionuser other_user ON other_user.id = other.user_id
        WHERE ref.id = $1
          AND LOWER(other_user.last_name) = LOWER(ref_user.last_name)
          AND LOWER(other_user.first_name) = LOWER(ref_user.first_name)
        ORDER BY other.id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, recordID); err != nil {
		return nil, fmt.Errorf("find duplicate records: %w", err)
	}
	return ids, nil
}

// Documents returns the attachments of a record.
func (r *RecordRepository) Documents(ctx context.Context, recordID string) ([]models.RecordDocument, error) {
	const query = `SELECT id, record_id, label, file_path, expiry_date, renewal_email_sent, created_at
        FROM core_record_document WHERE record_id = $1 ORDER BY created_at`
	var docs []models.RecordDocument
	if err := r.db.SelectContext(ctx, &docs, query, recordID); err != nil {
		return nil, fmt.Errorf("list record documents: %w", err)
	}
	return docs, nil
}

// AddDocument attaches a file to a record.
func (r *RecordRepository) AddDocument(ctx context.Context, doc *models.RecordDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO core_record_document (id, record_id, label, file_path, expiry_date, renewal_email_sent, created_at)
        VALUES (:id, :record_id, :label, :file_path, :expiry_date, :renewal_email_sent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("insert record document: %w", err)
	}
	return nil
}

// DeleteDocument removes one attachment row.
func (r *RecordRepository) DeleteDocument(ctx context.Context, documentID string) error {
	const query = `DELETE FROM core_record_document WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, documentID); err != nil {
		return fmt.Errorf("delete record document: %w", err)
	}
	return nil
}

// ListExpiredDocuments returns attachments past their expiry date whose
// renewal nudge has not been sent yet.
func (r *RecordRepository) ListExpiredDocuments(ctx context.Context, now time.Time) ([]models.RecordDocument, error) {
	const query = `SELECT id, record_id, label, file_path, expiry_date, renewal_email_sent, created_at
        FROM core_record_document
        WHERE expiry_date IS NOT NULL AND expiry_date < $1 AND renewal_email_sent = FALSE
        ORDER BY expiry_date`
	var docs []models.RecordDocument
	if err := r.db.SelectContext(ctx, &docs, query, now); err != nil {
		return nil, fmt.Errorf("list expired documents: %w", err)
	}
	return docs, nil
}

// MarkRenewalEmailSent flags a document nudge as delivered.
func (r *RecordRepository) MarkRenewalEmailSent(ctx context.Context, documentID string) error {
	const query = `UPDATE core_record_document SET renewal_email_sent = TRUE WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, documentID); err != nil {
		return fmt.Errorf("mark renewal email sent: %w", err)
	}
	return nil
}
