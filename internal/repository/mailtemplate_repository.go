package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/immersup/immersup-api/internal/models"
)

// MailTemplateRepository reads and edits the notification templates.
type MailTemplateRepository struct {
	db *sqlx.DB
}

// NewMailTemplateRepository constructs the repository.
func NewMailTemplateRepository(db *sqlx.DB) *MailTemplateRepository {
	return &MailTemplateRepository{db: db}
}

// GetByCode returns an active template.
func (r *MailTemplateRepository) GetByCode(ctx context.Context, code string) (*models.MailTemplate, error) {
	const query = `SELECT id, code, label, subject, body, active, updated_at
        FROM core_mailtemplate WHERE code = $1 AND active = TRUE`
	var tpl models.MailTemplate
	if err := r.db.GetContext(ctx, &tpl, query, code); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// List returns every template, active or not.
func (r *MailTemplateRepository) List(ctx context.Context) ([]models.MailTemplate, error) {
	const query = `SELECT id, code, label, subject, body, active, updated_at
        FROM core_mailtemplate ORDER BY code`
	var templates []models.MailTemplate
	if err := r.db.SelectContext(ctx, &templates, query); err != nil {
		return nil, fmt.Errorf("list mail templates: %w", err)
	}
	return templates, nil
}

// Update rewrites the editable fields of a template. The variable check
// happens in the service before this call.
func (r *MailTemplateRepository) Update(ctx context.Context, tpl *models.MailTemplate) error {
	tpl.UpdatedAt = time.Now().UTC()
	const query = `UPDATE core_mailtemplate SET label = :label, subject = :subject,
        body = :body, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, tpl); err != nil {
		return fmt.Errorf("update mail template: %w", err)
	}
	return nil
}

// Vars returns the variables a template is allowed to reference.
func (r *MailTemplateRepository) Vars(ctx context.Context, templateID string) ([]models.MailTemplateVar, error) {
	const query = `SELECT v.id, v.code, v.description
        FROM core_mailtemplatevars v
        JOIN core_mailtemplate_available_vars av ON av.mailtemplatevars_id = v.id
        WHERE av.mailtemplate_id = $1
        ORDER BY v.code`
	var vars []models.MailTemplateVar
	if err := r.db.SelectContext(ctx, &vars, query, templateID); err != nil {
		return nil, fmt.Errorf("list template vars: %w", err)
	}
	return vars, nil
}
