package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/immersup/immersup-api/internal/models"
)

// SettingsRepository persists the general settings registry.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository constructs the repository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// List returns every settings entry ordered by name.
func (r *SettingsRepository) List(ctx context.Context) ([]models.Setting, error) {
	const query = `SELECT id, setting, parameters, setting_type, updated_at FROM core_generalsettings ORDER BY setting`
	var settings []models.Setting
	if err := r.db.SelectContext(ctx, &settings, query); err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return settings, nil
}

// Get returns one entry by name.
func (r *SettingsRepository) Get(ctx context.Context, name string) (*models.Setting, error) {
	const query = `SELECT id, setting, parameters, setting_type, updated_at FROM core_generalsettings WHERE setting = $1`
	var setting models.Setting
	if err := r.db.GetContext(ctx, &setting, query, name); err != nil {
		return nil, err
	}
	return &setting, nil
}

// Upsert writes an entry keyed by setting name.
func (r *SettingsRepository) Upsert(ctx context.Context, setting *models.Setting) error {
	if setting.ID == "" {
		setting.ID = uuid.NewString()
	}
	setting.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO core_generalsettings (id, setting, parameters, setting_type, updated_at)
        VALUES (:id, :setting, :parameters, :setting_type, :updated_at)
        ON CONFLICT (setting) DO UPDATE SET parameters = EXCLUDED.parameters,
            setting_type = EXCLUDED.setting_type, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, setting); err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}
