package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/pkg/cache"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
)

// settingsSchema constrains every Parameters payload to the canonical
// {type, value, description} shape with a value matching its declared type.
const settingsSchema = `{
  "type": "object",
  "required": ["type", "value"],
  "properties": {
    "type": {"type": "string", "enum": ["boolean", "text", "integer", "object"]},
    "description": {"type": "string"}
  },
  "allOf": [
    {"if": {"properties": {"type": {"const": "boolean"}}}, "then": {"properties": {"value": {"type": "boolean"}}}},
    {"if": {"properties": {"type": {"const": "text"}}}, "then": {"properties": {"value": {"type": "string"}}}},
    {"if": {"properties": {"type": {"const": "integer"}}}, "then": {"properties": {"value": {"type": "integer"}}}},
    {"if": {"properties": {"type": {"const": "object"}}}, "then": {"properties": {"value": {"type": "object"}}}}
  ]
}`

const settingsCachePrefix = "settings:"

type settingsRepository interface {
	List(ctx context.Context) ([]models.Setting, error)
	Get(ctx context.Context, name string) (*models.Setting, error)
	Upsert(ctx context.Context, setting *models.Setting) error
}

// SettingsService reads and writes keyed configuration with a Redis
// read-through cache. Writes validate against the settings schema and
// invalidate the cached entry.
type SettingsService struct {
	repo   settingsRepository
	cache  *cache.Store
	ttl    time.Duration
	schema *gojsonschema.Schema
	logger *zap.Logger
}

// NewSettingsService constructs SettingsService. The cache store may be
// nil, in which case every read hits the database.
func NewSettingsService(repo settingsRepository, store *cache.Store, ttl time.Duration, logger *zap.Logger) (*SettingsService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(settingsSchema))
	if err != nil {
		return nil, fmt.Errorf("compile settings schema: %w", err)
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SettingsService{repo: repo, cache: store, ttl: ttl, schema: schema, logger: logger}, nil
}

// List returns every setting, uncached.
func (s *SettingsService) List(ctx context.Context) ([]models.Setting, error) {
	settings, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list settings")
	}
	return settings, nil
}

// Get returns one setting, serving from cache when possible.
func (s *SettingsService) Get(ctx context.Context, name string) (*models.Setting, error) {
	if s.cache != nil {
		var cached models.Setting
		if err := s.cache.Get(ctx, settingsCachePrefix+name, &cached); err == nil {
			return &cached, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("settings cache read failed", zap.String("setting", name), zap.Error(err))
		}
	}

	setting, err := s.repo.Get(ctx, name)
	if err == sql.ErrNoRows {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("setting %s not found", name))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load setting")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, settingsCachePrefix+name, setting, s.ttl); err != nil {
			s.logger.Warn("settings cache write failed", zap.String("setting", name), zap.Error(err))
		}
	}
	return setting, nil
}

// Set validates and upserts one setting, then drops the cached entry.
func (s *SettingsService) Set(ctx context.Context, setting *models.Setting) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(setting.Parameters))
	if err != nil {
		return appErrors.Clone(appErrors.ErrInvalidSettings, fmt.Sprintf("setting %s: %v", setting.Name, err))
	}
	if !result.Valid() {
		return appErrors.Clone(appErrors.ErrInvalidSettings, fmt.Sprintf("setting %s: %s", setting.Name, result.Errors()[0]))
	}

	if err := s.repo.Upsert(ctx, setting); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save setting")
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, settingsCachePrefix+setting.Name); err != nil {
			s.logger.Warn("settings cache invalidation failed", zap.String("setting", setting.Name), zap.Error(err))
		}
	}
	return nil
}

// Bool reads a boolean setting, returning the fallback when the setting
// is absent or not a boolean.
func (s *SettingsService) Bool(ctx context.Context, name string, fallback bool) bool {
	setting, err := s.Get(ctx, name)
	if err != nil {
		return fallback
	}
	var params models.SettingParameters
	if err := json.Unmarshal(setting.Parameters, &params); err != nil {
		s.logger.Warn("malformed setting parameters", zap.String("setting", name), zap.Error(err))
		return fallback
	}
	value, ok := params.Value.(bool)
	if !ok {
		return fallback
	}
	return value
}

// Int reads an integer setting with a fallback.
func (s *SettingsService) Int(ctx context.Context, name string, fallback int) int {
	setting, err := s.Get(ctx, name)
	if err != nil {
		return fallback
	}
	var params models.SettingParameters
	if err := json.Unmarshal(setting.Parameters, &params); err != nil {
		s.logger.Warn("malformed setting parameters", zap.String("setting", name), zap.Error(err))
		return fallback
	}
	// JSON numbers decode as float64 through the interface value.
	value, ok := params.Value.(float64)
	if !ok {
		return fallback
	}
	return int(value)
}

// Text reads a text setting with a fallback.
func (s *SettingsService) Text(ctx context.Context, name, fallback string) string {
	setting, err := s.Get(ctx, name)
	if err != nil {
		return fallback
	}
	var params models.SettingParameters
	if err := json.Unmarshal(setting.Parameters, &params); err != nil {
		s.logger.Warn("malformed setting parameters", zap.String("setting", name), zap.Error(err))
		return fallback
	}
	value, ok := params.Value.(string)
	if !ok {
		return fallback
	}
	return value
}
