package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/immersup/immersup-api/internal/models"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
)

type mockSettingsRepo struct {
	settings map[string]models.Setting
	upserted *models.Setting
}

func (m *mockSettingsRepo) List(ctx context.Context) ([]models.Setting, error) {
	var list []models.Setting
	for _, s := range m.settings {
		list = append(list, s)
	}
	return list, nil
}

func (m *mockSettingsRepo) Get(ctx context.Context, name string) (*models.Setting, error) {
	if s, ok := m.settings[name]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSettingsRepo) Upsert(ctx context.Context, setting *models.Setting) error {
	if m.settings == nil {
		m.settings = make(map[string]models.Setting)
	}
	m.settings[setting.Name] = *setting
	m.upserted = setting
	return nil
}

func newSettingsService(t *testing.T, repo *mockSettingsRepo) *SettingsService {
	t.Helper()
	svc, err := NewSettingsService(repo, nil, time.Minute, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestSettingsServiceSetValidatesShape(t *testing.T) {
	repo := &mockSettingsRepo{}
	svc := newSettingsService(t, repo)

	err := svc.Set(context.Background(), &models.Setting{
		Name:       models.SettingActivateHijack,
		Parameters: json.RawMessage(`{"type": "boolean", "value": true, "description": "hijack switch"}`),
	})
	require.NoError(t, err)
	require.NotNil(t, repo.upserted)
}

func TestSettingsServiceSetRejectsTypeMismatch(t *testing.T) {
	repo := &mockSettingsRepo{}
	svc := newSettingsService(t, repo)

	err := svc.Set(context.Background(), &models.Setting{
		Name:       models.SettingActivateHijack,
		Parameters: json.RawMessage(`{"type": "boolean", "value": "yes"}`),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidSettings.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.upserted)
}

func TestSettingsServiceSetRejectsMissingValue(t *testing.T) {
	repo := &mockSettingsRepo{}
	svc := newSettingsService(t, repo)

	err := svc.Set(context.Background(), &models.Setting{
		Name:       models.SettingNbDaysSlotReminder,
		Parameters: json.RawMessage(`{"type": "integer"}`),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidSettings.Code, appErrors.FromError(err).Code)
}

func TestSettingsServiceSetRejectsUnknownType(t *testing.T) {
	repo := &mockSettingsRepo{}
	svc := newSettingsService(t, repo)

	err := svc.Set(context.Background(), &models.Setting{
		Name:       "SOMETHING",
		Parameters: json.RawMessage(`{"type": "float", "value": 1.5}`),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidSettings.Code, appErrors.FromError(err).Code)
}

func TestSettingsServiceTypedReaders(t *testing.T) {
	repo := &mockSettingsRepo{settings: map[string]models.Setting{
		models.SettingActivateHijack: {
			Name:       models.SettingActivateHijack,
			Parameters: json.RawMessage(`{"type": "boolean", "value": true}`),
		},
		models.SettingNbDaysSlotReminder: {
			Name:       models.SettingNbDaysSlotReminder,
			Parameters: json.RawMessage(`{"type": "integer", "value": 4}`),
		},
		models.SettingSocialAccountURL: {
			Name:       models.SettingSocialAccountURL,
			Parameters: json.RawMessage(`{"type": "text", "value": "https://immersup.example/sso"}`),
		},
	}}
	svc := newSettingsService(t, repo)
	ctx := context.Background()

	assert.True(t, svc.Bool(ctx, models.SettingActivateHijack, false))
	assert.Equal(t, 4, svc.Int(ctx, models.SettingNbDaysSlotReminder, 7))
	assert.Equal(t, "https://immersup.example/sso", svc.Text(ctx, models.SettingSocialAccountURL, "fallback"))
}

func TestSettingsServiceFallbacks(t *testing.T) {
	repo := &mockSettingsRepo{settings: map[string]models.Setting{
		"BROKEN": {Name: "BROKEN", Parameters: json.RawMessage(`not json`)},
		"WRONG":  {Name: "WRONG", Parameters: json.RawMessage(`{"type": "text", "value": "yes"}`)},
	}}
	svc := newSettingsService(t, repo)
	ctx := context.Background()

	assert.True(t, svc.Bool(ctx, "MISSING", true))
	assert.True(t, svc.Bool(ctx, "BROKEN", true))
	assert.True(t, svc.Bool(ctx, "WRONG", true))
	assert.Equal(t, 7, svc.Int(ctx, "WRONG", 7))
}

func TestSettingsServiceGetMissing(t *testing.T) {
	svc := newSettingsService(t, &mockSettingsRepo{})

	_, err := svc.Get(context.Background(), "MISSING")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
