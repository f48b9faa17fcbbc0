package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/pkg/config"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail      *models.ImmersionUser
	userByID         *models.ImmersionUser
	refreshTokens    map[string]*models.RefreshToken
	lastLoginUpdated bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.ImmersionUser, error) {
	if m.userByEmail == nil || m.userByEmail.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.ImmersionUser, error) {
	if m.userByID != nil && m.userByID.ID == id {
		return m.userByID, nil
	}
	if m.userByEmail != nil && m.userByEmail.ID == id {
		return m.userByEmail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, at time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &at
		}
	}
	return nil
}

type mockRecordInitializer struct {
	initialized []string
}

func (m *mockRecordInitializer) InitializeForCompletion(ctx context.Context, userID string) error {
	m.initialized = append(m.initialized, userID)
	return nil
}

func authTestConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Expiration: time.Hour, RefreshExpiration: 24 * time.Hour}
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.ImmersionUser{
		ID: "u1", Email: "pupil@lycee.example", PasswordHash: string(password), Active: true, Role: models.RolePupil,
	}}
	records := &mockRecordInitializer{}
	svc := NewAuthService(repo, records, nil, authTestConfig(), nil, zap.NewNop())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "pupil@lycee.example", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.True(t, repo.lastLoginUpdated)
	assert.Equal(t, []string{"u1"}, records.initialized)
}

func TestAuthServiceLoginBadPassword(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.ImmersionUser{
		ID: "u1", Email: "pupil@lycee.example", PasswordHash: string(password), Active: true, Role: models.RolePupil,
	}}
	svc := NewAuthService(repo, nil, nil, authTestConfig(), nil, zap.NewNop())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "pupil@lycee.example", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{}, nil, nil, authTestConfig(), nil, zap.NewNop())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@lycee.example", Password: "password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactive(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.ImmersionUser{
		ID: "u1", Email: "pupil@lycee.example", PasswordHash: string(password), Active: false, Role: models.RolePupil,
	}}
	svc := NewAuthService(repo, nil, nil, authTestConfig(), nil, zap.NewNop())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "pupil@lycee.example", Password: "password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshTokenRotation(t *testing.T) {
	user := &models.ImmersionUser{ID: "u1", Email: "pupil@lycee.example", Active: true, Role: models.RolePupil}
	repo := &mockAuthRepo{userByID: user, refreshTokens: map[string]*models.RefreshToken{
		"token": {ID: "rt1", UserID: "u1", Token: "token", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	svc := NewAuthService(repo, nil, nil, authTestConfig(), nil, zap.NewNop())

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "token", res.RefreshToken)
	assert.True(t, repo.refreshTokens["token"].Revoked)
}

func TestAuthServiceRefreshTokenExpired(t *testing.T) {
	user := &models.ImmersionUser{ID: "u1", Email: "pupil@lycee.example", Active: true, Role: models.RolePupil}
	repo := &mockAuthRepo{userByID: user, refreshTokens: map[string]*models.RefreshToken{
		"token": {ID: "rt1", UserID: "u1", Token: "token", ExpiresAt: time.Now().Add(-time.Minute)},
	}}
	svc := NewAuthService(repo, nil, nil, authTestConfig(), nil, zap.NewNop())

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceHijackStampsActor(t *testing.T) {
	authority, users := newAuthorityFixture(true)
	repo := &mockAuthRepo{}
	svc := NewAuthService(repo, nil, authority, authTestConfig(), nil, zap.NewNop())

	actor := users.users["operator"]
	res, err := svc.Hijack(context.Background(), &actor, "pupil")
	require.NoError(t, err)
	assert.Equal(t, "pupil", res.User.ID)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "pupil", claims.UserID)
	assert.Equal(t, "operator", claims.HijackedBy)
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{}, nil, nil, authTestConfig(), nil, zap.NewNop())
	user := &models.ImmersionUser{ID: "u1", Email: "pupil@lycee.example", Role: models.RolePupil}
	token, err := svc.generateAccessToken(user, "")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Empty(t, claims.HijackedBy)

	_, err = svc.ValidateToken(token + "x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
