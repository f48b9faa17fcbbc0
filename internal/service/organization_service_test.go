package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/immersup/immersup-api/internal/models"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
)

type mockHighSchoolRepo struct {
	schools map[string]models.HighSchool
	created *models.HighSchool
}

func (m *mockHighSchoolRepo) FindByID(ctx context.Context, id string) (*models.HighSchool, error) {
	if s, ok := m.schools[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockHighSchoolRepo) ListActive(ctx context.Context) ([]models.HighSchool, error) {
	var list []models.HighSchool
	for _, s := range m.schools {
		if s.Active {
			list = append(list, s)
		}
	}
	return list, nil
}

func (m *mockHighSchoolRepo) ListPostbac(ctx context.Context) ([]models.HighSchool, error) {
	var list []models.HighSchool
	for _, s := range m.schools {
		if s.Active && s.PostbacImmersion {
			list = append(list, s)
		}
	}
	return list, nil
}

func (m *mockHighSchoolRepo) List(ctx context.Context, filter models.HighSchoolFilter) ([]models.HighSchool, int, error) {
	list, _ := m.ListActive(ctx)
	return list, len(list), nil
}

func (m *mockHighSchoolRepo) Create(ctx context.Context, school *models.HighSchool) error {
	m.created = school
	return nil
}

func (m *mockHighSchoolRepo) Update(ctx context.Context, school *models.HighSchool) error {
	m.schools[school.ID] = *school
	return nil
}

type mockImageStore struct {
	dir string
}

func (m *mockImageStore) ValidateImage(filename string) error {
	if !strings.HasSuffix(strings.ToLower(filename), ".png") {
		return fmt.Errorf("file type not allowed for images")
	}
	return nil
}

func (m *mockImageStore) Save(filename string, r io.Reader) (string, error) {
	path := filepath.Join(m.dir, filename)
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return filename, nil
}

func (m *mockImageStore) Open(rel string) (*os.File, error) {
	return os.Open(filepath.Join(m.dir, rel))
}

type mockAgreementSettings struct {
	values map[string]bool
}

func (m *mockAgreementSettings) Bool(ctx context.Context, name string, fallback bool) bool {
	if v, ok := m.values[name]; ok {
		return v
	}
	return fallback
}

func TestSchoolAgreedTruthTable(t *testing.T) {
	today := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	past := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	expired := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

	inWindow := models.HighSchool{Active: true, WithConvention: true, ConventionStartDate: &past, ConventionEndDate: &future}
	outOfWindow := models.HighSchool{Active: true, WithConvention: true, ConventionStartDate: &past, ConventionEndDate: &expired}
	nonConventioned := models.HighSchool{Active: true, WithConvention: false}

	cases := []struct {
		name             string
		school           models.HighSchool
		withAgreement    bool
		withoutAgreement bool
		want             bool
	}{
		{"both on, conventioned in window", inWindow, true, true, true},
		{"both on, conventioned out of window", outOfWindow, true, true, false},
		{"both on, non-conventioned", nonConventioned, true, true, true},
		{"with only, conventioned in window", inWindow, true, false, true},
		{"with only, conventioned out of window", outOfWindow, true, false, false},
		{"with only, non-conventioned", nonConventioned, true, false, false},
		{"without only, conventioned in window", inWindow, false, true, false},
		{"without only, non-conventioned", nonConventioned, false, true, true},
		{"both off, non-conventioned", nonConventioned, false, false, false},
		{"both off, conventioned in window", inWindow, false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, schoolAgreed(tc.school, tc.withAgreement, tc.withoutAgreement, today))
		})
	}
}

func TestSchoolAgreedWindowBoundaries(t *testing.T) {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	school := models.HighSchool{Active: true, WithConvention: true, ConventionStartDate: &start, ConventionEndDate: &end}

	assert.True(t, schoolAgreed(school, true, false, time.Date(2026, 10, 1, 23, 59, 59, 0, time.UTC)),
		"the whole end day is still inside the window")
	assert.False(t, schoolAgreed(school, true, false, time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)))
	assert.False(t, schoolAgreed(school, true, false, start.Add(-time.Second)))
}

func TestSchoolAgreedInactive(t *testing.T) {
	school := models.HighSchool{Active: false, WithConvention: false}
	assert.False(t, schoolAgreed(school, true, true, time.Now()))
}

func TestOrganizationServiceListAgreedBothOff(t *testing.T) {
	repo := &mockHighSchoolRepo{schools: map[string]models.HighSchool{"hs1": {ID: "hs1", Active: true}}}
	settings := &mockAgreementSettings{values: map[string]bool{
		models.SettingHighSchoolWithAgreement:    false,
		models.SettingHighSchoolWithoutAgreement: false,
	}}
	svc := NewOrganizationService(repo, nil, settings, nil, nil, zap.NewNop())

	agreed, err := svc.ListAgreed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, agreed, "both settings off means nobody registers")
}

func TestOrganizationServiceAgreementSettingDefaultsOn(t *testing.T) {
	past := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockHighSchoolRepo{schools: map[string]models.HighSchool{
		"hs1": {ID: "hs1", Active: true, WithConvention: true, ConventionStartDate: &past, ConventionEndDate: &future},
	}}
	settings := &mockAgreementSettings{values: map[string]bool{}}
	svc := NewOrganizationService(repo, nil, settings, nil, nil, zap.NewNop())

	agreed, err := svc.ListAgreed(context.Background())
	require.NoError(t, err)
	require.Len(t, agreed, 1, "conventioned schools register even before the setting is stored")
	assert.Equal(t, "hs1", agreed[0].ID)

	ok, err := svc.IsAgreed(context.Background(), "hs1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOrganizationServiceIsAgreed(t *testing.T) {
	past := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockHighSchoolRepo{schools: map[string]models.HighSchool{
		"hs1": {ID: "hs1", Active: true, WithConvention: true, ConventionStartDate: &past, ConventionEndDate: &future},
	}}
	settings := &mockAgreementSettings{values: map[string]bool{models.SettingHighSchoolWithAgreement: true}}
	svc := NewOrganizationService(repo, nil, settings, nil, nil, zap.NewNop())

	agreed, err := svc.IsAgreed(context.Background(), "hs1")
	require.NoError(t, err)
	assert.True(t, agreed)

	_, err = svc.IsAgreed(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestOrganizationServiceCreateConventionNeedsDates(t *testing.T) {
	repo := &mockHighSchoolRepo{schools: map[string]models.HighSchool{}}
	svc := NewOrganizationService(repo, nil, &mockAgreementSettings{}, nil, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateHighSchoolRequest{
		Label: "Lycée Pasteur", Country: "France", City: "Strasbourg", WithConvention: true,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	start := time.Now()
	end := start.AddDate(1, 0, 0)
	school, err := svc.Create(context.Background(), CreateHighSchoolRequest{
		Label: "Lycée Pasteur", Country: "France", City: "Strasbourg",
		WithConvention: true, ConventionStartDate: &start, ConventionEndDate: &end,
	})
	require.NoError(t, err)
	assert.True(t, school.Active)
	assert.NotNil(t, repo.created)
}

func TestOrganizationServiceLogoRoundTrip(t *testing.T) {
	repo := &mockHighSchoolRepo{schools: map[string]models.HighSchool{"hs1": {ID: "hs1", Active: true}}}
	store := &mockImageStore{dir: t.TempDir()}
	svc := NewOrganizationService(repo, nil, &mockAgreementSettings{}, store, nil, zap.NewNop())
	ctx := context.Background()

	school, err := svc.UploadLogo(ctx, "hs1", "logo.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	require.NotNil(t, school.LogoPath)

	file, err := svc.LogoFile(ctx, "hs1")
	require.NoError(t, err)
	defer file.Close()
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestOrganizationServiceUploadLogoRefusals(t *testing.T) {
	repo := &mockHighSchoolRepo{schools: map[string]models.HighSchool{"hs1": {ID: "hs1", Active: true}}}
	store := &mockImageStore{dir: t.TempDir()}
	svc := NewOrganizationService(repo, nil, &mockAgreementSettings{}, store, nil, zap.NewNop())
	ctx := context.Background()

	_, err := svc.UploadLogo(ctx, "hs1", "logo.svg", strings.NewReader("svg"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.LogoFile(ctx, "hs1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.UploadLogo(ctx, "ghost", "logo.png", strings.NewReader("png"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

type mockEstablishmentRepo struct {
	establishments map[string]models.Establishment
	structures     map[string]models.Structure
	courses        map[string]models.CourseDetail
	created        *models.Establishment
}

func (m *mockEstablishmentRepo) FindEstablishment(ctx context.Context, id string) (*models.Establishment, error) {
	if e, ok := m.establishments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEstablishmentRepo) ListEstablishments(ctx context.Context) ([]models.Establishment, error) {
	var list []models.Establishment
	for _, e := range m.establishments {
		list = append(list, e)
	}
	return list, nil
}

func (m *mockEstablishmentRepo) CreateEstablishment(ctx context.Context, est *models.Establishment) error {
	m.created = est
	return nil
}

func (m *mockEstablishmentRepo) FindStructure(ctx context.Context, id string) (*models.Structure, error) {
	if s, ok := m.structures[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEstablishmentRepo) ListStructures(ctx context.Context, establishmentID string) ([]models.Structure, error) {
	var list []models.Structure
	for _, s := range m.structures {
		if establishmentID == "" || s.EstablishmentID == establishmentID {
			list = append(list, s)
		}
	}
	return list, nil
}

func (m *mockEstablishmentRepo) FindCourse(ctx context.Context, id string) (*models.CourseDetail, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func TestOrganizationServiceEstablishments(t *testing.T) {
	orgs := &mockEstablishmentRepo{
		establishments: map[string]models.Establishment{
			"e1": {ID: "e1", Code: "UNIV1", Label: "Université de Test", City: "STRASBOURG", Active: true},
		},
		structures: map[string]models.Structure{
			"s1": {ID: "s1", Code: "FAC-SCI", Label: "Faculté des sciences", EstablishmentID: "e1", Active: true},
			"s2": {ID: "s2", Code: "IUT", Label: "IUT", EstablishmentID: "e2", Active: true},
		},
		courses: map[string]models.CourseDetail{
			"c1": {Course: models.Course{ID: "c1", Label: "Biologie L1"}, TrainingLabel: "Licence Biologie"},
		},
	}
	svc := NewOrganizationService(&mockHighSchoolRepo{}, orgs, &mockAgreementSettings{}, nil, nil, zap.NewNop())

	all, err := svc.ListEstablishments(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)

	est, err := svc.GetEstablishment(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "UNIV1", est.Code)

	_, err = svc.GetEstablishment(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	structures, err := svc.ListStructures(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, structures, 1)
	assert.Equal(t, "FAC-SCI", structures[0].Code)

	course, err := svc.GetCourse(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Licence Biologie", course.TrainingLabel)
}

func TestOrganizationServiceCreateEstablishment(t *testing.T) {
	orgs := &mockEstablishmentRepo{}
	svc := NewOrganizationService(&mockHighSchoolRepo{}, orgs, &mockAgreementSettings{}, nil, nil, zap.NewNop())

	est, err := svc.CreateEstablishment(context.Background(), CreateEstablishmentRequest{
		Code: "UNIV2", Label: "Université Deux", City: "Mulhouse",
	})
	require.NoError(t, err)
	assert.True(t, est.Active)
	require.NotNil(t, orgs.created)

	_, err = svc.CreateEstablishment(context.Background(), CreateEstablishmentRequest{Label: "sans code"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
