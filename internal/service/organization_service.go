package service

import (
	"context"
	"database/sql"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/immersup/immersup-api/internal/models"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
)

type highSchoolRepository interface {
	FindByID(ctx context.Context, id string) (*models.HighSchool, error)
	ListActive(ctx context.Context) ([]models.HighSchool, error)
	ListPostbac(ctx context.Context) ([]models.HighSchool, error)
	List(ctx context.Context, filter models.HighSchoolFilter) ([]models.HighSchool, int, error)
	Create(ctx context.Context, school *models.HighSchool) error
	Update(ctx context.Context, school *models.HighSchool) error
}

type establishmentRepository interface {
	FindEstablishment(ctx context.Context, id string) (*models.Establishment, error)
	ListEstablishments(ctx context.Context) ([]models.Establishment, error)
	CreateEstablishment(ctx context.Context, est *models.Establishment) error
	FindStructure(ctx context.Context, id string) (*models.Structure, error)
	ListStructures(ctx context.Context, establishmentID string) ([]models.Structure, error)
	FindCourse(ctx context.Context, id string) (*models.CourseDetail, error)
}

type agreementSettings interface {
	Bool(ctx context.Context, name string, fallback bool) bool
}

type imageStore interface {
	ValidateImage(filename string) error
	Save(filename string, r io.Reader) (string, error)
	Open(rel string) (*os.File, error)
}

// OrganizationService is the read side of the organization graph: the
// agreed-high-schools view and the post-bac offering view.
type OrganizationService struct {
	schools   highSchoolRepository
	orgs      establishmentRepository
	settings  agreementSettings
	store     imageStore
	now       func() time.Time
	validator *validator.Validate
	logger    *zap.Logger
}

// NewOrganizationService constructs OrganizationService.
func NewOrganizationService(schools highSchoolRepository, orgs establishmentRepository, settings agreementSettings, store imageStore, validate *validator.Validate, logger *zap.Logger) *OrganizationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrganizationService{schools: schools, orgs: orgs, settings: settings, store: store, now: time.Now, validator: validate, logger: logger}
}

// schoolAgreed evaluates one school against the two activation settings
// at a point in time. Conventioned schools count only inside their
// convention window.
func schoolAgreed(school models.HighSchool, withAgreement, withoutAgreement bool, today time.Time) bool {
	if !school.Active {
		return false
	}
	inWindow := school.WithConvention &&
		school.ConventionStartDate != nil && school.ConventionEndDate != nil &&
		!today.Before(truncateDay(*school.ConventionStartDate)) &&
		!today.After(endOfDay(*school.ConventionEndDate))

	switch {
	case withAgreement && withoutAgreement:
		return !school.WithConvention || inWindow
	case withAgreement:
		return inWindow
	case withoutAgreement:
		return !school.WithConvention
	}
	return false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return truncateDay(t).Add(24*time.Hour - time.Nanosecond)
}

// ListAgreed returns the active high schools whose pupils may register,
// per the agreement settings in force right now.
func (s *OrganizationService) ListAgreed(ctx context.Context) ([]models.HighSchool, error) {
	withAgreement := s.settings.Bool(ctx, models.SettingHighSchoolWithAgreement, true)
	withoutAgreement := s.settings.Bool(ctx, models.SettingHighSchoolWithoutAgreement, false)
	if !withAgreement && !withoutAgreement {
		return nil, nil
	}

	schools, err := s.schools.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list high schools")
	}
	today := s.now()
	agreed := make([]models.HighSchool, 0, len(schools))
	for _, school := range schools {
		if schoolAgreed(school, withAgreement, withoutAgreement, today) {
			agreed = append(agreed, school)
		}
	}
	return agreed, nil
}

// IsAgreed evaluates the agreement predicate for one school.
func (s *OrganizationService) IsAgreed(ctx context.Context, schoolID string) (bool, error) {
	school, err := s.schools.FindByID(ctx, schoolID)
	if err == sql.ErrNoRows {
		return false, appErrors.Clone(appErrors.ErrNotFound, "high school not found")
	}
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load high school")
	}
	withAgreement := s.settings.Bool(ctx, models.SettingHighSchoolWithAgreement, true)
	withoutAgreement := s.settings.Bool(ctx, models.SettingHighSchoolWithoutAgreement, false)
	return schoolAgreed(*school, withAgreement, withoutAgreement, s.now()), nil
}

// ListPostbac returns active schools offering post-bac immersions.
func (s *OrganizationService) ListPostbac(ctx context.Context) ([]models.HighSchool, error) {
	schools, err := s.schools.ListPostbac(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list post-bac high schools")
	}
	return schools, nil
}

// List returns high schools with pagination.
func (s *OrganizationService) List(ctx context.Context, filter models.HighSchoolFilter) ([]models.HighSchool, *models.Pagination, error) {
	schools, total, err := s.schools.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list high schools")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 || size > 100 {
		size = 20
	}
	return schools, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one high school.
func (s *OrganizationService) Get(ctx context.Context, id string) (*models.HighSchool, error) {
	school, err := s.schools.FindByID(ctx, id)
	if err == sql.ErrNoRows {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "high school not found")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load high school")
	}
	return school, nil
}

// UploadLogo validates and stores a school logo, recording the stored
// path on the school.
func (s *OrganizationService) UploadLogo(ctx context.Context, schoolID, filename string, r io.Reader) (*models.HighSchool, error) {
	school, err := s.Get(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	if err := s.store.ValidateImage(filename); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	path, err := s.store.Save(filename, r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store logo")
	}
	school.LogoPath = &path
	if err := s.schools.Update(ctx, school); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save logo path")
	}
	return school, nil
}

// LogoFile opens a school's stored logo for streaming.
func (s *OrganizationService) LogoFile(ctx context.Context, schoolID string) (*os.File, error) {
	school, err := s.Get(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	if school.LogoPath == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "school has no logo")
	}
	file, err := s.store.Open(*school.LogoPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open logo")
	}
	return file, nil
}

// CreateHighSchoolRequest describes high school creation.
type CreateHighSchoolRequest struct {
	Label                     string     `json:"label" validate:"required"`
	Country                   string     `json:"country" validate:"required"`
	Address                   string     `json:"address"`
	Department                string     `json:"department"`
	City                      string     `json:"city" validate:"required"`
	ZipCode                   string     `json:"zip_code"`
	Email                     string     `json:"email" validate:"omitempty,email"`
	HeadTeacherName           string     `json:"head_teacher_name"`
	WithConvention            bool       `json:"with_convention"`
	ConventionStartDate       *time.Time `json:"convention_start_date"`
	ConventionEndDate         *time.Time `json:"convention_end_date"`
	AllowIndividualImmersions bool       `json:"allow_individual_immersions"`
	PostbacImmersion          bool       `json:"postbac_immersion"`
}

// Create validates and persists a high school.
func (s *OrganizationService) Create(ctx context.Context, req CreateHighSchoolRequest) (*models.HighSchool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if req.WithConvention && (req.ConventionStartDate == nil || req.ConventionEndDate == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "conventioned school requires convention dates")
	}
	school := &models.HighSchool{
		Label:                     req.Label,
		Country:                   req.Country,
		Address:                   req.Address,
		Department:                req.Department,
		City:                      req.City,
		ZipCode:                   req.ZipCode,
		Email:                     req.Email,
		HeadTeacherName:           req.HeadTeacherName,
		WithConvention:            req.WithConvention,
		ConventionStartDate:       req.ConventionStartDate,
		ConventionEndDate:         req.ConventionEndDate,
		AllowIndividualImmersions: req.AllowIndividualImmersions,
		PostbacImmersion:          req.PostbacImmersion,
		Active:                    true,
	}
	if err := s.schools.Create(ctx, school); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create high school")
	}
	return school, nil
}

// ListEstablishments returns every establishment.
func (s *OrganizationService) ListEstablishments(ctx context.Context) ([]models.Establishment, error) {
	establishments, err := s.orgs.ListEstablishments(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list establishments")
	}
	return establishments, nil
}

// GetEstablishment returns one establishment.
func (s *OrganizationService) GetEstablishment(ctx context.Context, id string) (*models.Establishment, error) {
	est, err := s.orgs.FindEstablishment(ctx, id)
	if err == sql.ErrNoRows {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "establishment not found")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load establishment")
	}
	return est, nil
}

// CreateEstablishmentRequest describes establishment creation.
type CreateEstablishmentRequest struct {
	Code       string `json:"code" validate:"required"`
	Label      string `json:"label" validate:"required"`
	ShortLabel string `json:"short_label"`
	Address    string `json:"address"`
	Department string `json:"department"`
	City       string `json:"city" validate:"required"`
	ZipCode    string `json:"zip_code"`
	Email      string `json:"email" validate:"omitempty,email"`
	Master     bool   `json:"master"`
}

// CreateEstablishment validates and persists an establishment.
func (s *OrganizationService) CreateEstablishment(ctx context.Context, req CreateEstablishmentRequest) (*models.Establishment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	est := &models.Establishment{
		Code:       req.Code,
		Label:      req.Label,
		ShortLabel: req.ShortLabel,
		Address:    req.Address,
		Department: req.Department,
		City:       req.City,
		ZipCode:    req.ZipCode,
		Email:      req.Email,
		Master:     req.Master,
		Active:     true,
	}
	if err := s.orgs.CreateEstablishment(ctx, est); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create establishment")
	}
	return est, nil
}

// ListStructures returns the structures of an establishment.
func (s *OrganizationService) ListStructures(ctx context.Context, establishmentID string) ([]models.Structure, error) {
	structures, err := s.orgs.ListStructures(ctx, establishmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list structures")
	}
	return structures, nil
}

// GetStructure returns one structure.
func (s *OrganizationService) GetStructure(ctx context.Context, id string) (*models.Structure, error) {
	structure, err := s.orgs.FindStructure(ctx, id)
	if err == sql.ErrNoRows {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "structure not found")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load structure")
	}
	return structure, nil
}

// GetCourse returns a course with its owner labels.
func (s *OrganizationService) GetCourse(ctx context.Context, id string) (*models.CourseDetail, error) {
	course, err := s.orgs.FindCourse(ctx, id)
	if err == sql.ErrNoRows {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}
