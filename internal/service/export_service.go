package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/immersup/immersup-api/internal/models"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
	"github.com/immersup/immersup-api/pkg/export"
)

type attendanceReader interface {
	ListAttendedByStudent(ctx context.Context, studentID string) ([]models.ImmersionDetail, error)
}

type exportUserReader interface {
	FindByID(ctx context.Context, id string) (*models.ImmersionUser, error)
}

type exportSchoolReader interface {
	FindByID(ctx context.Context, id string) (*models.HighSchool, error)
}

// ExportService builds the attendance certificate for a student.
type ExportService struct {
	immersions attendanceReader
	users      exportUserReader
	schools    exportSchoolReader
	exporter   *export.CertificateExporter
	logger     *zap.Logger
}

// NewExportService constructs ExportService.
func NewExportService(immersions attendanceReader, users exportUserReader, schools exportSchoolReader, exporter *export.CertificateExporter, logger *zap.Logger) *ExportService {
	if exporter == nil {
		exporter = export.NewCertificateExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{immersions: immersions, users: users, schools: schools, exporter: exporter, logger: logger}
}

// AttendanceCertificate renders a PDF listing the student's attended
// immersions. An actor may only export their own certificate unless they
// manage records.
func (s *ExportService) AttendanceCertificate(ctx context.Context, studentID string, actor *models.ImmersionUser) ([]byte, error) {
	if actor.ID != studentID && !actor.IsManager() {
		return nil, appErrors.ErrAuthorizationDenied
	}
	student, err := s.users.FindByID(ctx, studentID)
	if err == sql.ErrNoRows {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	attended, err := s.immersions.ListAttendedByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attended immersions")
	}
	if len(attended) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no attended immersion to certify")
	}

	data := export.CertificateData{StudentName: student.FirstName + " " + student.LastName}
	if student.HighSchoolID != nil {
		if school, err := s.schools.FindByID(ctx, *student.HighSchoolID); err == nil {
			data.HighSchool = school.Label
		} else {
			s.logger.Warn("certificate school lookup failed", zap.String("school_id", *student.HighSchoolID), zap.Error(err))
		}
	}
	for _, line := range attended {
		data.Lines = append(data.Lines, export.CertificateLine{
			Date:      line.SlotDate.Format("02/01/2006"),
			StartTime: line.SlotStart,
			EndTime:   line.SlotEnd,
			Label:     line.CourseLabel,
		})
	}

	pdf, err := s.exporter.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}
	return pdf, nil
}
