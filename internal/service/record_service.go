package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/immersup/immersup-api/internal/models"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
)

type recordRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentRecord, error)
	FindByUser(ctx context.Context, userID string) (*models.StudentRecord, error)
	ListByValidation(ctx context.Context, state models.ValidationState, highSchoolID *string) ([]models.StudentRecord, error)
	Create(ctx context.Context, record *models.StudentRecord) error
	Update(ctx context.Context, record *models.StudentRecord) error
	SetValidation(ctx context.Context, id string, version int, state models.ValidationState) (*models.StudentRecord, error)
	FindDuplicateIDs(ctx context.Context, recordID string) ([]string, error)
	Documents(ctx context.Context, recordID string) ([]models.RecordDocument, error)
	AddDocument(ctx context.Context, doc *models.RecordDocument) error
	DeleteDocument(ctx context.Context, documentID string) error
	ListExpiredDocuments(ctx context.Context, now time.Time) ([]models.RecordDocument, error)
	MarkRenewalEmailSent(ctx context.Context, documentID string) error
}

type futureCanceller interface {
	CancelFutureForStudent(ctx context.Context, studentID, cancelCode string, now time.Time) ([]models.Immersion, error)
}

type documentStore interface {
	ValidateDocument(filename string, size int64) error
	Save(filename string, r io.Reader) (string, error)
	Delete(rel string) error
}

type recordSettings interface {
	Bool(ctx context.Context, name string, fallback bool) bool
}

type recordNotifier interface {
	RecordValidated(ctx context.Context, record *models.StudentRecord)
	RecordRejected(ctx context.Context, record *models.StudentRecord)
	RegistrationsAutoCancelled(ctx context.Context, studentID string, immersions []models.Immersion)
	DocumentRenewalDue(ctx context.Context, userID string, doc *models.RecordDocument)
}

// SubmitRecordRequest describes a dossier submission.
type SubmitRecordRequest struct {
	Kind             string  `json:"kind" validate:"required,oneof=HIGHSCHOOL VISITOR"`
	HighSchoolID     *string `json:"highschool_id"`
	BirthDate        string  `json:"birth_date" validate:"required,datetime=2006-01-02"`
	Phone            string  `json:"phone"`
	Level            string  `json:"level" validate:"omitempty,oneof=SECONDE PREMIERE TERMINALE POST-BAC"`
	ClassName        string  `json:"class_name"`
	BachelorType     *int    `json:"bachelor_type" validate:"omitempty,oneof=1 2 3"`
	BachelorMention  *string `json:"bachelor_mention"`
	DisclosureAgreed bool    `json:"disclosure_agreed"`
}

// RecordService runs the dossier validation state machine. Transitions
// use the record version as an optimistic guard; the loser of a
// concurrent manager race observes StaleState.
type RecordService struct {
	repo      recordRepository
	canceller futureCanceller
	store     documentStore
	settings  recordSettings
	notifier  recordNotifier
	now       func() time.Time
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRecordService constructs RecordService.
func NewRecordService(repo recordRepository, canceller futureCanceller, store documentStore, settings recordSettings, notifier recordNotifier, validate *validator.Validate, logger *zap.Logger) *RecordService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordService{repo: repo, canceller: canceller, store: store, settings: settings, notifier: notifier, now: time.Now, validator: validate, logger: logger}
}

// Submit creates or resubmits a dossier, landing in To-validate. Pupil
// dossiers must name a high school.
func (s *RecordService) Submit(ctx context.Context, userID string, req SubmitRecordRequest) (*models.StudentRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	kind := models.RecordKind(req.Kind)
	if kind == models.RecordKindHighSchool && req.HighSchoolID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "pupil dossier requires a high school")
	}
	birthDate, err := time.Parse("2006-01-02", req.BirthDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid birth date")
	}

	existing, err := s.repo.FindByUser(ctx, userID)
	if err != nil && err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}

	var bachelorType *models.BachelorType
	if req.BachelorType != nil {
		bt := models.BachelorType(*req.BachelorType)
		bachelorType = &bt
	}

	if existing == nil {
		record := &models.StudentRecord{
			Kind:             kind,
			UserID:           userID,
			HighSchoolID:     req.HighSchoolID,
			BirthDate:        birthDate,
			Phone:            req.Phone,
			Level:            models.HighSchoolLevel(req.Level),
			ClassName:        req.ClassName,
			BachelorType:     bachelorType,
			BachelorMention:  req.BachelorMention,
			Validation:       models.RecordToValidate,
			DisclosureAgreed: req.DisclosureAgreed,
		}
		if err := s.repo.Create(ctx, record); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create record")
		}
		return record, nil
	}

	existing.HighSchoolID = req.HighSchoolID
	existing.BirthDate = birthDate
	existing.Phone = req.Phone
	existing.Level = models.HighSchoolLevel(req.Level)
	existing.ClassName = req.ClassName
	existing.BachelorType = bachelorType
	existing.BachelorMention = req.BachelorMention
	existing.DisclosureAgreed = req.DisclosureAgreed
	existing.Validation = models.RecordToValidate
	if err := s.repo.Update(ctx, existing); err != nil {
		if appErrors.Is(err, appErrors.ErrStaleState) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update record")
	}
	return existing, nil
}

// Validate moves a To-validate dossier to Validated. When the purge
// setting is on, attachments without an expiry date are removed once the
// transition commits.
func (s *RecordService) Validate(ctx context.Context, recordID string) (*models.StudentRecord, error) {
	record, err := s.load(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.Validation != models.RecordToValidate && record.Validation != models.RecordToRevalidate {
		return nil, appErrors.Clone(appErrors.ErrConflict, "record is not awaiting validation")
	}

	updated, err := s.repo.SetValidation(ctx, record.ID, record.Version, models.RecordValidated)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrStaleState) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate record")
	}

	if s.settings.Bool(ctx, models.SettingDeleteAttachmentsAtValidation, false) {
		s.purgeAttachments(ctx, updated.ID)
	}
	if s.notifier != nil {
		s.notifier.RecordValidated(ctx, updated)
	}
	return updated, nil
}

// Reject moves a To-validate dossier to Rejected.
func (s *RecordService) Reject(ctx context.Context, recordID string) (*models.StudentRecord, error) {
	record, err := s.load(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.Validation != models.RecordToValidate && record.Validation != models.RecordToRevalidate {
		return nil, appErrors.Clone(appErrors.ErrConflict, "record is not awaiting validation")
	}

	updated, err := s.repo.SetValidation(ctx, record.ID, record.Version, models.RecordRejected)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrStaleState) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject record")
	}
	if s.notifier != nil {
		s.notifier.RecordRejected(ctx, updated)
	}
	return updated, nil
}

// Invalidate moves a Validated dossier to To-revalidate after a change
// that voids the previous review. The holder's active registrations on
// future slots are cancelled with the system reason.
func (s *RecordService) Invalidate(ctx context.Context, recordID string) (*models.StudentRecord, error) {
	record, err := s.load(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.Validation != models.RecordValidated {
		return nil, appErrors.Clone(appErrors.ErrConflict, "record is not validated")
	}

	updated, err := s.repo.SetValidation(ctx, record.ID, record.Version, models.RecordToRevalidate)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrStaleState) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to invalidate record")
	}

	cancelled, err := s.canceller.CancelFutureForStudent(ctx, updated.UserID, models.SystemCancelMissingDocument, s.now())
	if err != nil {
		s.logger.Error("auto-cancel after invalidation failed", zap.String("record_id", updated.ID), zap.Error(err))
	} else if len(cancelled) > 0 && s.notifier != nil {
		s.notifier.RegistrationsAutoCancelled(ctx, updated.UserID, cancelled)
	}
	return updated, nil
}

// InitializeForCompletion moves an imported dossier from Initialized to
// To-complete on the holder's first login.
func (s *RecordService) InitializeForCompletion(ctx context.Context, userID string) error {
	record, err := s.repo.FindByUser(ctx, userID)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	if record.Validation != models.RecordInitialized {
		return nil
	}
	if _, err := s.repo.SetValidation(ctx, record.ID, record.Version, models.RecordToComplete); err != nil {
		if appErrors.Is(err, appErrors.ErrStaleState) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to initialize record")
	}
	return nil
}

// AttachDocument validates and stores an attachment on a record.
func (s *RecordService) AttachDocument(ctx context.Context, recordID, label, filename string, size int64, r io.Reader, expiry *time.Time) (*models.RecordDocument, error) {
	if _, err := s.load(ctx, recordID); err != nil {
		return nil, err
	}
	if err := s.store.ValidateDocument(filename, size); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	path, err := s.store.Save(filename, r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store document")
	}
	doc := &models.RecordDocument{RecordID: recordID, Label: label, FilePath: path, ExpiryDate: expiry}
	if err := s.repo.AddDocument(ctx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save document")
	}
	return doc, nil
}

// SweepExpiredDocuments invalidates records whose documents expired and
// sends the renewal nudge once per document.
func (s *RecordService) SweepExpiredDocuments(ctx context.Context) error {
	docs, err := s.repo.ListExpiredDocuments(ctx, s.now())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list expired documents")
	}
	for i := range docs {
		doc := docs[i]
		record, err := s.repo.FindByID(ctx, doc.RecordID)
		if err != nil {
			s.logger.Error("expired document sweep: record load failed", zap.String("record_id", doc.RecordID), zap.Error(err))
			continue
		}
		if record.Validation == models.RecordValidated {
			if _, err := s.Invalidate(ctx, record.ID); err != nil && !appErrors.Is(err, appErrors.ErrStaleState) {
				s.logger.Error("expired document sweep: invalidation failed", zap.String("record_id", record.ID), zap.Error(err))
				continue
			}
		}
		if err := s.repo.MarkRenewalEmailSent(ctx, doc.ID); err != nil {
			s.logger.Error("expired document sweep: mark failed", zap.String("document_id", doc.ID), zap.Error(err))
			continue
		}
		if s.notifier != nil {
			s.notifier.DocumentRenewalDue(ctx, record.UserID, &doc)
		}
	}
	return nil
}

// Get returns a record by holder.
func (s *RecordService) GetByUser(ctx context.Context, userID string) (*models.StudentRecord, error) {
	record, err := s.repo.FindByUser(ctx, userID)
	if err == sql.ErrNoRows {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	return record, nil
}

// ListAwaitingValidation returns To-validate dossiers, optionally scoped
// to a high school.
func (s *RecordService) ListAwaitingValidation(ctx context.Context, highSchoolID *string) ([]models.StudentRecord, error) {
	records, err := s.repo.ListByValidation(ctx, models.RecordToValidate, highSchoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list records")
	}
	return records, nil
}

// RefreshDuplicates recomputes the records sharing the holder's names
// and birth date and stores the resulting ID list on the record.
func (s *RecordService) RefreshDuplicates(ctx context.Context, recordID string) ([]string, error) {
	record, err := s.load(ctx, recordID)
	if err != nil {
		return nil, err
	}
	ids, err := s.repo.FindDuplicateIDs(ctx, record.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search duplicates")
	}
	if len(ids) == 0 {
		record.Duplicates = nil
	} else {
		encoded, err := json.Marshal(ids)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode duplicates")
		}
		value := string(encoded)
		record.Duplicates = &value
	}
	if err := s.repo.Update(ctx, record); err != nil {
		if appErrors.Is(err, appErrors.ErrStaleState) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store duplicates")
	}
	return ids, nil
}

func (s *RecordService) load(ctx context.Context, recordID string) (*models.StudentRecord, error) {
	record, err := s.repo.FindByID(ctx, recordID)
	if err == sql.ErrNoRows {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "record not found")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	return record, nil
}

// purgeAttachments removes stored files without an expiry date after a
// validation commit. Failures are logged, never surfaced.
func (s *RecordService) purgeAttachments(ctx context.Context, recordID string) {
	docs, err := s.repo.Documents(ctx, recordID)
	if err != nil {
		s.logger.Error("attachment purge: list failed", zap.String("record_id", recordID), zap.Error(err))
		return
	}
	for _, doc := range docs {
		if doc.ExpiryDate != nil {
			continue
		}
		if err := s.repo.DeleteDocument(ctx, doc.ID); err != nil {
			s.logger.Error("attachment purge: delete failed", zap.String("document_id", doc.ID), zap.Error(err))
			continue
		}
		if err := s.store.Delete(doc.FilePath); err != nil {
			s.logger.Warn("attachment purge: file removal failed", zap.String("path", doc.FilePath), zap.Error(err))
		}
	}
}
