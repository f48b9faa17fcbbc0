package service

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/immersup/immersup-api/internal/models"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
)

type mockRecordRepo struct {
	records     map[string]models.StudentRecord
	documents   map[string][]models.RecordDocument
	duplicates  map[string][]string
	deletedDocs []string
	expired     []models.RecordDocument
	renewalSent []string
	staleOnSet  bool
}

func (m *mockRecordRepo) FindByID(ctx context.Context, id string) (*models.StudentRecord, error) {
	if r, ok := m.records[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRecordRepo) FindByUser(ctx context.Context, userID string) (*models.StudentRecord, error) {
	for _, r := range m.records {
		if r.UserID == userID {
			return &r, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockRecordRepo) ListByValidation(ctx context.Context, state models.ValidationState, highSchoolID *string) ([]models.StudentRecord, error) {
	var list []models.StudentRecord
	for _, r := range m.records {
		if r.Validation != state {
			continue
		}
		if highSchoolID != nil && (r.HighSchoolID == nil || *r.HighSchoolID != *highSchoolID) {
			continue
		}
		list = append(list, r)
	}
	return list, nil
}

func (m *mockRecordRepo) Create(ctx context.Context, record *models.StudentRecord) error {
	if m.records == nil {
		m.records = make(map[string]models.StudentRecord)
	}
	if record.ID == "" {
		record.ID = "rec-new"
	}
	record.Version = 1
	m.records[record.ID] = *record
	return nil
}

func (m *mockRecordRepo) Update(ctx context.Context, record *models.StudentRecord) error {
	stored, ok := m.records[record.ID]
	if !ok || stored.Version != record.Version {
		return appErrors.ErrStaleState
	}
	record.Version++
	m.records[record.ID] = *record
	return nil
}

func (m *mockRecordRepo) SetValidation(ctx context.Context, id string, version int, state models.ValidationState) (*models.StudentRecord, error) {
	if m.staleOnSet {
		return nil, appErrors.ErrStaleState
	}
	stored, ok := m.records[id]
	if !ok || stored.Version != version {
		return nil, appErrors.ErrStaleState
	}
	stored.Validation = state
	stored.Version++
	now := time.Now()
	switch state {
	case models.RecordValidated:
		stored.ValidationDate = &now
	case models.RecordRejected:
		stored.RejectedDate = &now
	}
	m.records[id] = stored
	return &stored, nil
}

func (m *mockRecordRepo) FindDuplicateIDs(ctx context.Context, recordID string) ([]string, error) {
	return m.duplicates[recordID], nil
}

func (m *mockRecordRepo) Documents(ctx context.Context, recordID string) ([]models.RecordDocument, error) {
	return m.documents[recordID], nil
}

func (m *mockRecordRepo) AddDocument(ctx context.Context, doc *models.RecordDocument) error {
	if m.documents == nil {
		m.documents = make(map[string][]models.RecordDocument)
	}
	if doc.ID == "" {
		doc.ID = "doc-new"
	}
	m.documents[doc.RecordID] = append(m.documents[doc.RecordID], *doc)
	return nil
}

func (m *mockRecordRepo) DeleteDocument(ctx context.Context, documentID string) error {
	m.deletedDocs = append(m.deletedDocs, documentID)
	return nil
}

func (m *mockRecordRepo) ListExpiredDocuments(ctx context.Context, now time.Time) ([]models.RecordDocument, error) {
	return m.expired, nil
}

func (m *mockRecordRepo) MarkRenewalEmailSent(ctx context.Context, documentID string) error {
	m.renewalSent = append(m.renewalSent, documentID)
	return nil
}

type mockFutureCanceller struct {
	cancelled []models.Immersion
	calls     []string
}

func (m *mockFutureCanceller) CancelFutureForStudent(ctx context.Context, studentID, cancelCode string, now time.Time) ([]models.Immersion, error) {
	m.calls = append(m.calls, studentID+":"+cancelCode)
	return m.cancelled, nil
}

type mockDocumentStore struct {
	saved   []string
	deleted []string
	invalid bool
}

func (m *mockDocumentStore) ValidateDocument(filename string, size int64) error {
	if m.invalid {
		return appErrors.Clone(appErrors.ErrValidation, "extension not allowed")
	}
	return nil
}

func (m *mockDocumentStore) Save(filename string, r io.Reader) (string, error) {
	m.saved = append(m.saved, filename)
	return "docs/" + filename, nil
}

func (m *mockDocumentStore) Delete(rel string) error {
	m.deleted = append(m.deleted, rel)
	return nil
}

type mockRecordSettings struct {
	purge bool
}

func (m *mockRecordSettings) Bool(ctx context.Context, name string, fallback bool) bool {
	if name == models.SettingDeleteAttachmentsAtValidation {
		return m.purge
	}
	return fallback
}

type mockRecordNotifier struct {
	validated     []string
	rejected      []string
	autoCancelled []string
	renewalDue    []string
}

func (m *mockRecordNotifier) RecordValidated(ctx context.Context, record *models.StudentRecord) {
	m.validated = append(m.validated, record.ID)
}

func (m *mockRecordNotifier) RecordRejected(ctx context.Context, record *models.StudentRecord) {
	m.rejected = append(m.rejected, record.ID)
}

func (m *mockRecordNotifier) RegistrationsAutoCancelled(ctx context.Context, studentID string, immersions []models.Immersion) {
	m.autoCancelled = append(m.autoCancelled, studentID)
}

func (m *mockRecordNotifier) DocumentRenewalDue(ctx context.Context, userID string, doc *models.RecordDocument) {
	m.renewalDue = append(m.renewalDue, doc.ID)
}

type recordFixture struct {
	repo      *mockRecordRepo
	canceller *mockFutureCanceller
	store     *mockDocumentStore
	settings  *mockRecordSettings
	notifier  *mockRecordNotifier
	svc       *RecordService
}

func newRecordFixture(t *testing.T) *recordFixture {
	t.Helper()
	f := &recordFixture{
		repo:      &mockRecordRepo{records: map[string]models.StudentRecord{}},
		canceller: &mockFutureCanceller{},
		store:     &mockDocumentStore{},
		settings:  &mockRecordSettings{},
		notifier:  &mockRecordNotifier{},
	}
	f.svc = NewRecordService(f.repo, f.canceller, f.store, f.settings, f.notifier, nil, zap.NewNop())
	return f
}

func TestRecordServiceSubmit(t *testing.T) {
	f := newRecordFixture(t)
	schoolID := "hs1"

	record, err := f.svc.Submit(context.Background(), "u1", SubmitRecordRequest{
		Kind: "HIGHSCHOOL", HighSchoolID: &schoolID, BirthDate: "2009-03-14", Level: "PREMIERE",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RecordToValidate, record.Validation)
	assert.Equal(t, 1, record.Version)
}

func TestRecordServiceSubmitPupilNeedsSchool(t *testing.T) {
	f := newRecordFixture(t)

	_, err := f.svc.Submit(context.Background(), "u1", SubmitRecordRequest{
		Kind: "HIGHSCHOOL", BirthDate: "2009-03-14",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRecordServiceValidate(t *testing.T) {
	f := newRecordFixture(t)
	f.repo.records["r1"] = models.StudentRecord{ID: "r1", UserID: "u1", Validation: models.RecordToValidate, Version: 1}

	updated, err := f.svc.Validate(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RecordValidated, updated.Validation)
	assert.NotNil(t, updated.ValidationDate)
	assert.Contains(t, f.notifier.validated, "r1")
}

func TestRecordServiceValidateWrongState(t *testing.T) {
	f := newRecordFixture(t)
	f.repo.records["r1"] = models.StudentRecord{ID: "r1", UserID: "u1", Validation: models.RecordValidated, Version: 1}

	_, err := f.svc.Validate(context.Background(), "r1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRecordServiceValidateStale(t *testing.T) {
	f := newRecordFixture(t)
	f.repo.records["r1"] = models.StudentRecord{ID: "r1", UserID: "u1", Validation: models.RecordToValidate, Version: 1}
	f.repo.staleOnSet = true

	_, err := f.svc.Validate(context.Background(), "r1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStaleState.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.notifier.validated)
}

func TestRecordServiceValidatePurgesPermanentAttachments(t *testing.T) {
	f := newRecordFixture(t)
	f.settings.purge = true
	expiry := time.Now().AddDate(1, 0, 0)
	f.repo.records["r1"] = models.StudentRecord{ID: "r1", UserID: "u1", Validation: models.RecordToValidate, Version: 1}
	f.repo.documents = map[string][]models.RecordDocument{"r1": {
		{ID: "d1", RecordID: "r1", FilePath: "docs/a.pdf"},
		{ID: "d2", RecordID: "r1", FilePath: "docs/b.pdf", ExpiryDate: &expiry},
	}}

	_, err := f.svc.Validate(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, f.repo.deletedDocs, "only attachments without expiry are purged")
	assert.Equal(t, []string{"docs/a.pdf"}, f.store.deleted)
}

func TestRecordServiceReject(t *testing.T) {
	f := newRecordFixture(t)
	f.repo.records["r1"] = models.StudentRecord{ID: "r1", UserID: "u1", Validation: models.RecordToValidate, Version: 1}

	updated, err := f.svc.Reject(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RecordRejected, updated.Validation)
	assert.NotNil(t, updated.RejectedDate)
	assert.Contains(t, f.notifier.rejected, "r1")
}

func TestRecordServiceInvalidateCancelsFutureRegistrations(t *testing.T) {
	f := newRecordFixture(t)
	f.repo.records["r1"] = models.StudentRecord{ID: "r1", UserID: "u1", Validation: models.RecordValidated, Version: 2}
	f.canceller.cancelled = []models.Immersion{{ID: "imm-1"}, {ID: "imm-2"}}

	updated, err := f.svc.Invalidate(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RecordToRevalidate, updated.Validation)
	require.Len(t, f.canceller.calls, 1)
	assert.Equal(t, "u1:"+models.SystemCancelMissingDocument, f.canceller.calls[0])
	assert.Contains(t, f.notifier.autoCancelled, "u1")
}

func TestRecordServiceInitializeForCompletion(t *testing.T) {
	f := newRecordFixture(t)
	f.repo.records["r1"] = models.StudentRecord{ID: "r1", UserID: "u1", Validation: models.RecordInitialized, Version: 1}

	require.NoError(t, f.svc.InitializeForCompletion(context.Background(), "u1"))
	assert.Equal(t, models.RecordToComplete, f.repo.records["r1"].Validation)

	// no record and wrong state are both silent no-ops
	require.NoError(t, f.svc.InitializeForCompletion(context.Background(), "ghost"))
	require.NoError(t, f.svc.InitializeForCompletion(context.Background(), "u1"))
}

func TestRecordServiceAttachDocument(t *testing.T) {
	f := newRecordFixture(t)
	f.repo.records["r1"] = models.StudentRecord{ID: "r1", UserID: "u1", Validation: models.RecordToComplete, Version: 1}

	doc, err := f.svc.AttachDocument(context.Background(), "r1", "Autorisation parentale", "autorisation.pdf", 1024,
		strings.NewReader("pdf"), nil)
	require.NoError(t, err)
	assert.Equal(t, "docs/autorisation.pdf", doc.FilePath)

	f.store.invalid = true
	_, err = f.svc.AttachDocument(context.Background(), "r1", "CV", "cv.exe", 1024, strings.NewReader("x"), nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRecordServiceRefreshDuplicates(t *testing.T) {
	f := newRecordFixture(t)
	f.repo.records["r1"] = models.StudentRecord{ID: "r1", UserID: "u1", Validation: models.RecordToValidate, Version: 1}
	f.repo.duplicates = map[string][]string{"r1": {"r2", "r3"}}

	ids, err := f.svc.RefreshDuplicates(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r3"}, ids)
	stored := f.repo.records["r1"]
	require.NotNil(t, stored.Duplicates)
	assert.JSONEq(t, `["r2","r3"]`, *stored.Duplicates)
}

func TestRecordServiceRefreshDuplicatesClearsStaleList(t *testing.T) {
	f := newRecordFixture(t)
	old := `["r9"]`
	f.repo.records["r1"] = models.StudentRecord{ID: "r1", UserID: "u1", Duplicates: &old, Version: 2}

	ids, err := f.svc.RefreshDuplicates(context.Background(), "r1")
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Nil(t, f.repo.records["r1"].Duplicates)
}

func TestRecordServiceSweepExpiredDocuments(t *testing.T) {
	f := newRecordFixture(t)
	f.repo.records["r1"] = models.StudentRecord{ID: "r1", UserID: "u1", Validation: models.RecordValidated, Version: 3}
	f.repo.expired = []models.RecordDocument{{ID: "d1", RecordID: "r1", Label: "Assurance"}}

	require.NoError(t, f.svc.SweepExpiredDocuments(context.Background()))
	assert.Equal(t, models.RecordToRevalidate, f.repo.records["r1"].Validation)
	assert.Contains(t, f.repo.renewalSent, "d1")
	assert.Contains(t, f.notifier.renewalDue, "d1")
}
