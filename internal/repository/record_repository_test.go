package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/immersup/immersup-api/internal/models"
	appErrors "github.com/immersup/immersup-api/pkg/errors"
)

func newRecordRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func recordRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "kind", "user_id", "highschool_id", "birth_date", "phone",
		"level", "class_name", "bachelor_type", "bachelor_mention", "validation", "validation_date",
		"rejected_date", "duplicates", "disclosure_agreed", "version", "created_at", "updated_at"})
}

func TestRecordRepositorySetValidation(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE core_record SET validation = $3")).
		WithArgs("r1", 2, models.RecordValidated, sqlmock.AnyArg(), nil, sqlmock.AnyArg()).
		WillReturnRows(recordRows().AddRow("r1", models.RecordKindHighSchool, "pupil-1", "hs1", now, "0600000000",
			"PREMIERE", "1G2", nil, nil, models.RecordValidated, now, nil, nil, true, 3, now, now))

	record, err := repo.SetValidation(context.Background(), "r1", 2, models.RecordValidated)
	require.NoError(t, err)
	require.Equal(t, models.RecordValidated, record.Validation)
	require.Equal(t, 3, record.Version)
	require.NotNil(t, record.ValidationDate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositorySetValidationRewritesDates(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)
	now := time.Now()

	// leaving Validated clears validation_date
	mock.ExpectQuery(regexp.QuoteMeta("validation_date = $4, rejected_date = $5")).
		WithArgs("r1", 3, models.RecordToRevalidate, nil, nil, sqlmock.AnyArg()).
		WillReturnRows(recordRows().AddRow("r1", models.RecordKindHighSchool, "pupil-1", "hs1", now, "0600000000",
			"PREMIERE", "1G2", nil, nil, models.RecordToRevalidate, nil, nil, nil, true, 4, now, now))

	record, err := repo.SetValidation(context.Background(), "r1", 3, models.RecordToRevalidate)
	require.NoError(t, err)
	require.Nil(t, record.ValidationDate)
	require.Nil(t, record.RejectedDate)

	// a later rejection stamps rejected_date only
	mock.ExpectQuery(regexp.QuoteMeta("validation_date = $4, rejected_date = $5")).
		WithArgs("r1", 4, models.RecordRejected, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(recordRows().AddRow("r1", models.RecordKindHighSchool, "pupil-1", "hs1", now, "0600000000",
			"PREMIERE", "1G2", nil, nil, models.RecordRejected, nil, now, nil, true, 5, now, now))

	record, err = repo.SetValidation(context.Background(), "r1", 4, models.RecordRejected)
	require.NoError(t, err)
	require.Nil(t, record.ValidationDate)
	require.NotNil(t, record.RejectedDate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositorySetValidationStale(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE core_record SET validation = $3")).
		WithArgs("r1", 2, models.RecordValidated, sqlmock.AnyArg(), nil, sqlmock.AnyArg()).
		WillReturnRows(recordRows())

	_, err := repo.SetValidation(context.Background(), "r1", 2, models.RecordValidated)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrStaleState.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryUpdateStale(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE core_record SET highschool_id =")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	hs := "hs1"
	err := repo.Update(context.Background(), &models.StudentRecord{
		ID: "r1", Kind: models.RecordKindHighSchool, UserID: "pupil-1", HighSchoolID: &hs,
		Level: models.LevelPremiere, Validation: models.RecordToValidate, Version: 2,
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrStaleState.Code, appErrors.FromError(err).Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryUpdateBumpsVersion(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE core_record SET highschool_id =")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	record := &models.StudentRecord{
		ID: "r1", Kind: models.RecordKindHighSchool, UserID: "pupil-1",
		Level: models.LevelPremiere, Validation: models.RecordToValidate, Version: 2,
	}
	require.NoError(t, repo.Update(context.Background(), record))
	require.Equal(t, 3, record.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryListByValidationScoped(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM core_record WHERE validation = $1 AND highschool_id = $2")).
		WithArgs(models.RecordToValidate, "hs1").
		WillReturnRows(recordRows().AddRow("r1", models.RecordKindHighSchool, "pupil-1", "hs1", now, "0600000000",
			"PREMIERE", "1G2", nil, nil, models.RecordToValidate, nil, nil, nil, true, 1, now, now))

	hs := "hs1"
	records, err := repo.ListByValidation(context.Background(), models.RecordToValidate, &hs)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryFindDuplicateIDs(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("LOWER(other_user.last_name) = LOWER(ref_user.last_name)")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("r2").AddRow("r3"))

	ids, err := repo.FindDuplicateIDs(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, []string{"r2", "r3"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryListExpiredDocuments(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	now := time.Now()
	expired := now.AddDate(0, 0, -3)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE expiry_date IS NOT NULL AND expiry_date < $1 AND renewal_email_sent = FALSE")).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "record_id", "label", "file_path", "expiry_date", "renewal_email_sent", "created_at"}).
			AddRow("d1", "r1", "Autorisation parentale", "docs/a.pdf", expired, false, now))

	docs, err := repo.ListExpiredDocuments(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "Autorisation parentale", docs[0].Label)
	require.NoError(t, mock.ExpectationsWereMet())
}
