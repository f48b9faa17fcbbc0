package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newGroupRightsRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestGroupRightsRepositoryListGroupsWithPermissions(t *testing.T) {
	db, mock, cleanup := newGroupRightsRepoMock(t)
	defer cleanup()
	repo := NewGroupRightsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM auth_group ORDER BY name")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow("g1", "INTER").
			AddRow("g2", "REF-LYC"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE gp.group_id = $1 ORDER BY p.codename")).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"codename"}).AddRow("view_slot"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE gp.group_id = $1 ORDER BY p.codename")).
		WithArgs("g2").
		WillReturnRows(sqlmock.NewRows([]string{"codename"}).
			AddRow("change_record").AddRow("view_record"))

	rights, err := repo.ListGroupsWithPermissions(context.Background())
	require.NoError(t, err)
	require.Len(t, rights, 2)
	require.Equal(t, "INTER", rights[0].Group)
	require.Equal(t, []string{"view_slot"}, rights[0].Permissions)
	require.Equal(t, []string{"change_record", "view_record"}, rights[1].Permissions)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupRightsRepositoryAddPermissionToGroup(t *testing.T) {
	db, mock, cleanup := newGroupRightsRepoMock(t)
	defer cleanup()
	repo := NewGroupRightsRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO auth_group_permissions (group_id, permission_id)")).
		WithArgs("g1", "view_slot").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AddPermissionToGroup(context.Background(), "g1", "view_slot"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupRightsRepositoryAddUnknownCodename(t *testing.T) {
	db, mock, cleanup := newGroupRightsRepoMock(t)
	defer cleanup()
	repo := NewGroupRightsRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO auth_group_permissions (group_id, permission_id)")).
		WithArgs("g1", "ghost_permission").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AddPermissionToGroup(context.Background(), "g1", "ghost_permission")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ghost_permission")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupRightsRepositoryDeletePermission(t *testing.T) {
	db, mock, cleanup := newGroupRightsRepoMock(t)
	defer cleanup()
	repo := NewGroupRightsRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM auth_group_permissions WHERE permission_id = $1")).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM auth_permission WHERE id = $1")).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeletePermission(context.Background(), "p1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
