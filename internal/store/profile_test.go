package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/solodesign/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var profileColumns = []string{"id", "user_id", "full_name", "role", "created_at", "updated_at"}

func newProfileRepoWithMock(t *testing.T) (*ProfileRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewProfileRepository(db), mock
}

func TestProfileGetByUserID(t *testing.T) {
	repo, mock := newProfileRepoWithMock(t)
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)SELECT\s+id,\s*user_id,\s*full_name,\s*role.*FROM\s+profiles\s+WHERE\s+user_id\s*=\s*\$1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(profileColumns).AddRow("p-1", "user-1", "Ada", "admin", created, created))

	profile, err := repo.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "p-1", profile.ID)
	assert.Equal(t, types.RoleAdmin, profile.Role)
	require.NotNil(t, profile.FullName)
	assert.Equal(t, "Ada", *profile.FullName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileGetByUserIDNullName(t *testing.T) {
	repo, mock := newProfileRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM\s+profiles`).
		WithArgs("user-2").
		WillReturnRows(sqlmock.NewRows(profileColumns).AddRow("p-2", "user-2", nil, "client", now, now))

	profile, err := repo.GetByUserID(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Nil(t, profile.FullName)
	assert.Equal(t, types.RoleClient, profile.Role)
}

func TestProfileGetByUserIDMissing(t *testing.T) {
	repo, mock := newProfileRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+profiles`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(profileColumns))

	_, err := repo.GetByUserID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProfileGetByUserIDDatabaseError(t *testing.T) {
	repo, mock := newProfileRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+profiles`).
		WithArgs("user-1").
		WillReturnError(errors.New("db down"))

	_, err := repo.GetByUserID(context.Background(), "user-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestProfileUpsert(t *testing.T) {
	repo, mock := newProfileRepoWithMock(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	name := "Grace"

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+profiles.*ON\s+CONFLICT\s+\(user_id\)\s+DO\s+UPDATE.*RETURNING\s+id,\s*created_at`).
		WithArgs("user-3", "Grace", "client", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("p-3", created))

	profile, err := repo.Upsert(context.Background(), types.Profile{UserID: "user-3", FullName: &name, Role: types.RoleClient})
	require.NoError(t, err)
	assert.Equal(t, "p-3", profile.ID)
	assert.Equal(t, created, profile.CreatedAt)
	assert.False(t, profile.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileList(t *testing.T) {
	repo, mock := newProfileRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)FROM\s+profiles\s+ORDER\s+BY\s+created_at\s+OFFSET\s+\$1\s+LIMIT\s+\$2`).
		WithArgs(0, 20).
		WillReturnRows(sqlmock.NewRows(profileColumns).
			AddRow("p-1", "user-1", "Ada", "admin", now, now).
			AddRow("p-2", "user-2", nil, "client", now, now))

	profiles, err := repo.List(context.Background(), -5, 0)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "user-2", profiles[1].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileListScanError(t *testing.T) {
	repo, mock := newProfileRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+profiles`).
		WithArgs(10, 5).
		WillReturnError(sql.ErrConnDone)

	_, err := repo.List(context.Background(), 10, 5)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}
