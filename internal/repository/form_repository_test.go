package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formlane/forms-api/internal/models"
)

func newFormRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func formRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"form_id", "category_id", "form_name", "introtext", "submit_msg", "noaccess_msg", "noedit_msg", "max_submit_msg",
		"owner_id", "group_id", "fill_gid", "results_gid", "enabled", "req_approval", "onetime", "max_submit",
		"onsubmit", "email", "redirect", "captcha", "inblock", "sub_type", "created_at", "updated_at",
	}).AddRow(
		"contact", int64(1), "Contact Us", "", "Thanks", "", "", "",
		"u1", int64(1), int64(2), int64(1), true, false, 0, 0,
		1, "", "", false, false, "regular", time.Now(), time.Now(),
	)
}

func TestFormRepositoryList(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM forms WHERE 1=1 ORDER BY form_name ASC LIMIT 20 OFFSET 0").
		WillReturnRows(formRow())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM forms WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	forms, total, err := repo.List(context.Background(), models.FormFilter{})
	require.NoError(t, err)
	assert.Len(t, forms, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "contact", forms[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryListFiltersAndRejectsUnknownSort(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	enabled := true
	// an unrecognized sort column falls back to form_name
	mock.ExpectQuery("SELECT (.+) FROM forms WHERE 1=1 AND enabled = \\$1 ORDER BY form_name ASC").
		WithArgs(true).
		WillReturnRows(formRow())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM forms WHERE 1=1 AND enabled = $1")).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, _, err := repo.List(context.Background(), models.FormFilter{Enabled: &enabled, SortBy: "owner_id; DROP TABLE forms"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryExistsByID(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM forms WHERE form_id = $1 LIMIT 1")).
		WithArgs("contact").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	exists, err := repo.ExistsByID(context.Background(), "contact")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	mock.ExpectExec("INSERT INTO forms").
		WillReturnResult(sqlmock.NewResult(1, 1))

	form := &models.Form{ID: "contact", Name: "Contact Us", CategoryID: 1}
	require.NoError(t, repo.Create(context.Background(), form))
	assert.False(t, form.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryRenameCascades(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE forms SET form_id = $2 WHERE form_id = $1")).
		WithArgs("old", "new").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fields SET form_id = $2 WHERE form_id = $1")).
		WithArgs("old", "new").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE results SET form_id = $2 WHERE form_id = $1")).
		WithArgs("old", "new").
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	require.NoError(t, repo.Rename(context.Background(), "old", "new"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryDeleteCascades(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM field_values WHERE result_id IN").
		WithArgs("contact").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM results WHERE form_id = $1")).
		WithArgs("contact").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM fields WHERE form_id = $1")).
		WithArgs("contact").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM forms WHERE form_id = $1")).
		WithArgs("contact").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "contact"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryResetChildPermissions(t *testing.T) {
	db, mock, cleanup := newFormRepoMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE fields SET fill_gid = $2, results_gid = $3 WHERE form_id = $1")).
		WithArgs("contact", int64(2), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	require.NoError(t, repo.ResetChildPermissions(context.Background(), "contact", 2, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}
