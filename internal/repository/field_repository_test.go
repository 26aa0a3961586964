package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formlane/forms-api/internal/models"
)

func newFieldRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func fieldRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"field_id", "form_id", "field_name", "type", "enabled", "access", "prompt", "options", "orderby", "help_msg", "fill_gid", "results_gid",
	}).
		AddRow(int64(1), "contact", "name", "text", true, 3, "Your name", []byte(`{"size":40}`), 10, "", int64(2), int64(1)).
		AddRow(int64(2), "contact", "color", "radio", true, 0, "Favorite color", []byte(`{"values":["Red","Blue"]}`), 20, "", int64(2), int64(1))
}

func TestFieldRepositoryListByForm(t *testing.T) {
	db, mock, cleanup := newFieldRepoMock(t)
	defer cleanup()
	repo := NewFieldRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT field_id, form_id, field_name, type, enabled, access, prompt, options, orderby, help_msg, fill_gid, results_gid FROM fields WHERE form_id = $1 ORDER BY orderby ASC, field_id ASC")).
		WithArgs("contact").
		WillReturnRows(fieldRows())

	defs, err := repo.ListByForm(context.Background(), "contact")
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "name", defs[0].Name)
	assert.Equal(t, models.TypeRadio, defs[1].Type)
	assert.Equal(t, 20, defs[1].SortKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFieldRepositoryCreateAssignsSortKey(t *testing.T) {
	db, mock, cleanup := newFieldRepoMock(t)
	defer cleanup()
	repo := NewFieldRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(orderby) FROM fields WHERE form_id = $1")).
		WithArgs("contact").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(30))
	mock.ExpectQuery("INSERT INTO fields").
		WillReturnRows(sqlmock.NewRows([]string{"field_id"}).AddRow(int64(7)))

	def := &models.FieldDef{FormID: "contact", Name: "email", Type: models.TypeText, Enabled: true}
	require.NoError(t, repo.Create(context.Background(), def))
	assert.Equal(t, int64(7), def.ID)
	assert.Equal(t, 40, def.SortKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFieldRepositoryExistsByName(t *testing.T) {
	db, mock, cleanup := newFieldRepoMock(t)
	defer cleanup()
	repo := NewFieldRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM fields WHERE form_id = $1 AND field_name = $2 AND field_id <> $3 LIMIT 1")).
		WithArgs("contact", "name", int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	exists, err := repo.ExistsByName(context.Background(), "contact", "name", 9)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFieldRepositoryMoveUpRenormalizes(t *testing.T) {
	db, mock, cleanup := newFieldRepoMock(t)
	defer cleanup()
	repo := NewFieldRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE fields SET orderby = orderby + $3 WHERE form_id = $1 AND field_id = $2")).
		WithArgs("contact", int64(2), -11).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT field_id FROM fields WHERE form_id = $1 ORDER BY orderby ASC, field_id ASC")).
		WithArgs("contact").
		WillReturnRows(sqlmock.NewRows([]string{"field_id"}).AddRow(int64(2)).AddRow(int64(1)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fields SET orderby = $2 WHERE field_id = $1")).
		WithArgs(int64(2), 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fields SET orderby = $2 WHERE field_id = $1")).
		WithArgs(int64(1), 20).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Move(context.Background(), "contact", 2, "up"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFieldRepositoryMoveRejectsUnknownDirection(t *testing.T) {
	db, _, cleanup := newFieldRepoMock(t)
	defer cleanup()
	repo := NewFieldRepository(db)

	err := repo.Move(context.Background(), "contact", 2, "sideways")
	require.Error(t, err)
}

func TestFieldRepositoryDeletePurgesValues(t *testing.T) {
	db, mock, cleanup := newFieldRepoMock(t)
	defer cleanup()
	repo := NewFieldRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM field_values WHERE field_id = $1")).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM fields WHERE field_id = $1")).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}
