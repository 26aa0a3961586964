package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/formlane/forms-api/internal/models"
	appErrors "github.com/formlane/forms-api/pkg/errors"
)

type mockResultRepo struct {
	items      map[int64]*models.Result
	lastFilter models.ResultFilter
	approved   []int64
	deleted    []int64
}

func (m *mockResultRepo) FindByID(ctx context.Context, id int64) (*models.Result, error) {
	if r, ok := m.items[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockResultRepo) List(ctx context.Context, filter models.ResultFilter) ([]models.Result, int, error) {
	m.lastFilter = filter
	out := make([]models.Result, 0, len(m.items))
	for _, r := range m.items {
		if filter.Approved != nil && r.Approved != *filter.Approved {
			continue
		}
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (m *mockResultRepo) Approve(ctx context.Context, id int64) error {
	m.approved = append(m.approved, id)
	return nil
}

func (m *mockResultRepo) Delete(ctx context.Context, id int64) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func newResultFixture(form *models.Form, results map[int64]*models.Result, stored map[int64]map[int64]string) (*ResultService, *mockResultRepo) {
	repo := &mockResultRepo{items: results}
	forms := &mockFormRepo{items: map[string]*models.Form{form.ID: form}}
	fieldRepo := &mockFormFieldRepo{defs: map[string][]models.FieldDef{form.ID: contactDefs()}}
	values := &mockFormValueRepo{values: stored}
	return NewResultService(forms, fieldRepo, repo, values, zap.NewNop()), repo
}

func TestResultServiceListRequiresResultsAccess(t *testing.T) {
	service, _ := newResultFixture(contactForm(), nil, nil)

	_, _, err := service.List(context.Background(), memberViewer(), models.ResultFilter{FormID: "contact"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestResultServiceListNonAdminSeesApprovedOnly(t *testing.T) {
	form := contactForm()
	form.ResultsGID = 13
	service, repo := newResultFixture(form, map[int64]*models.Result{
		1: {ID: 1, FormID: "contact", UID: "a", Approved: true},
		2: {ID: 2, FormID: "contact", UID: "b", Approved: false},
	}, nil)

	results, pagination, err := service.List(context.Background(), memberViewer(), models.ResultFilter{FormID: "contact"})
	require.NoError(t, err)
	require.NotNil(t, repo.lastFilter.Approved)
	assert.True(t, *repo.lastFilter.Approved)
	assert.Len(t, results, 1)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestResultServiceListAdminSeesPending(t *testing.T) {
	service, repo := newResultFixture(contactForm(), map[int64]*models.Result{
		1: {ID: 1, FormID: "contact", Approved: true},
		2: {ID: 2, FormID: "contact", Approved: false},
	}, nil)

	results, _, err := service.List(context.Background(), rootViewer(), models.ResultFilter{FormID: "contact"})
	require.NoError(t, err)
	assert.Nil(t, repo.lastFilter.Approved)
	assert.Len(t, results, 2)
}

func TestResultServiceGetByOwner(t *testing.T) {
	service, _ := newResultFixture(contactForm(), map[int64]*models.Result{
		42: {ID: 42, FormID: "contact", UID: "u1", Approved: true},
	}, map[int64]map[int64]string{42: {1: "Ada Lovelace", 2: "hello"}})

	detail, err := service.Get(context.Background(), memberViewer(), 42, "")
	require.NoError(t, err)
	require.Len(t, detail.Values, 2)
	assert.Equal(t, ResultValue{FieldID: 1, Name: "fullname", Prompt: "Full name", Value: "Ada Lovelace"}, detail.Values[0])
}

func TestResultServiceGetByToken(t *testing.T) {
	service, _ := newResultFixture(contactForm(), map[int64]*models.Result{
		42: {ID: 42, FormID: "contact", UID: models.AnonymousUID, Token: "secret", Approved: true},
	}, map[int64]map[int64]string{42: {1: "Ada Lovelace"}})

	_, err := service.Get(context.Background(), anonViewer(), 42, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	detail, err := service.Get(context.Background(), anonViewer(), 42, "secret")
	require.NoError(t, err)
	require.Len(t, detail.Values, 1)
	assert.Equal(t, "Ada Lovelace", detail.Values[0].Value)
}

func TestResultServiceGetFieldLevelPermissions(t *testing.T) {
	// the viewer holds the form's results permission but not the fields',
	// so the listing shows the result with its values filtered out
	form := contactForm()
	form.ResultsGID = 13
	service, _ := newResultFixture(form, map[int64]*models.Result{
		42: {ID: 42, FormID: "contact", UID: "someone-else", Approved: true},
	}, map[int64]map[int64]string{42: {1: "Ada Lovelace", 2: "hello"}})

	detail, err := service.Get(context.Background(), memberViewer(), 42, "")
	require.NoError(t, err)
	assert.Empty(t, detail.Values)
}

func TestResultServiceApprove(t *testing.T) {
	service, repo := newResultFixture(contactForm(), map[int64]*models.Result{
		42: {ID: 42, FormID: "contact", UID: "u1"},
	}, nil)

	err := service.Approve(context.Background(), memberViewer(), 42)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, service.Approve(context.Background(), rootViewer(), 42))
	assert.Equal(t, []int64{42}, repo.approved)
}

func TestResultServiceDelete(t *testing.T) {
	service, repo := newResultFixture(contactForm(), map[int64]*models.Result{
		42: {ID: 42, FormID: "contact", UID: "u1"},
	}, nil)

	err := service.Delete(context.Background(), memberViewer(), 42)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, service.Delete(context.Background(), rootViewer(), 42))
	assert.Equal(t, []int64{42}, repo.deleted)
}

func TestResultServiceGetUnknownResult(t *testing.T) {
	service, _ := newResultFixture(contactForm(), nil, nil)

	_, err := service.Get(context.Background(), rootViewer(), 77, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
