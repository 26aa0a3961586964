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

type mockCategoryRepo struct {
	items   map[int64]*models.Category
	used    map[int64]bool
	nextID  int64
	deleted []int64
}

func (m *mockCategoryRepo) GetAll(ctx context.Context) ([]models.Category, error) {
	out := make([]models.Category, 0, len(m.items))
	for _, c := range m.items {
		out = append(out, *c)
	}
	return out, nil
}

func (m *mockCategoryRepo) FindByID(ctx context.Context, id int64) (*models.Category, error) {
	if c, ok := m.items[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCategoryRepo) Create(ctx context.Context, cat *models.Category) error {
	if m.items == nil {
		m.items = make(map[int64]*models.Category)
	}
	m.nextID++
	cat.ID = m.nextID + int64(len(m.items))
	cp := *cat
	m.items[cat.ID] = &cp
	return nil
}

func (m *mockCategoryRepo) Update(ctx context.Context, cat *models.Category) error {
	cp := *cat
	m.items[cat.ID] = &cp
	return nil
}

func (m *mockCategoryRepo) Delete(ctx context.Context, id int64) error {
	m.deleted = append(m.deleted, id)
	delete(m.items, id)
	return nil
}

func (m *mockCategoryRepo) IsUsed(ctx context.Context, id int64) (bool, error) {
	return m.used[id], nil
}

func defaultCategories() map[int64]*models.Category {
	return map[int64]*models.Category{
		models.DefaultCategoryID: {ID: models.DefaultCategoryID, Name: "Default"},
		2:                        {ID: 2, Name: "Events", NotifyGID: 13},
	}
}

func TestCategoryServiceRequiresRoot(t *testing.T) {
	service := NewCategoryService(&mockCategoryRepo{items: defaultCategories()}, nil, zap.NewNop())

	_, err := service.List(context.Background(), memberViewer())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = service.Create(context.Background(), memberViewer(), SaveCategoryRequest{Name: "New"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCategoryServiceListIncludesUsage(t *testing.T) {
	repo := &mockCategoryRepo{items: defaultCategories(), used: map[int64]bool{models.DefaultCategoryID: true}}
	service := NewCategoryService(repo, nil, zap.NewNop())

	cats, err := service.List(context.Background(), rootViewer())
	require.NoError(t, err)
	require.Len(t, cats, 2)
	byID := map[int64]CategoryInfo{}
	for _, c := range cats {
		byID[c.ID] = c
	}
	assert.True(t, byID[models.DefaultCategoryID].InUse)
	assert.False(t, byID[2].InUse)
}

func TestCategoryServiceCreate(t *testing.T) {
	repo := &mockCategoryRepo{items: defaultCategories()}
	service := NewCategoryService(repo, nil, zap.NewNop())

	cat, err := service.Create(context.Background(), rootViewer(), SaveCategoryRequest{Name: "  Surveys  ", NotifyGID: 13})
	require.NoError(t, err)
	assert.Equal(t, "Surveys", cat.Name)
	assert.NotZero(t, cat.ID)
}

func TestCategoryServiceCreateValidation(t *testing.T) {
	service := NewCategoryService(&mockCategoryRepo{}, nil, zap.NewNop())

	_, err := service.Create(context.Background(), rootViewer(), SaveCategoryRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCategoryServiceUpdate(t *testing.T) {
	repo := &mockCategoryRepo{items: defaultCategories()}
	service := NewCategoryService(repo, nil, zap.NewNop())

	cat, err := service.Update(context.Background(), rootViewer(), 2, SaveCategoryRequest{Name: "Meetups", NotifyUID: "owner"})
	require.NoError(t, err)
	assert.Equal(t, "Meetups", cat.Name)
	assert.Equal(t, "owner", cat.NotifyUID)
	assert.Equal(t, "Meetups", repo.items[2].Name)
}

func TestCategoryServiceDeleteProtectsDefault(t *testing.T) {
	repo := &mockCategoryRepo{items: defaultCategories()}
	service := NewCategoryService(repo, nil, zap.NewNop())

	err := service.Delete(context.Background(), rootViewer(), models.DefaultCategoryID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrProtectedCategory.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)

	require.NoError(t, service.Delete(context.Background(), rootViewer(), 2))
	assert.Equal(t, []int64{2}, repo.deleted)
}

func TestCategoryServiceDeleteUnknown(t *testing.T) {
	service := NewCategoryService(&mockCategoryRepo{items: defaultCategories()}, nil, zap.NewNop())

	err := service.Delete(context.Background(), rootViewer(), 99)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
