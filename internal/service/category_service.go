package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/formlane/forms-api/internal/models"
	appErrors "github.com/formlane/forms-api/pkg/errors"
)

type categoryRepository interface {
	GetAll(ctx context.Context) ([]models.Category, error)
	FindByID(ctx context.Context, id int64) (*models.Category, error)
	Create(ctx context.Context, cat *models.Category) error
	Update(ctx context.Context, cat *models.Category) error
	Delete(ctx context.Context, id int64) error
	IsUsed(ctx context.Context, id int64) (bool, error)
}

// SaveCategoryRequest is the payload for creating or updating a category.
type SaveCategoryRequest struct {
	Name      string `json:"cat_name" validate:"required,max=255"`
	NotifyUID string `json:"email_uid" validate:"omitempty,max=128"`
	NotifyGID int64  `json:"email_gid" validate:"gte=0"`
}

// CategoryInfo is a category plus whether forms still reference it.
type CategoryInfo struct {
	models.Category
	InUse bool `json:"in_use"`
}

// CategoryService orchestrates category administration.
type CategoryService struct {
	repo      categoryRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCategoryService constructs a CategoryService.
func NewCategoryService(repo categoryRepository, validate *validator.Validate, logger *zap.Logger) *CategoryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryService{repo: repo, validator: validate, logger: logger}
}

// List returns every category with its usage flag.
func (s *CategoryService) List(ctx context.Context, viewer models.Viewer) ([]CategoryInfo, error) {
	if !viewer.IsRoot() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "category administration requires the admin group")
	}
	cats, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list categories")
	}
	out := make([]CategoryInfo, 0, len(cats))
	for _, cat := range cats {
		used, err := s.repo.IsUsed(ctx, cat.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check category usage")
		}
		out = append(out, CategoryInfo{Category: cat, InUse: used})
	}
	return out, nil
}

// Get returns one category.
func (s *CategoryService) Get(ctx context.Context, viewer models.Viewer, id int64) (*models.Category, error) {
	if !viewer.IsRoot() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "category administration requires the admin group")
	}
	cat, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category")
	}
	return cat, nil
}

// Create registers a new category.
func (s *CategoryService) Create(ctx context.Context, viewer models.Viewer, req SaveCategoryRequest) (*models.Category, error) {
	if !viewer.IsRoot() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "category administration requires the admin group")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid category payload")
	}

	cat := &models.Category{
		Name:      strings.TrimSpace(req.Name),
		NotifyUID: strings.TrimSpace(req.NotifyUID),
		NotifyGID: req.NotifyGID,
	}
	if err := s.repo.Create(ctx, cat); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create category")
	}
	return cat, nil
}

// Update modifies an existing category.
func (s *CategoryService) Update(ctx context.Context, viewer models.Viewer, id int64, req SaveCategoryRequest) (*models.Category, error) {
	if !viewer.IsRoot() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "category administration requires the admin group")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid category payload")
	}

	cat, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category")
	}

	cat.Name = strings.TrimSpace(req.Name)
	cat.NotifyUID = strings.TrimSpace(req.NotifyUID)
	cat.NotifyGID = req.NotifyGID

	if err := s.repo.Update(ctx, cat); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update category")
	}
	return cat, nil
}

// Delete removes a category. The default category is protected; forms left
// pointing at a removed category keep their stale reference, which the list
// endpoint surfaces through the in_use flag beforehand.
func (s *CategoryService) Delete(ctx context.Context, viewer models.Viewer, id int64) error {
	if !viewer.IsRoot() {
		return appErrors.Clone(appErrors.ErrForbidden, "category administration requires the admin group")
	}
	if id == models.DefaultCategoryID {
		return appErrors.Clone(appErrors.ErrProtectedCategory, "the default category cannot be deleted")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "category not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load category")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete category")
	}
	return nil
}
