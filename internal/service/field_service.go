package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/formlane/forms-api/internal/fields"
	"github.com/formlane/forms-api/internal/models"
	appErrors "github.com/formlane/forms-api/pkg/errors"
)

type fieldRepository interface {
	ListByForm(ctx context.Context, formID string) ([]models.FieldDef, error)
	FindByID(ctx context.Context, id int64) (*models.FieldDef, error)
	ExistsByName(ctx context.Context, formID, name string, excludeID int64) (bool, error)
	Create(ctx context.Context, def *models.FieldDef) error
	Update(ctx context.Context, def *models.FieldDef) error
	Move(ctx context.Context, formID string, fieldID int64, direction string) error
	Reorder(ctx context.Context, formID string) error
	Delete(ctx context.Context, fieldID int64) error
}

type fieldFormLoader interface {
	FindByID(ctx context.Context, id string) (*models.Form, error)
}

// SaveFieldRequest is the payload for creating or updating a field
// definition. Options carries the raw type-specific options bag; a
// form-encoded definition post instead supplies OptionsPost, and the field
// type assembles the bag from its discrete keys.
type SaveFieldRequest struct {
	Name       string          `json:"field_name" validate:"required,max=128"`
	Type       string          `json:"type" validate:"required"`
	Enabled    bool            `json:"enabled"`
	Access     int             `json:"access" validate:"gte=0,lte=3"`
	Prompt     string          `json:"prompt" validate:"max=255"`
	Options    json.RawMessage `json:"options"`
	Help       string          `json:"help_msg"`
	FillGID    int64           `json:"fill_gid" validate:"gte=0"`
	ResultsGID int64           `json:"results_gid" validate:"gte=0"`

	OptionsPost url.Values `json:"-"`
}

// FieldService orchestrates field definition administration.
type FieldService struct {
	repo      fieldRepository
	forms     fieldFormLoader
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFieldService constructs a FieldService.
func NewFieldService(repo fieldRepository, forms fieldFormLoader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *FieldService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FieldService{repo: repo, forms: forms, cache: cache, validator: validate, logger: logger}
}

// List returns every field of a form in display order.
func (s *FieldService) List(ctx context.Context, viewer models.Viewer, formID string) ([]models.FieldDef, error) {
	form, err := s.adminForm(ctx, viewer, formID)
	if err != nil {
		return nil, err
	}
	defs, err := s.repo.ListByForm(ctx, form.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fields")
	}
	return defs, nil
}

// Get returns one field definition.
func (s *FieldService) Get(ctx context.Context, viewer models.Viewer, formID string, fieldID int64) (*models.FieldDef, error) {
	if _, err := s.adminForm(ctx, viewer, formID); err != nil {
		return nil, err
	}
	return s.loadOwned(ctx, formID, fieldID)
}

// Create adds a field to a form, placing it last.
func (s *FieldService) Create(ctx context.Context, viewer models.Viewer, formID string, req SaveFieldRequest) (*models.FieldDef, error) {
	form, err := s.adminForm(ctx, viewer, formID)
	if err != nil {
		return nil, err
	}
	def, err := s.buildDef(ctx, form, 0, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, def); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create field")
	}
	s.invalidate(ctx, form.ID)
	return def, nil
}

// Update modifies a field definition.
func (s *FieldService) Update(ctx context.Context, viewer models.Viewer, formID string, fieldID int64, req SaveFieldRequest) (*models.FieldDef, error) {
	form, err := s.adminForm(ctx, viewer, formID)
	if err != nil {
		return nil, err
	}
	existing, err := s.loadOwned(ctx, formID, fieldID)
	if err != nil {
		return nil, err
	}
	def, err := s.buildDef(ctx, form, fieldID, req)
	if err != nil {
		return nil, err
	}
	def.ID = existing.ID
	def.SortKey = existing.SortKey
	if err := s.repo.Update(ctx, def); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update field")
	}
	s.invalidate(ctx, form.ID)
	return def, nil
}

// Move shifts a field one position up or down.
func (s *FieldService) Move(ctx context.Context, viewer models.Viewer, formID string, fieldID int64, direction string) error {
	form, err := s.adminForm(ctx, viewer, formID)
	if err != nil {
		return err
	}
	if _, err := s.loadOwned(ctx, formID, fieldID); err != nil {
		return err
	}
	if err := s.repo.Move(ctx, form.ID, fieldID, direction); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to move field")
	}
	s.invalidate(ctx, form.ID)
	return nil
}

// Reorder renormalizes the form's field sort keys.
func (s *FieldService) Reorder(ctx context.Context, viewer models.Viewer, formID string) error {
	form, err := s.adminForm(ctx, viewer, formID)
	if err != nil {
		return err
	}
	if err := s.repo.Reorder(ctx, form.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reorder fields")
	}
	s.invalidate(ctx, form.ID)
	return nil
}

// Delete removes a field definition and purges its stored values.
func (s *FieldService) Delete(ctx context.Context, viewer models.Viewer, formID string, fieldID int64) error {
	form, err := s.adminForm(ctx, viewer, formID)
	if err != nil {
		return err
	}
	if _, err := s.loadOwned(ctx, formID, fieldID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, fieldID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete field")
	}
	s.invalidate(ctx, form.ID)
	return nil
}

func (s *FieldService) buildDef(ctx context.Context, form *models.Form, excludeID int64, req SaveFieldRequest) (*models.FieldDef, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid field payload")
	}

	typ := models.FieldType(strings.TrimSpace(req.Type))
	if !typ.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnknownFieldType, "unknown field type "+req.Type)
	}

	name := SanitizeID(req.Name)
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "field name must contain letters or digits")
	}
	taken, err := s.repo.ExistsByName(ctx, form.ID, name, excludeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check field name")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrDuplicateFieldName, "field name already used on this form")
	}

	def := &models.FieldDef{
		FormID:     form.ID,
		Name:       name,
		Type:       typ,
		Enabled:    req.Enabled,
		Access:     models.FieldAccess(req.Access),
		Prompt:     strings.TrimSpace(req.Prompt),
		Options:    req.Options,
		Help:       req.Help,
		FillGID:    req.FillGID,
		ResultsGID: req.ResultsGID,
	}
	if def.FillGID == 0 {
		def.FillGID = form.FillGID
	}
	if def.ResultsGID == 0 {
		def.ResultsGID = form.ResultsGID
	}
	if len(def.Options) == 0 {
		def.Options = json.RawMessage(`{}`)
	}

	// hydrating catches options bags the field type cannot work with
	f, err := fields.New(def)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid field definition")
	}

	// form-encoded definition posts carry their options as discrete keys
	if len(req.Options) == 0 && len(req.OptionsPost) > 0 {
		bag, err := f.OptionsFromDefinition(req.OptionsPost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid field options")
		}
		def.Options = bag
		if _, err := fields.New(def); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid field definition")
		}
	}
	return def, nil
}

func (s *FieldService) adminForm(ctx context.Context, viewer models.Viewer, formID string) (*models.Form, error) {
	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "form not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}
	if !HasAdminAccess(viewer, form) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you may not edit this form")
	}
	return form, nil
}

func (s *FieldService) loadOwned(ctx context.Context, formID string, fieldID int64) (*models.FieldDef, error) {
	def, err := s.repo.FindByID(ctx, fieldID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "field not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load field")
	}
	if def.FormID != formID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "field not found on this form")
	}
	return def, nil
}

func (s *FieldService) invalidate(ctx context.Context, formID string) {
	if err := s.cache.Invalidate(ctx, FormPattern(formID)); err != nil {
		s.logger.Warn("field cache invalidation failed", zap.String("form_id", formID), zap.Error(err))
	}
}
