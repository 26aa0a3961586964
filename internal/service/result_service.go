package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/formlane/forms-api/internal/fields"
	"github.com/formlane/forms-api/internal/models"
	appErrors "github.com/formlane/forms-api/pkg/errors"
)

type resultRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Result, error)
	List(ctx context.Context, filter models.ResultFilter) ([]models.Result, int, error)
	Approve(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// ResultValue is one field's stored value resolved for display.
type ResultValue struct {
	FieldID int64  `json:"field_id"`
	Name    string `json:"name"`
	Prompt  string `json:"prompt"`
	Value   string `json:"value"`
}

// ResultDetail is one submission with its values hydrated through the
// field pipeline, so enum labels, dates and computed fields display the
// same way everywhere.
type ResultDetail struct {
	models.Result
	Values []ResultValue `json:"values"`
}

// ResultService serves stored submissions to result viewers.
type ResultService struct {
	forms   formRepository
	fields  submissionFieldRepository
	results resultRepository
	values  formValueRepository
	logger  *zap.Logger
}

// NewResultService constructs a ResultService.
func NewResultService(forms formRepository, fieldSrc submissionFieldRepository, results resultRepository, values formValueRepository, logger *zap.Logger) *ResultService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultService{forms: forms, fields: fieldSrc, results: results, values: values, logger: logger}
}

// List returns submissions of a form for viewers with results access.
// Non-moderators only see approved results.
func (s *ResultService) List(ctx context.Context, viewer models.Viewer, filter models.ResultFilter) ([]models.Result, *models.Pagination, error) {
	form, err := s.loadForm(ctx, filter.FormID)
	if err != nil {
		return nil, nil, err
	}
	if !CanViewResults(viewer, form) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "you may not view results of this form")
	}
	if !HasAdminAccess(viewer, form) {
		approved := true
		filter.Approved = &approved
	}

	results, total, err := s.results.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list results")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return results, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one submission with display-ready values. A matching
// capability token grants access without results-group membership, which
// lets anonymous submitters review their own entry.
func (s *ResultService) Get(ctx context.Context, viewer models.Viewer, resultID int64, token string) (*ResultDetail, error) {
	result, err := s.loadResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	form, err := s.loadForm(ctx, result.FormID)
	if err != nil {
		return nil, err
	}

	owns := result.UID != models.AnonymousUID && result.UID == viewer.UID
	tokenOK := token != "" && token == result.Token
	if !owns && !tokenOK && !CanViewResults(viewer, form) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you may not view this submission")
	}

	defs, err := s.fields.ListByForm(ctx, form.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fields")
	}
	fieldSet := fields.Hydrate(defs)

	stored, err := s.values.MapByResult(ctx, result.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load values")
	}
	for _, f := range fieldSet {
		if raw, ok := stored[f.Def().ID]; ok {
			f.SetValue(raw)
		}
	}

	// per-field results permissions still apply unless the viewer reached
	// this result through ownership or a capability token
	checkAccess := !owns && !tokenOK && !HasAdminAccess(viewer, form)

	detail := &ResultDetail{Result: *result}
	for _, f := range fieldSet {
		def := f.Def()
		if !def.Enabled || def.Type == models.TypeStatic {
			continue
		}
		value, visible := f.DisplayValue(fieldSet, checkAccess, viewer)
		if !visible {
			continue
		}
		prompt := def.Prompt
		if prompt == "" {
			prompt = def.Name
		}
		detail.Values = append(detail.Values, ResultValue{FieldID: def.ID, Name: def.Name, Prompt: prompt, Value: value})
	}
	return detail, nil
}

// Approve clears a moderated submission's pending state.
func (s *ResultService) Approve(ctx context.Context, viewer models.Viewer, resultID int64) error {
	result, err := s.loadResult(ctx, resultID)
	if err != nil {
		return err
	}
	form, err := s.loadForm(ctx, result.FormID)
	if err != nil {
		return err
	}
	if !HasAdminAccess(viewer, form) {
		return appErrors.Clone(appErrors.ErrForbidden, "approval requires form admin access")
	}
	if err := s.results.Approve(ctx, resultID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve result")
	}
	return nil
}

// Delete removes one submission and its values.
func (s *ResultService) Delete(ctx context.Context, viewer models.Viewer, resultID int64) error {
	result, err := s.loadResult(ctx, resultID)
	if err != nil {
		return err
	}
	form, err := s.loadForm(ctx, result.FormID)
	if err != nil {
		return err
	}
	if !HasAdminAccess(viewer, form) {
		return appErrors.Clone(appErrors.ErrForbidden, "deletion requires form admin access")
	}
	if err := s.results.Delete(ctx, resultID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete result")
	}
	return nil
}

func (s *ResultService) loadForm(ctx context.Context, formID string) (*models.Form, error) {
	if formID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "form id is required")
	}
	form, err := s.forms.FindByID(ctx, formID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "form not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}
	return form, nil
}

func (s *ResultService) loadResult(ctx context.Context, id int64) (*models.Result, error) {
	result, err := s.results.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return result, nil
}
