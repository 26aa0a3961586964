package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/formlane/forms-api/internal/fields"
	"github.com/formlane/forms-api/internal/models"
	appErrors "github.com/formlane/forms-api/pkg/errors"
)

type formRepository interface {
	List(ctx context.Context, filter models.FormFilter) ([]models.Form, int, error)
	FindByID(ctx context.Context, id string) (*models.Form, error)
	ExistsByID(ctx context.Context, id string) (bool, error)
	Create(ctx context.Context, form *models.Form) error
	Update(ctx context.Context, form *models.Form) error
	Rename(ctx context.Context, oldID, newID string) error
	ResetChildPermissions(ctx context.Context, formID string, fillGID, resultsGID int64) error
	Delete(ctx context.Context, formID string) error
}

type formFieldRepository interface {
	ListByForm(ctx context.Context, formID string) ([]models.FieldDef, error)
	CopyToForm(ctx context.Context, srcFormID, dstFormID string) error
}

type formResultRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Result, error)
	FindByFormAndUser(ctx context.Context, formID, uid, token string) (int64, error)
	CountByFormAndUser(ctx context.Context, formID, uid string) (int, error)
}

type formValueRepository interface {
	MapByResult(ctx context.Context, resultID int64) (map[int64]string, error)
}

// SaveFormRequest is the payload for creating or updating a form definition.
type SaveFormRequest struct {
	ID           string `json:"form_id" validate:"omitempty,max=40"`
	NewID        string `json:"new_form_id" validate:"omitempty,max=40"`
	CategoryID   int64  `json:"category_id" validate:"gte=0"`
	Name         string `json:"form_name" validate:"required,max=255"`
	Intro        string `json:"introtext"`
	SubmitMsg    string `json:"submit_msg"`
	NoAccessMsg  string `json:"noaccess_msg"`
	NoEditMsg    string `json:"noedit_msg"`
	MaxSubmitMsg string `json:"max_submit_msg"`
	GroupID      int64  `json:"group_id" validate:"gte=0"`
	FillGID      int64  `json:"fill_gid" validate:"gte=0"`
	ResultsGID   int64  `json:"results_gid" validate:"gte=0"`
	Enabled      bool   `json:"enabled"`
	Moderate     bool   `json:"req_approval"`
	LimitMode    int    `json:"onetime" validate:"gte=0,lte=2"`
	MaxSubmit    int    `json:"max_submit" validate:"gte=0"`
	OnSubmit     int    `json:"onsubmit" validate:"gte=0"`
	EmailAddrs   string `json:"email"`
	Redirect     string `json:"redirect" validate:"omitempty,url"`
	Captcha      bool   `json:"captcha"`
	InBlock      bool   `json:"inblock"`
	SubType      string `json:"sub_type" validate:"omitempty,oneof=regular ajax"`

	// ResetFieldPerms pushes the form's fill and results groups down onto
	// every field, discarding per-field overrides.
	ResetFieldPerms bool `json:"reset_field_perms"`
}

// RenderRequest selects what Render produces.
type RenderRequest struct {
	FormID   string
	Mode     models.RenderMode
	ResultID int64
	Token    string
}

// FormService orchestrates form definition CRUD and rendering.
type FormService struct {
	forms     formRepository
	fields    formFieldRepository
	results   formResultRepository
	values    formValueRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFormService constructs a FormService.
func NewFormService(forms formRepository, fieldRepo formFieldRepository, results formResultRepository, values formValueRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *FormService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormService{
		forms:     forms,
		fields:    fieldRepo,
		results:   results,
		values:    values,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// HasAdminAccess reports whether the viewer may edit the form definition
// and browse its results without a results-group membership.
func HasAdminAccess(viewer models.Viewer, form *models.Form) bool {
	if viewer.IsRoot() {
		return true
	}
	if form == nil {
		return false
	}
	if viewer.UID != models.AnonymousUID && viewer.UID == form.Owner {
		return true
	}
	return form.GroupID != models.AnonymousGID && viewer.InGroup(form.GroupID)
}

// CanFill reports whether the viewer may open and submit the form.
func CanFill(viewer models.Viewer, form *models.Form) bool {
	if form == nil || !form.Enabled {
		return HasAdminAccess(viewer, form)
	}
	return viewer.InGroup(form.FillGID) || HasAdminAccess(viewer, form)
}

// CanViewResults reports whether the viewer may browse stored submissions.
func CanViewResults(viewer models.Viewer, form *models.Form) bool {
	if form == nil {
		return false
	}
	return viewer.InGroup(form.ResultsGID) || HasAdminAccess(viewer, form)
}

// List returns forms the viewer may at least fill, plus pagination data.
// Admins see everything including disabled forms.
func (s *FormService) List(ctx context.Context, viewer models.Viewer, filter models.FormFilter) ([]models.Form, *models.Pagination, error) {
	if !viewer.IsRoot() {
		enabled := true
		filter.Enabled = &enabled
	}
	forms, total, err := s.forms.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list forms")
	}

	visible := forms[:0]
	for i := range forms {
		if CanFill(viewer, &forms[i]) || CanViewResults(viewer, &forms[i]) {
			visible = append(visible, forms[i])
		}
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return visible, pagination, nil
}

// Get returns a form definition for administration. The bool reports
// whether the definition was served from cache.
func (s *FormService) Get(ctx context.Context, viewer models.Viewer, id string) (*models.Form, bool, error) {
	form, hit, err := s.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if !HasAdminAccess(viewer, form) {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "you may not edit this form")
	}
	return form, hit, nil
}

// SaveDef creates or updates a form definition. A blank ID gets a generated
// one; changing the ID cascades through fields and results.
func (s *FormService) SaveDef(ctx context.Context, viewer models.Viewer, req SaveFormRequest) (*models.Form, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid form payload")
	}
	if viewer.Anonymous() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "sign in to manage forms")
	}

	id := SanitizeID(req.ID)
	creating := false
	var form *models.Form

	if id == "" {
		creating = true
		id = generatedFormID()
	} else {
		existing, err := s.forms.FindByID(ctx, id)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
			}
			creating = true
		} else {
			form = existing
		}
	}

	if creating {
		form = &models.Form{ID: id, Owner: viewer.UID}
	} else if !HasAdminAccess(viewer, form) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you may not edit this form")
	}

	applySaveRequest(form, req)

	if creating {
		if err := s.forms.Create(ctx, form); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create form")
		}
	} else {
		if err := s.forms.Update(ctx, form); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update form")
		}
	}

	if newID := SanitizeID(req.NewID); !creating && newID != "" && newID != form.ID {
		taken, err := s.forms.ExistsByID(ctx, newID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check form id")
		}
		if taken {
			// a requested ID that is already in use falls back to a
			// generated one
			newID = generatedFormID()
		}
		if err := s.forms.Rename(ctx, form.ID, newID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rename form")
		}
		s.invalidate(ctx, form.ID)
		form.ID = newID
	}

	if req.ResetFieldPerms {
		if err := s.forms.ResetChildPermissions(ctx, form.ID, form.FillGID, form.ResultsGID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset field permissions")
		}
	}

	s.invalidate(ctx, form.ID)
	return form, nil
}

// Duplicate copies a form definition and its fields under a fresh ID.
// Results are not copied.
func (s *FormService) Duplicate(ctx context.Context, viewer models.Viewer, id string) (*models.Form, error) {
	src, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !HasAdminAccess(viewer, src) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you may not copy this form")
	}

	copyForm := *src
	copyForm.ID = generatedFormID()
	copyForm.Name = src.Name + " (copy)"
	copyForm.Owner = viewer.UID
	copyForm.Enabled = false

	if err := s.forms.Create(ctx, &copyForm); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create form copy")
	}
	if err := s.fields.CopyToForm(ctx, src.ID, copyForm.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to copy fields")
	}
	return &copyForm, nil
}

// Delete removes a form along with its fields, results and values.
func (s *FormService) Delete(ctx context.Context, viewer models.Viewer, id string) error {
	form, _, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !HasAdminAccess(viewer, form) {
		return appErrors.Clone(appErrors.ErrForbidden, "you may not delete this form")
	}
	if err := s.forms.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete form")
	}
	s.invalidate(ctx, id)
	return nil
}

// Render produces the render model for a form. In edit mode the existing
// submission's values pre-fill the inputs; preview mode skips the fill
// permission gate for form admins. The bool reports whether the form
// definition was served from cache.
func (s *FormService) Render(ctx context.Context, viewer models.Viewer, req RenderRequest) (*models.RenderedForm, bool, error) {
	form, hit, err := s.load(ctx, req.FormID)
	if err != nil {
		return nil, false, err
	}

	mode := req.Mode
	if mode == "" {
		mode = models.ModeNormal
	}
	if mode == models.ModePreview {
		if !HasAdminAccess(viewer, form) {
			return nil, hit, appErrors.Clone(appErrors.ErrForbidden, "preview requires form admin access")
		}
	} else if !CanFill(viewer, form) {
		msg := form.NoAccessMsg
		if msg == "" {
			msg = "you do not have access to this form"
		}
		return nil, hit, appErrors.Clone(appErrors.ErrNoAccess, msg)
	}

	// edit mode targets an existing submission, so the ceiling does not
	// apply there
	if mode == models.ModeNormal && form.MaxSubmit > 0 && !viewer.Anonymous() {
		count, err := s.results.CountByFormAndUser(ctx, form.ID, viewer.UID)
		if err != nil {
			return nil, hit, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count submissions")
		}
		if count >= form.MaxSubmit {
			msg := form.MaxSubmitMsg
			if msg == "" {
				msg = "submission limit reached"
			}
			return nil, hit, appErrors.Clone(appErrors.ErrMaxSubmissions, msg)
		}
	}

	defs, err := s.fields.ListByForm(ctx, form.ID)
	if err != nil {
		return nil, hit, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fields")
	}
	fieldSet := fields.Hydrate(defs)

	rendered := &models.RenderedForm{
		FormID:  form.ID,
		Name:    form.Name,
		Intro:   form.Intro,
		SubType: form.SubType,
		Captcha: form.CaptchaFlag,
	}

	if mode == models.ModeEdit {
		if err := s.prefill(ctx, viewer, form, fieldSet, req, rendered); err != nil {
			return nil, hit, err
		}
	}

	renderCtx := fields.RenderContext{Mode: mode, Viewer: viewer, FormID: form.ID, SubType: form.SubType}
	for _, f := range fieldSet {
		if rf := f.Render(renderCtx); rf != nil {
			rendered.Fields = append(rendered.Fields, *rf)
		}
	}

	s.metrics.RecordRender(form.ID)
	return rendered, hit, nil
}

func (s *FormService) prefill(ctx context.Context, viewer models.Viewer, form *models.Form, fieldSet []fields.Field, req RenderRequest, rendered *models.RenderedForm) error {
	resultID := req.ResultID
	if resultID == 0 {
		id, err := s.results.FindByFormAndUser(ctx, form.ID, viewer.UID, "")
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to locate submission")
		}
		resultID = id
	}
	if resultID == 0 {
		return nil
	}

	result, err := s.results.FindByID(ctx, resultID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	owns := result.UID != models.AnonymousUID && result.UID == viewer.UID
	tokenOK := req.Token != "" && req.Token == result.Token
	admin := HasAdminAccess(viewer, form)
	if !owns && !tokenOK && !admin {
		return appErrors.Clone(appErrors.ErrForbidden, "you may not edit this submission")
	}
	if owns && form.LimitMode == models.LimitOnceLocked && !admin {
		msg := form.NoEditMsg
		if msg == "" {
			msg = "this submission can no longer be edited"
		}
		return appErrors.Clone(appErrors.ErrSubmissionLocked, msg)
	}

	stored, err := s.values.MapByResult(ctx, result.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load values")
	}
	for _, f := range fieldSet {
		if raw, ok := stored[f.Def().ID]; ok {
			f.SetValue(raw)
		}
	}

	rendered.ResultID = result.ID
	if admin && !owns {
		rendered.Submitter = &models.SubmitterInfo{UID: result.UID, SubmittedAt: result.SubmittedAt, IP: result.IP}
	}
	return nil
}

func (s *FormService) load(ctx context.Context, id string) (*models.Form, bool, error) {
	if id == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "form id is required")
	}

	var cached models.Form
	if hit, _ := s.cache.Get(ctx, FormKey(id, "def"), &cached); hit {
		return &cached, true, nil
	}

	form, err := s.forms.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "form not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}

	if err := s.cache.Set(ctx, FormKey(id, "def"), form, 0); err != nil {
		s.logger.Debug("form cache write failed", zap.String("form_id", id), zap.Error(err))
	}
	return form, false, nil
}

func (s *FormService) invalidate(ctx context.Context, formID string) {
	if err := s.cache.Invalidate(ctx, FormPattern(formID)); err != nil {
		s.logger.Warn("form cache invalidation failed", zap.String("form_id", formID), zap.Error(err))
	}
}

func applySaveRequest(form *models.Form, req SaveFormRequest) {
	form.CategoryID = req.CategoryID
	if form.CategoryID == 0 {
		form.CategoryID = models.DefaultCategoryID
	}
	form.Name = strings.TrimSpace(req.Name)
	form.Intro = req.Intro
	form.SubmitMsg = req.SubmitMsg
	form.NoAccessMsg = req.NoAccessMsg
	form.NoEditMsg = req.NoEditMsg
	form.MaxSubmitMsg = req.MaxSubmitMsg
	form.GroupID = req.GroupID
	form.FillGID = req.FillGID
	form.ResultsGID = req.ResultsGID
	form.Enabled = req.Enabled
	form.Moderate = req.Moderate
	form.LimitMode = models.LimitMode(req.LimitMode)
	form.MaxSubmit = req.MaxSubmit
	form.OnSubmit = req.OnSubmit
	form.EmailAddrs = strings.TrimSpace(req.EmailAddrs)
	form.Redirect = strings.TrimSpace(req.Redirect)
	form.CaptchaFlag = req.Captcha
	form.InBlock = req.InBlock
	form.SubType = req.SubType
	if form.SubType == "" {
		form.SubType = models.SubTypeStandard
	}
	if form.FillGID == 0 {
		form.FillGID = models.AnonymousGID
	}
	if form.ResultsGID == 0 {
		form.ResultsGID = models.RootGID
	}
	if form.GroupID == 0 {
		form.GroupID = models.RootGID
	}
}

// SanitizeID lowercases an identifier and strips everything outside
// [a-z0-9_-] so form IDs stay URL and filename safe.
func SanitizeID(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	id := b.String()
	if len(id) > 40 {
		id = id[:40]
	}
	return id
}

func generatedFormID() string {
	return "frm_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
