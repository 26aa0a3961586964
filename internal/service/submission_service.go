package service

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/formlane/forms-api/internal/fields"
	"github.com/formlane/forms-api/internal/models"
	appErrors "github.com/formlane/forms-api/pkg/errors"
)

// CaptchaVerifier checks a challenge response before a submission is
// accepted. Implementations call out to the configured captcha provider.
type CaptchaVerifier interface {
	Verify(ctx context.Context, response, remoteIP string) (bool, error)
}

// SpamClassifier inspects the free-text content of a submission.
type SpamClassifier interface {
	IsSpam(ctx context.Context, content, remoteIP string) (bool, error)
}

// SubmissionNotifier fans a stored submission out to its recipients.
type SubmissionNotifier interface {
	NotifySubmission(ctx context.Context, form *models.Form, result *models.Result, values []SubmissionValue) error
}

type submissionResultRepository interface {
	Create(ctx context.Context, result *models.Result) error
	CreateIfAbsent(ctx context.Context, result *models.Result) (*models.Result, bool, error)
	FindByID(ctx context.Context, id int64) (*models.Result, error)
	FindByFormAndUser(ctx context.Context, formID, uid, token string) (int64, error)
	CountByFormAndUser(ctx context.Context, formID, uid string) (int, error)
	Touch(ctx context.Context, id int64, ip string) error
}

type submissionValueRepository interface {
	Upsert(ctx context.Context, resultID, fieldID int64, value string) error
}

type submissionFieldRepository interface {
	ListByForm(ctx context.Context, formID string) ([]models.FieldDef, error)
}

// SubmitRequest carries one posted submission.
type SubmitRequest struct {
	FormID     string
	InstanceID string
	// ResultID targets an existing submission when editing.
	ResultID int64
	// Token authorizes anonymous submitters to edit their own result.
	Token string
	Post  url.Values
}

// SubmissionValue is one prompt/value pair of a stored submission, used in
// notification bodies and post-submit display.
type SubmissionValue struct {
	Prompt string `json:"prompt"`
	Value  string `json:"value"`
}

// SubmitResponse reports the outcome of an accepted or rejected submission.
type SubmitResponse struct {
	ResultID int64             `json:"result_id,omitempty"`
	Token    string            `json:"token,omitempty"`
	Message  string            `json:"message,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
	Display  []SubmissionValue `json:"display,omitempty"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// SubmissionService runs the submission pipeline: permission gates, captcha
// and spam checks, field validation, storage and notification fan-out.
type SubmissionService struct {
	forms    formRepository
	fieldSrc submissionFieldRepository
	results  submissionResultRepository
	values   submissionValueRepository
	captcha  CaptchaVerifier
	spam     SpamClassifier
	notifier SubmissionNotifier
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewSubmissionService constructs a SubmissionService. Captcha, spam and
// notifier hooks are optional.
func NewSubmissionService(forms formRepository, fieldSrc submissionFieldRepository, results submissionResultRepository, values submissionValueRepository, captcha CaptchaVerifier, spam SpamClassifier, notifier SubmissionNotifier, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		forms:    forms,
		fieldSrc: fieldSrc,
		results:  results,
		values:   values,
		captcha:  captcha,
		spam:     spam,
		notifier: notifier,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
	}
}

// Submit runs the full pipeline for one posted submission.
func (s *SubmissionService) Submit(ctx context.Context, viewer models.Viewer, req SubmitRequest) (*SubmitResponse, error) {
	form, err := s.forms.FindByID(ctx, req.FormID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "form not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}

	if !CanFill(viewer, form) {
		msg := form.NoAccessMsg
		if msg == "" {
			msg = "you do not have access to this form"
		}
		return nil, appErrors.Clone(appErrors.ErrNoAccess, msg)
	}

	if form.CaptchaFlag && s.captcha != nil {
		ok, err := s.captcha.Verify(ctx, req.Post.Get("captcha_response"), viewer.IP)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "captcha verification failed")
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrCaptchaFailed, "captcha verification failed")
		}
	}

	existing, err := s.resolveTarget(ctx, viewer, form, req)
	if err != nil {
		return nil, err
	}

	defs, err := s.fieldSrc.ListByForm(ctx, form.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fields")
	}
	fieldSet := fields.Hydrate(defs)

	for _, f := range fieldSet {
		if f.Def().Enabled {
			f.SetValue(f.ValueFromPost(req.Post))
		}
	}

	if err := s.checkSpam(ctx, viewer, fieldSet); err != nil {
		return nil, err
	}

	fieldErrs := map[string]string{}
	for _, f := range fieldSet {
		if msg := f.Validate(req.Post); msg != "" {
			fieldErrs[f.Def().Name] = msg
		}
	}
	if len(fieldErrs) > 0 {
		return &SubmitResponse{Errors: fieldErrs}, appErrors.Clone(appErrors.ErrValidation, "form validation failed")
	}

	var result *models.Result
	created := false
	if form.StoresResults() {
		result, created, err = s.store(ctx, viewer, form, existing, req, fieldSet)
		if err != nil {
			return nil, err
		}
	}

	display := displayValues(fieldSet, viewer)

	if created && form.Notifies() && s.notifier != nil {
		if err := s.notifier.NotifySubmission(ctx, form, result, display); err != nil {
			s.logger.Warn("submission notification failed", zap.String("form_id", form.ID), zap.Error(err))
		}
	}

	s.invalidate(ctx, form.ID)
	s.metrics.RecordSubmission(form.ID)

	resp := &SubmitResponse{
		Message:  form.SubmitMsg,
		Redirect: form.Redirect,
	}
	if result != nil {
		resp.ResultID = result.ID
		if viewer.Anonymous() {
			resp.Token = result.Token
		}
	}
	if form.OnSubmit&models.ActionDisplay != 0 {
		resp.Display = display
	}
	return resp, nil
}

// resolveTarget applies the submission ceiling and the one-time state
// machine before any field processing happens, so an over-limit submitter
// is turned away ahead of spam and validation checks. It returns the
// existing result the submission will overwrite, or nil when a new row is
// called for.
func (s *SubmissionService) resolveTarget(ctx context.Context, viewer models.Viewer, form *models.Form, req SubmitRequest) (*models.Result, error) {
	// explicit edit of an existing submission
	if req.ResultID > 0 {
		existing, err := s.results.FindByID(ctx, req.ResultID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
		}
		if err := s.authorizeEdit(viewer, form, existing, req.Token); err != nil {
			return nil, err
		}
		return existing, nil
	}

	if viewer.Anonymous() {
		return nil, nil
	}

	if form.MaxSubmit > 0 {
		count, err := s.results.CountByFormAndUser(ctx, form.ID, viewer.UID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count submissions")
		}
		if count >= form.MaxSubmit {
			msg := form.MaxSubmitMsg
			if msg == "" {
				msg = "submission limit reached"
			}
			return nil, appErrors.Clone(appErrors.ErrMaxSubmissions, msg)
		}
	}

	if form.LimitMode != models.LimitNone {
		id, err := s.results.FindByFormAndUser(ctx, form.ID, viewer.UID, "")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to locate submission")
		}
		if id > 0 {
			if form.LimitMode == models.LimitOnceLocked && !HasAdminAccess(viewer, form) {
				msg := form.NoEditMsg
				if msg == "" {
					msg = "you have already submitted this form"
				}
				return nil, appErrors.Clone(appErrors.ErrSubmissionLocked, msg)
			}
			existing, err := s.results.FindByID(ctx, id)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
			}
			return existing, nil
		}
	}

	return nil, nil
}

// store persists the submission, overwriting the resolved existing result
// or creating a new row. The returned bool is true when a new result row
// was created.
func (s *SubmissionService) store(ctx context.Context, viewer models.Viewer, form *models.Form, existing *models.Result, req SubmitRequest, fieldSet []fields.Field) (*models.Result, bool, error) {
	result, created, err := s.persistTarget(ctx, viewer, form, existing, req)
	if err != nil {
		return nil, false, err
	}

	for _, f := range fieldSet {
		def := f.Def()
		if !def.Enabled || !f.Persistent() {
			continue
		}
		if err := s.values.Upsert(ctx, result.ID, def.ID, f.Value()); err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store value")
		}
	}
	return result, created, nil
}

func (s *SubmissionService) persistTarget(ctx context.Context, viewer models.Viewer, form *models.Form, existing *models.Result, req SubmitRequest) (*models.Result, bool, error) {
	if existing != nil {
		if err := s.results.Touch(ctx, existing.ID, viewer.IP); err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission")
		}
		return existing, false, nil
	}

	candidate := &models.Result{FormID: form.ID, InstanceID: req.InstanceID, UID: viewer.UID, Approved: !form.Moderate, IP: viewer.IP}

	// one-submission forms funnel through an atomic check-and-create so
	// two concurrent first submissions cannot both insert
	if form.LimitMode != models.LimitNone && !viewer.Anonymous() {
		result, created, err := s.results.CreateIfAbsent(ctx, candidate)
		if err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store submission")
		}
		if created {
			return result, true, nil
		}
		// lost the race to a concurrent first submission
		if form.LimitMode == models.LimitOnceLocked && !HasAdminAccess(viewer, form) {
			msg := form.NoEditMsg
			if msg == "" {
				msg = "you have already submitted this form"
			}
			return nil, false, appErrors.Clone(appErrors.ErrSubmissionLocked, msg)
		}
		if err := s.results.Touch(ctx, result.ID, viewer.IP); err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission")
		}
		return result, false, nil
	}

	if err := s.results.Create(ctx, candidate); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store submission")
	}
	return candidate, true, nil
}

func (s *SubmissionService) authorizeEdit(viewer models.Viewer, form *models.Form, result *models.Result, token string) error {
	if result.FormID != form.ID {
		return appErrors.Clone(appErrors.ErrNotFound, "submission not found on this form")
	}
	admin := HasAdminAccess(viewer, form)
	owns := result.UID != models.AnonymousUID && result.UID == viewer.UID
	tokenOK := token != "" && token == result.Token
	if !admin && !owns && !tokenOK {
		return appErrors.Clone(appErrors.ErrForbidden, "you may not edit this submission")
	}
	if !admin && form.LimitMode == models.LimitOnceLocked {
		msg := form.NoEditMsg
		if msg == "" {
			msg = "this submission can no longer be edited"
		}
		return appErrors.Clone(appErrors.ErrSubmissionLocked, msg)
	}
	return nil
}

func (s *SubmissionService) checkSpam(ctx context.Context, viewer models.Viewer, fieldSet []fields.Field) error {
	if s.spam == nil {
		return nil
	}
	var freeText []string
	for _, f := range fieldSet {
		switch f.Def().Type {
		case models.TypeText, models.TypeTextarea:
			if v := f.Value(); v != "" {
				freeText = append(freeText, v)
			}
		}
	}
	if len(freeText) == 0 {
		return nil
	}
	spam, err := s.spam.IsSpam(ctx, strings.Join(freeText, "\n"), viewer.IP)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "spam check failed")
	}
	if spam {
		return appErrors.Clone(appErrors.ErrSpamRejected, "submission rejected by spam filter")
	}
	return nil
}

// displayValues builds the prompt/value list shown in notifications and
// post-submit display. Static fields are skipped, calculated fields show
// their computed value.
func displayValues(fieldSet []fields.Field, viewer models.Viewer) []SubmissionValue {
	out := make([]SubmissionValue, 0, len(fieldSet))
	for _, f := range fieldSet {
		def := f.Def()
		if !def.Enabled || def.Type == models.TypeStatic {
			continue
		}
		value, ok := f.DisplayValue(fieldSet, false, viewer)
		if !ok {
			continue
		}
		prompt := def.Prompt
		if prompt == "" {
			prompt = def.Name
		}
		out = append(out, SubmissionValue{Prompt: prompt, Value: value})
	}
	return out
}

func (s *SubmissionService) invalidate(ctx context.Context, formID string) {
	if err := s.cache.Invalidate(ctx, FormPattern(formID)); err != nil {
		s.logger.Warn("submission cache invalidation failed", zap.String("form_id", formID), zap.Error(err))
	}
}
