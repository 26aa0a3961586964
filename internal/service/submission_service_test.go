package service

import (
	"context"
	"database/sql"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/formlane/forms-api/internal/models"
	appErrors "github.com/formlane/forms-api/pkg/errors"
)

type mockSubmissionResultRepo struct {
	items    map[int64]*models.Result
	nextID   int64
	existing *models.Result
	count    int
	touched  []int64
}

func (m *mockSubmissionResultRepo) Create(ctx context.Context, result *models.Result) error {
	if m.items == nil {
		m.items = make(map[int64]*models.Result)
	}
	m.nextID++
	result.ID = m.nextID
	result.Token = "tok-new"
	cp := *result
	m.items[result.ID] = &cp
	return nil
}

func (m *mockSubmissionResultRepo) CreateIfAbsent(ctx context.Context, result *models.Result) (*models.Result, bool, error) {
	if m.existing != nil {
		cp := *m.existing
		return &cp, false, nil
	}
	if err := m.Create(ctx, result); err != nil {
		return nil, false, err
	}
	cp := *result
	return &cp, true, nil
}

func (m *mockSubmissionResultRepo) FindByID(ctx context.Context, id int64) (*models.Result, error) {
	if r, ok := m.items[id]; ok {
		cp := *r
		return &cp, nil
	}
	if m.existing != nil && m.existing.ID == id {
		cp := *m.existing
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubmissionResultRepo) FindByFormAndUser(ctx context.Context, formID, uid, token string) (int64, error) {
	if m.existing != nil && m.existing.FormID == formID && m.existing.UID == uid {
		return m.existing.ID, nil
	}
	return 0, nil
}

func (m *mockSubmissionResultRepo) CountByFormAndUser(ctx context.Context, formID, uid string) (int, error) {
	return m.count, nil
}

func (m *mockSubmissionResultRepo) Touch(ctx context.Context, id int64, ip string) error {
	m.touched = append(m.touched, id)
	return nil
}

type mockSubmissionValueRepo struct {
	stored map[int64]map[int64]string
}

func (m *mockSubmissionValueRepo) Upsert(ctx context.Context, resultID, fieldID int64, value string) error {
	if m.stored == nil {
		m.stored = make(map[int64]map[int64]string)
	}
	if m.stored[resultID] == nil {
		m.stored[resultID] = make(map[int64]string)
	}
	m.stored[resultID][fieldID] = value
	return nil
}

type stubCaptcha struct {
	ok   bool
	seen string
}

func (s *stubCaptcha) Verify(ctx context.Context, response, remoteIP string) (bool, error) {
	s.seen = response
	return s.ok, nil
}

type stubSpam struct {
	spam bool
	seen string
}

func (s *stubSpam) IsSpam(ctx context.Context, content, remoteIP string) (bool, error) {
	s.seen = content
	return s.spam, nil
}

type stubNotifier struct {
	calls  int
	values []SubmissionValue
}

func (s *stubNotifier) NotifySubmission(ctx context.Context, form *models.Form, result *models.Result, values []SubmissionValue) error {
	s.calls++
	s.values = values
	return nil
}

type submissionFixture struct {
	forms    *mockFormRepo
	fields   *mockFormFieldRepo
	results  *mockSubmissionResultRepo
	values   *mockSubmissionValueRepo
	captcha  *stubCaptcha
	spam     *stubSpam
	notifier *stubNotifier
	service  *SubmissionService
}

func newSubmissionFixture(form *models.Form) *submissionFixture {
	f := &submissionFixture{
		forms:    &mockFormRepo{items: map[string]*models.Form{form.ID: form}},
		fields:   &mockFormFieldRepo{defs: map[string][]models.FieldDef{form.ID: contactDefs()}},
		results:  &mockSubmissionResultRepo{},
		values:   &mockSubmissionValueRepo{},
		captcha:  &stubCaptcha{ok: true},
		spam:     &stubSpam{},
		notifier: &stubNotifier{},
	}
	f.service = NewSubmissionService(f.forms, f.fields, f.results, f.values, f.captcha, f.spam, f.notifier, nil, nil, zap.NewNop())
	return f
}

func validPost() url.Values {
	return url.Values{
		"fullname": {"Ada Lovelace"},
		"message":  {"hello there"},
	}
}

func TestSubmitStoresValues(t *testing.T) {
	form := contactForm()
	form.SubmitMsg = "thanks"
	fix := newSubmissionFixture(form)

	resp, err := fix.service.Submit(context.Background(), memberViewer(), SubmitRequest{FormID: "contact", Post: validPost()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.ResultID)
	assert.Equal(t, "thanks", resp.Message)
	assert.Empty(t, resp.Token)
	assert.Equal(t, map[int64]string{1: "Ada Lovelace", 2: "hello there"}, fix.values.stored[1])

	stored := fix.results.items[1]
	assert.Equal(t, "u1", stored.UID)
	assert.True(t, stored.Approved)
}

func TestSubmitAnonymousGetsToken(t *testing.T) {
	fix := newSubmissionFixture(contactForm())

	resp, err := fix.service.Submit(context.Background(), anonViewer(), SubmitRequest{FormID: "contact", Post: validPost()})
	require.NoError(t, err)
	assert.Equal(t, "tok-new", resp.Token)
}

func TestSubmitModeratedFormStoresUnapproved(t *testing.T) {
	form := contactForm()
	form.Moderate = true
	fix := newSubmissionFixture(form)

	_, err := fix.service.Submit(context.Background(), memberViewer(), SubmitRequest{FormID: "contact", Post: validPost()})
	require.NoError(t, err)
	assert.False(t, fix.results.items[1].Approved)
}

func TestSubmitNoAccess(t *testing.T) {
	form := contactForm()
	form.FillGID = 13
	form.NoAccessMsg = "members only"
	fix := newSubmissionFixture(form)

	_, err := fix.service.Submit(context.Background(), anonViewer(), SubmitRequest{FormID: "contact", Post: validPost()})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNoAccess.Code, appErr.Code)
	assert.Equal(t, "members only", appErr.Message)
}

func TestSubmitCaptchaFailure(t *testing.T) {
	form := contactForm()
	form.CaptchaFlag = true
	fix := newSubmissionFixture(form)
	fix.captcha.ok = false

	post := validPost()
	post.Set("captcha_response", "bogus")
	_, err := fix.service.Submit(context.Background(), anonViewer(), SubmitRequest{FormID: "contact", Post: post})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCaptchaFailed.Code, appErrors.FromError(err).Code)
	assert.Equal(t, "bogus", fix.captcha.seen)
	assert.Empty(t, fix.results.items)
}

func TestSubmitValidationErrorsReported(t *testing.T) {
	fix := newSubmissionFixture(contactForm())

	post := validPost()
	post.Del("fullname")
	resp, err := fix.service.Submit(context.Background(), memberViewer(), SubmitRequest{FormID: "contact", Post: post})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	require.NotNil(t, resp)
	assert.Equal(t, "Full name is required", resp.Errors["fullname"])
	assert.Empty(t, fix.results.items)
}

func TestSubmitSpamRejected(t *testing.T) {
	fix := newSubmissionFixture(contactForm())
	fix.spam.spam = true

	_, err := fix.service.Submit(context.Background(), memberViewer(), SubmitRequest{FormID: "contact", Post: validPost()})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSpamRejected.Code, appErrors.FromError(err).Code)
	assert.Contains(t, fix.spam.seen, "hello there")
	assert.Empty(t, fix.results.items)
}

func TestSubmitOnceLockedResubmission(t *testing.T) {
	form := contactForm()
	form.LimitMode = models.LimitOnceLocked
	form.NoEditMsg = "already answered"
	fix := newSubmissionFixture(form)
	fix.results.existing = &models.Result{ID: 9, FormID: "contact", UID: "u1"}

	_, err := fix.service.Submit(context.Background(), memberViewer(), SubmitRequest{FormID: "contact", Post: validPost()})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrSubmissionLocked.Code, appErr.Code)
	assert.Equal(t, "already answered", appErr.Message)
}

func TestSubmitOnceEditableReusesResult(t *testing.T) {
	form := contactForm()
	form.LimitMode = models.LimitOnceEditable
	fix := newSubmissionFixture(form)
	fix.results.existing = &models.Result{ID: 9, FormID: "contact", UID: "u1"}

	resp, err := fix.service.Submit(context.Background(), memberViewer(), SubmitRequest{FormID: "contact", Post: validPost()})
	require.NoError(t, err)
	assert.Equal(t, int64(9), resp.ResultID)
	assert.Equal(t, []int64{9}, fix.results.touched)
	assert.Equal(t, "Ada Lovelace", fix.values.stored[9][1])
	// an edit of an existing submission must not notify again
	assert.Zero(t, fix.notifier.calls)
}

func TestSubmitMaxSubmissionsReached(t *testing.T) {
	form := contactForm()
	form.MaxSubmit = 3
	form.MaxSubmitMsg = "three strikes"
	fix := newSubmissionFixture(form)
	fix.results.count = 3

	_, err := fix.service.Submit(context.Background(), memberViewer(), SubmitRequest{FormID: "contact", Post: validPost()})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrMaxSubmissions.Code, appErr.Code)
	assert.Equal(t, "three strikes", appErr.Message)
}

func TestSubmitLimitCheckedBeforeValidation(t *testing.T) {
	form := contactForm()
	form.MaxSubmit = 1
	form.MaxSubmitMsg = "one per member"
	fix := newSubmissionFixture(form)
	fix.results.count = 1

	// the ceiling rejection wins even when the post is also invalid
	post := validPost()
	post.Del("fullname")
	_, err := fix.service.Submit(context.Background(), memberViewer(), SubmitRequest{FormID: "contact", Post: post})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrMaxSubmissions.Code, appErr.Code)
	assert.Equal(t, "one per member", appErr.Message)
}

func TestSubmitLockedFormCheckedBeforeValidation(t *testing.T) {
	form := contactForm()
	form.LimitMode = models.LimitOnceLocked
	fix := newSubmissionFixture(form)
	fix.results.existing = &models.Result{ID: 9, FormID: "contact", UID: "u1"}

	post := validPost()
	post.Del("fullname")
	_, err := fix.service.Submit(context.Background(), memberViewer(), SubmitRequest{FormID: "contact", Post: post})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSubmissionLocked.Code, appErrors.FromError(err).Code)
}

func TestSubmitSpamCheckedBeforeValidation(t *testing.T) {
	fix := newSubmissionFixture(contactForm())
	fix.spam.spam = true

	post := validPost()
	post.Del("fullname")
	_, err := fix.service.Submit(context.Background(), memberViewer(), SubmitRequest{FormID: "contact", Post: post})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSpamRejected.Code, appErrors.FromError(err).Code)
}

func TestSubmitEditByResultID(t *testing.T) {
	fix := newSubmissionFixture(contactForm())
	fix.results.items = map[int64]*models.Result{
		9: {ID: 9, FormID: "contact", UID: "u1"},
	}

	resp, err := fix.service.Submit(context.Background(), memberViewer(), SubmitRequest{FormID: "contact", ResultID: 9, Post: validPost()})
	require.NoError(t, err)
	assert.Equal(t, int64(9), resp.ResultID)
	assert.Equal(t, []int64{9}, fix.results.touched)
	assert.Zero(t, fix.notifier.calls)
}

func TestSubmitEditStrangerNeedsToken(t *testing.T) {
	fix := newSubmissionFixture(contactForm())
	fix.results.items = map[int64]*models.Result{
		9: {ID: 9, FormID: "contact", UID: "someone-else", Token: "secret"},
	}

	_, err := fix.service.Submit(context.Background(), memberViewer(), SubmitRequest{FormID: "contact", ResultID: 9, Post: validPost()})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = fix.service.Submit(context.Background(), memberViewer(), SubmitRequest{FormID: "contact", ResultID: 9, Token: "secret", Post: validPost()})
	require.NoError(t, err)
}

func TestSubmitEditWrongForm(t *testing.T) {
	fix := newSubmissionFixture(contactForm())
	fix.results.items = map[int64]*models.Result{
		9: {ID: 9, FormID: "other", UID: "u1"},
	}

	_, err := fix.service.Submit(context.Background(), memberViewer(), SubmitRequest{FormID: "contact", ResultID: 9, Post: validPost()})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSubmitNotifiesOnCreateOnly(t *testing.T) {
	form := contactForm()
	form.OnSubmit = models.ActionStore | models.ActionMailOwner
	fix := newSubmissionFixture(form)

	_, err := fix.service.Submit(context.Background(), memberViewer(), SubmitRequest{FormID: "contact", Post: validPost()})
	require.NoError(t, err)
	assert.Equal(t, 1, fix.notifier.calls)
	require.Len(t, fix.notifier.values, 2)
	assert.Equal(t, SubmissionValue{Prompt: "Full name", Value: "Ada Lovelace"}, fix.notifier.values[0])
}

func TestSubmitDisplayAction(t *testing.T) {
	form := contactForm()
	form.OnSubmit = models.ActionStore | models.ActionDisplay
	fix := newSubmissionFixture(form)

	resp, err := fix.service.Submit(context.Background(), memberViewer(), SubmitRequest{FormID: "contact", Post: validPost()})
	require.NoError(t, err)
	require.Len(t, resp.Display, 2)
	assert.Equal(t, "hello there", resp.Display[1].Value)
}

func TestSubmitWithoutStoreAction(t *testing.T) {
	form := contactForm()
	form.OnSubmit = models.ActionDisplay
	fix := newSubmissionFixture(form)

	resp, err := fix.service.Submit(context.Background(), memberViewer(), SubmitRequest{FormID: "contact", Post: validPost()})
	require.NoError(t, err)
	assert.Zero(t, resp.ResultID)
	assert.Empty(t, fix.results.items)
	require.Len(t, resp.Display, 2)
}

func TestSubmitUnknownForm(t *testing.T) {
	fix := newSubmissionFixture(contactForm())

	_, err := fix.service.Submit(context.Background(), memberViewer(), SubmitRequest{FormID: "missing", Post: validPost()})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
