package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/formlane/forms-api/internal/middleware"
	"github.com/formlane/forms-api/internal/models"
	"github.com/formlane/forms-api/internal/service"
	appErrors "github.com/formlane/forms-api/pkg/errors"
)

type responseEnvelope struct {
	Data map[string]interface{} `json:"data"`
	Meta map[string]interface{} `json:"meta"`
}

type fakeFormSrv struct {
	listForms  []models.Form
	listErr    error
	lastFilter models.FormFilter

	form    *models.Form
	formHit bool
	formErr error

	saved    *models.Form
	saveErr  error
	lastSave service.SaveFormRequest

	deleted []string

	rendered   *models.RenderedForm
	renderHit  bool
	renderErr  error
	lastRender service.RenderRequest
}

func (f *fakeFormSrv) List(_ context.Context, _ models.Viewer, filter models.FormFilter) ([]models.Form, *models.Pagination, error) {
	f.lastFilter = filter
	return f.listForms, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: len(f.listForms)}, f.listErr
}

func (f *fakeFormSrv) Get(context.Context, models.Viewer, string) (*models.Form, bool, error) {
	return f.form, f.formHit, f.formErr
}

func (f *fakeFormSrv) SaveDef(_ context.Context, _ models.Viewer, req service.SaveFormRequest) (*models.Form, error) {
	f.lastSave = req
	return f.saved, f.saveErr
}

func (f *fakeFormSrv) Duplicate(context.Context, models.Viewer, string) (*models.Form, error) {
	return f.form, f.formErr
}

func (f *fakeFormSrv) Delete(_ context.Context, _ models.Viewer, id string) error {
	f.deleted = append(f.deleted, id)
	return f.formErr
}

func (f *fakeFormSrv) Render(_ context.Context, _ models.Viewer, req service.RenderRequest) (*models.RenderedForm, bool, error) {
	f.lastRender = req
	return f.rendered, f.renderHit, f.renderErr
}

type fakeSubmitSrv struct {
	resp       *service.SubmitResponse
	err        error
	lastReq    service.SubmitRequest
	lastViewer models.Viewer
}

func (f *fakeSubmitSrv) Submit(_ context.Context, viewer models.Viewer, req service.SubmitRequest) (*service.SubmitResponse, error) {
	f.lastReq = req
	f.lastViewer = viewer
	return f.resp, f.err
}

func TestFormHandlerListParsesFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeFormSrv{listForms: []models.Form{{ID: "contact"}}}
	handler := NewFormHandler(srv, &fakeSubmitSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/forms?categoryId=2&enabled=true&search=contact&page=3&limit=5", nil)

	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, srv.lastFilter.CategoryID)
	assert.Equal(t, int64(2), *srv.lastFilter.CategoryID)
	assert.NotNil(t, srv.lastFilter.Enabled)
	assert.True(t, *srv.lastFilter.Enabled)
	assert.Equal(t, "contact", srv.lastFilter.Search)
	assert.Equal(t, 3, srv.lastFilter.Page)
	assert.Equal(t, 5, srv.lastFilter.PageSize)
}

func TestFormHandlerListRejectsBadCategory(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewFormHandler(&fakeFormSrv{}, &fakeSubmitSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/forms?categoryId=abc", nil)

	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFormHandlerGetReportsCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeFormSrv{form: &models.Form{ID: "contact", Name: "Contact Us"}, formHit: true}
	handler := NewFormHandler(srv, &fakeSubmitSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/forms/contact", nil)
	c.Params = gin.Params{{Key: "id", Value: "contact"}}

	handler.Get(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.Equal(t, "contact", envelope.Data["form_id"])
}

func TestFormHandlerSaveCreatesWhenNoID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeFormSrv{saved: &models.Form{ID: "survey2026", Name: "Survey"}}
	handler := NewFormHandler(srv, &fakeSubmitSrv{})

	body := strings.NewReader(`{"form_name":"Survey","fill_gid":2}`)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/forms", body)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "root", Groups: []int64{models.RootGID}})

	handler.Save(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Survey", srv.lastSave.Name)
	assert.Equal(t, int64(2), srv.lastSave.FillGID)
}

func TestFormHandlerSaveRejectsBadPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewFormHandler(&fakeFormSrv{}, &fakeSubmitSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/forms", strings.NewReader("{not json"))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Save(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFormHandlerRenderPassesQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeFormSrv{rendered: &models.RenderedForm{FormID: "contact", Name: "Contact Us"}}
	handler := NewFormHandler(srv, &fakeSubmitSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/forms/contact/render?mode=edit&resultId=42&token=secret", nil)
	c.Params = gin.Params{{Key: "id", Value: "contact"}}

	handler.Render(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "contact", srv.lastRender.FormID)
	assert.Equal(t, models.ModeEdit, srv.lastRender.Mode)
	assert.Equal(t, int64(42), srv.lastRender.ResultID)
	assert.Equal(t, "secret", srv.lastRender.Token)

	var envelope responseEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	assert.Equal(t, false, envelope.Meta["cache_hit"])
	assert.Contains(t, envelope.Meta, "processing_time_ms")
}

func TestFormHandlerRenderForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeFormSrv{renderErr: appErrors.ErrNoAccess}
	handler := NewFormHandler(srv, &fakeSubmitSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/forms/contact/render", nil)
	c.Params = gin.Params{{Key: "id", Value: "contact"}}

	handler.Render(c)

	assert.Equal(t, appErrors.ErrNoAccess.Status, rec.Code)
}

func TestFormHandlerSubmitPostsFormValues(t *testing.T) {
	gin.SetMode(gin.TestMode)
	submit := &fakeSubmitSrv{resp: &service.SubmitResponse{ResultID: 7, Message: "thanks"}}
	handler := NewFormHandler(&fakeFormSrv{}, submit)

	form := url.Values{"fullname": {"Ada Lovelace"}, "message": {"hello"}}
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/forms/contact/submit?token=secret", strings.NewReader(form.Encode()))
	c.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.Params = gin.Params{{Key: "id", Value: "contact"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Groups: []int64{13}})

	handler.Submit(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "contact", submit.lastReq.FormID)
	assert.Equal(t, "secret", submit.lastReq.Token)
	assert.Equal(t, "Ada Lovelace", submit.lastReq.Post.Get("fullname"))
	assert.Equal(t, "u1", submit.lastViewer.UID)

	var envelope responseEnvelope
	_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	assert.Equal(t, "thanks", envelope.Data["message"])
}

func TestFormHandlerSubmitReturnsFieldErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	submit := &fakeSubmitSrv{
		resp: &service.SubmitResponse{Errors: map[string]string{"fullname": "Full name is required"}},
		err:  appErrors.Clone(appErrors.ErrValidation, "submission has errors"),
	}
	handler := NewFormHandler(&fakeFormSrv{}, submit)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/forms/contact/submit", strings.NewReader("message=hi"))
	c.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.Params = gin.Params{{Key: "id", Value: "contact"}}

	handler.Submit(c)

	assert.Equal(t, appErrors.ErrValidation.Status, rec.Code)
	var envelope struct {
		Data struct {
			Errors map[string]string `json:"errors"`
		} `json:"data"`
		Error map[string]interface{} `json:"error"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	assert.Equal(t, "Full name is required", envelope.Data.Errors["fullname"])
	assert.NotNil(t, envelope.Error)
}

func TestFormHandlerDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeFormSrv{}
	handler := NewFormHandler(srv, &fakeSubmitSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodDelete, "/forms/contact", nil)
	c.Params = gin.Params{{Key: "id", Value: "contact"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "root", Groups: []int64{models.RootGID}})

	handler.Delete(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"contact"}, srv.deleted)
}
