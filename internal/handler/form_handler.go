package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/formlane/forms-api/internal/middleware"
	"github.com/formlane/forms-api/internal/models"
	"github.com/formlane/forms-api/internal/service"
	appErrors "github.com/formlane/forms-api/pkg/errors"
	"github.com/formlane/forms-api/pkg/response"
)

type formService interface {
	List(ctx context.Context, viewer models.Viewer, filter models.FormFilter) ([]models.Form, *models.Pagination, error)
	Get(ctx context.Context, viewer models.Viewer, id string) (*models.Form, bool, error)
	SaveDef(ctx context.Context, viewer models.Viewer, req service.SaveFormRequest) (*models.Form, error)
	Duplicate(ctx context.Context, viewer models.Viewer, id string) (*models.Form, error)
	Delete(ctx context.Context, viewer models.Viewer, id string) error
	Render(ctx context.Context, viewer models.Viewer, req service.RenderRequest) (*models.RenderedForm, bool, error)
}

type submissionService interface {
	Submit(ctx context.Context, viewer models.Viewer, req service.SubmitRequest) (*service.SubmitResponse, error)
}

// FormHandler exposes form definition and rendering endpoints.
type FormHandler struct {
	forms       formService
	submissions submissionService
}

// NewFormHandler constructs FormHandler.
func NewFormHandler(forms formService, submissions submissionService) *FormHandler {
	return &FormHandler{forms: forms, submissions: submissions}
}

// List godoc
// @Summary List forms
// @Tags Forms
// @Produce json
// @Param categoryId query int false "Filter by category"
// @Param enabled query bool false "Filter by enabled state"
// @Param search query string false "Search by name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /forms [get]
func (h *FormHandler) List(c *gin.Context) {
	var filter models.FormFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if raw := c.Query("categoryId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "categoryId must be numeric"))
			return
		}
		filter.CategoryID = &id
	}
	if enabled := c.Query("enabled"); enabled != "" {
		if enabled == "true" {
			v := true
			filter.Enabled = &v
		} else if enabled == "false" {
			v := false
			filter.Enabled = &v
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	forms, pagination, err := h.forms.List(c.Request.Context(), viewerFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, forms, pagination)
}

// Get godoc
// @Summary Get form definition
// @Tags Forms
// @Produce json
// @Param id path string true "Form ID"
// @Success 200 {object} response.Envelope
// @Router /forms/{id} [get]
func (h *FormHandler) Get(c *gin.Context) {
	form, cacheHit, err := h.forms.Get(c.Request.Context(), viewerFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, form, nil, middleware.ExtractMeta(c))
}

// Save godoc
// @Summary Create or update a form definition
// @Tags Forms
// @Accept json
// @Produce json
// @Param payload body service.SaveFormRequest true "Form payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /forms [post]
func (h *FormHandler) Save(c *gin.Context) {
	var req service.SaveFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid form payload"))
		return
	}
	created := req.ID == ""
	form, err := h.forms.SaveDef(c.Request.Context(), viewerFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if created {
		response.Created(c, form)
		return
	}
	response.JSON(c, http.StatusOK, form, nil)
}

// Duplicate godoc
// @Summary Copy a form definition and its fields
// @Tags Forms
// @Produce json
// @Param id path string true "Form ID"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /forms/{id}/copy [post]
func (h *FormHandler) Duplicate(c *gin.Context) {
	form, err := h.forms.Duplicate(c.Request.Context(), viewerFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, form)
}

// Delete godoc
// @Summary Delete a form with its fields, results and values
// @Tags Forms
// @Produce json
// @Param id path string true "Form ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /forms/{id} [delete]
func (h *FormHandler) Delete(c *gin.Context) {
	if err := h.forms.Delete(c.Request.Context(), viewerFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Render godoc
// @Summary Render a form
// @Description Produces the field render model. Edit mode pre-fills values
// @Description from an existing submission; preview is admin-only.
// @Tags Forms
// @Produce json
// @Param id path string true "Form ID"
// @Param mode query string false "Render mode: normal, preview or edit"
// @Param resultId query int false "Submission to edit"
// @Param token query string false "Anonymous edit token"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /forms/{id}/render [get]
func (h *FormHandler) Render(c *gin.Context) {
	req := service.RenderRequest{
		FormID: c.Param("id"),
		Mode:   models.RenderMode(c.DefaultQuery("mode", string(models.ModeNormal))),
		Token:  c.Query("token"),
	}
	if raw := c.Query("resultId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "resultId must be numeric"))
			return
		}
		req.ResultID = id
	}

	start := time.Now()
	rendered, cacheHit, err := h.forms.Render(c.Request.Context(), viewerFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, rendered, nil, meta)
}

// Submit godoc
// @Summary Submit a form
// @Description Accepts a form-encoded submission and runs it through the
// @Description captcha, spam, validation and storage pipeline. Validation
// @Description failures return the per-field error map.
// @Tags Forms
// @Accept x-www-form-urlencoded
// @Produce json
// @Param id path string true "Form ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /forms/{id}/submit [post]
func (h *FormHandler) Submit(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}

	req := service.SubmitRequest{
		FormID:     c.Param("id"),
		InstanceID: c.Query("instanceId"),
		Token:      c.Query("token"),
		Post:       c.Request.PostForm,
	}
	if raw := c.Query("resultId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "resultId must be numeric"))
			return
		}
		req.ResultID = id
	}

	res, err := h.submissions.Submit(c.Request.Context(), viewerFromContext(c), req)
	if err != nil {
		// validation failures carry the per-field error map alongside
		// the error
		if res != nil && len(res.Errors) > 0 {
			response.ErrorWithData(c, err, res)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
