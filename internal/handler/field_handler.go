package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/formlane/forms-api/internal/service"
	appErrors "github.com/formlane/forms-api/pkg/errors"
	"github.com/formlane/forms-api/pkg/response"
)

// FieldHandler exposes field definition administration endpoints.
type FieldHandler struct {
	fields *service.FieldService
}

// NewFieldHandler constructs FieldHandler.
func NewFieldHandler(fields *service.FieldService) *FieldHandler {
	return &FieldHandler{fields: fields}
}

func fieldID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("fieldId"), 10, 64)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "field id must be numeric")
	}
	return id, nil
}

// bindSaveFieldRequest accepts the definition payload as JSON or as a
// classic form-encoded post. Form posts carry the type-specific options as
// discrete keys, which the field type assembles server-side.
func bindSaveFieldRequest(c *gin.Context) (service.SaveFieldRequest, error) {
	var req service.SaveFieldRequest
	if ct := c.ContentType(); ct == "application/x-www-form-urlencoded" || ct == "multipart/form-data" {
		if err := c.Request.ParseForm(); err != nil {
			return req, err
		}
		post := c.Request.PostForm
		access, _ := strconv.Atoi(post.Get("access"))
		fillGID, _ := strconv.ParseInt(post.Get("fill_gid"), 10, 64)
		resultsGID, _ := strconv.ParseInt(post.Get("results_gid"), 10, 64)
		req = service.SaveFieldRequest{
			Name:        post.Get("field_name"),
			Type:        post.Get("type"),
			Enabled:     post.Get("enabled") == "1" || post.Get("enabled") == "true",
			Access:      access,
			Prompt:      post.Get("prompt"),
			Help:        post.Get("help_msg"),
			FillGID:     fillGID,
			ResultsGID:  resultsGID,
			OptionsPost: post,
		}
		return req, nil
	}
	return req, c.ShouldBindJSON(&req)
}

// List godoc
// @Summary List a form's field definitions
// @Tags Fields
// @Produce json
// @Param id path string true "Form ID"
// @Success 200 {object} response.Envelope
// @Router /forms/{id}/fields [get]
func (h *FieldHandler) List(c *gin.Context) {
	defs, err := h.fields.List(c.Request.Context(), viewerFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, defs, nil)
}

// Get godoc
// @Summary Get one field definition
// @Tags Fields
// @Produce json
// @Param id path string true "Form ID"
// @Param fieldId path int true "Field ID"
// @Success 200 {object} response.Envelope
// @Router /forms/{id}/fields/{fieldId} [get]
func (h *FieldHandler) Get(c *gin.Context) {
	id, err := fieldID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	def, err := h.fields.Get(c.Request.Context(), viewerFromContext(c), c.Param("id"), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, def, nil)
}

// Create godoc
// @Summary Add a field to a form
// @Tags Fields
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param id path string true "Form ID"
// @Param payload body service.SaveFieldRequest true "Field payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /forms/{id}/fields [post]
func (h *FieldHandler) Create(c *gin.Context) {
	req, err := bindSaveFieldRequest(c)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid field payload"))
		return
	}
	def, err := h.fields.Create(c.Request.Context(), viewerFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, def)
}

// Update godoc
// @Summary Update a field definition
// @Tags Fields
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param id path string true "Form ID"
// @Param fieldId path int true "Field ID"
// @Param payload body service.SaveFieldRequest true "Field payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /forms/{id}/fields/{fieldId} [put]
func (h *FieldHandler) Update(c *gin.Context) {
	id, err := fieldID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	req, err := bindSaveFieldRequest(c)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid field payload"))
		return
	}
	def, err := h.fields.Update(c.Request.Context(), viewerFromContext(c), c.Param("id"), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, def, nil)
}

// Move godoc
// @Summary Move a field up or down in display order
// @Tags Fields
// @Produce json
// @Param id path string true "Form ID"
// @Param fieldId path int true "Field ID"
// @Param direction query string true "up or down"
// @Success 204 {object} response.Envelope
// @Router /forms/{id}/fields/{fieldId}/move [post]
func (h *FieldHandler) Move(c *gin.Context) {
	id, err := fieldID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	direction := c.Query("direction")
	if direction != "up" && direction != "down" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "direction must be up or down"))
		return
	}
	if err := h.fields.Move(c.Request.Context(), viewerFromContext(c), c.Param("id"), id, direction); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Reorder godoc
// @Summary Renumber a form's fields to even gaps
// @Tags Fields
// @Produce json
// @Param id path string true "Form ID"
// @Success 204 {object} response.Envelope
// @Router /forms/{id}/fields/reorder [post]
func (h *FieldHandler) Reorder(c *gin.Context) {
	if err := h.fields.Reorder(c.Request.Context(), viewerFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete a field and its stored values
// @Tags Fields
// @Produce json
// @Param id path string true "Form ID"
// @Param fieldId path int true "Field ID"
// @Success 204 {object} response.Envelope
// @Router /forms/{id}/fields/{fieldId} [delete]
func (h *FieldHandler) Delete(c *gin.Context) {
	id, err := fieldID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.fields.Delete(c.Request.Context(), viewerFromContext(c), c.Param("id"), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
