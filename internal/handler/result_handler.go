package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/formlane/forms-api/internal/models"
	"github.com/formlane/forms-api/internal/service"
	appErrors "github.com/formlane/forms-api/pkg/errors"
	"github.com/formlane/forms-api/pkg/response"
)

// ResultHandler exposes stored submission endpoints.
type ResultHandler struct {
	results *service.ResultService
}

// NewResultHandler constructs ResultHandler.
func NewResultHandler(results *service.ResultService) *ResultHandler {
	return &ResultHandler{results: results}
}

func resultID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("resultId"), 10, 64)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "result id must be numeric")
	}
	return id, nil
}

// List godoc
// @Summary List a form's submissions
// @Description Viewers without form admin access only see approved
// @Description submissions.
// @Tags Results
// @Produce json
// @Param id path string true "Form ID"
// @Param uid query string false "Filter by submitter"
// @Param instanceId query string false "Filter by instance"
// @Param approved query bool false "Filter by moderation state (admin only)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /forms/{id}/results [get]
func (h *ResultHandler) List(c *gin.Context) {
	filter := models.ResultFilter{
		FormID:     c.Param("id"),
		UID:        c.Query("uid"),
		InstanceID: c.Query("instanceId"),
	}
	if approved := c.Query("approved"); approved != "" {
		if approved == "true" {
			v := true
			filter.Approved = &v
		} else if approved == "false" {
			v := false
			filter.Approved = &v
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

	results, pagination, err := h.results.List(c.Request.Context(), viewerFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, pagination)
}

// Get godoc
// @Summary Get one submission with its values
// @Description Accessible to the submitter, holders of the submission's
// @Description edit token, and viewers with results access.
// @Tags Results
// @Produce json
// @Param resultId path int true "Result ID"
// @Param token query string false "Anonymous access token"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /results/{resultId} [get]
func (h *ResultHandler) Get(c *gin.Context) {
	id, err := resultID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	detail, err := h.results.Get(c.Request.Context(), viewerFromContext(c), id, c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Approve godoc
// @Summary Approve a moderated submission
// @Tags Results
// @Produce json
// @Param resultId path int true "Result ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /results/{resultId}/approve [post]
func (h *ResultHandler) Approve(c *gin.Context) {
	id, err := resultID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.results.Approve(c.Request.Context(), viewerFromContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete a submission and its values
// @Tags Results
// @Produce json
// @Param resultId path int true "Result ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /results/{resultId} [delete]
func (h *ResultHandler) Delete(c *gin.Context) {
	id, err := resultID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.results.Delete(c.Request.Context(), viewerFromContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
