package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/formlane/forms-api/internal/service"
	"github.com/formlane/forms-api/pkg/response"
)

// CaptchaHandler issues one-time captcha challenge tokens for forms that
// require them.
type CaptchaHandler struct {
	captcha *service.CaptchaService
}

// NewCaptchaHandler constructs CaptchaHandler.
func NewCaptchaHandler(captcha *service.CaptchaService) *CaptchaHandler {
	return &CaptchaHandler{captcha: captcha}
}

// Challenge godoc
// @Summary Issue a captcha challenge token
// @Description The returned token must be echoed back in the submission's
// @Description captcha_response field. Tokens are bound to the requesting
// @Description IP and consumed on first use.
// @Tags Forms
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /captcha [get]
func (h *CaptchaHandler) Challenge(c *gin.Context) {
	token, err := h.captcha.Challenge(c.Request.Context(), c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"captcha_token": token}, nil)
}
