package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/formlane/forms-api/internal/middleware"
	"github.com/formlane/forms-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// viewerFromContext builds the permission context for the request. With no
// token on the request it yields an anonymous viewer carrying the client IP.
func viewerFromContext(c *gin.Context) models.Viewer {
	return claimsFromContext(c).Viewer(c.ClientIP())
}
