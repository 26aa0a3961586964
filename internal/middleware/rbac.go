package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/formlane/forms-api/internal/models"
	appErrors "github.com/formlane/forms-api/pkg/errors"
	"github.com/formlane/forms-api/pkg/response"
)

// RequireGroup blocks requests whose token lacks membership of every given
// security group. Finer-grained checks (form ownership, per-form fill and
// results groups) live in the services.
func RequireGroup(gids ...int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		viewer := claims.Viewer(c.ClientIP())
		for _, gid := range gids {
			if viewer.InGroup(gid) {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoot restricts a route to the site admin group.
func RequireRoot() gin.HandlerFunc {
	return RequireGroup(models.RootGID)
}
