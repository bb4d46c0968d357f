package middleware

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/clinic-announcements-api/pkg/errors"
	"github.com/noah-isme/clinic-announcements-api/pkg/response"
)

// RequirePublisher allows only callers whose role may publish announcements.
func RequirePublisher() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !caller.IsPublisher {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "publisher role required"))
			c.Abort()
			return
		}
		c.Next()
	}
}
