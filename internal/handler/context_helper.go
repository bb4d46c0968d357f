package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-announcements-api/internal/middleware"
	"github.com/noah-isme/clinic-announcements-api/internal/models"
	appErrors "github.com/noah-isme/clinic-announcements-api/pkg/errors"
	"github.com/noah-isme/clinic-announcements-api/pkg/response"
)

// callerFromContext returns the authenticated caller or writes 401 and reports false.
func callerFromContext(c *gin.Context) (models.Caller, bool) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok || caller.ID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Caller{}, false
	}
	return caller, true
}
