package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-announcements-api/internal/models"
	appErrors "github.com/noah-isme/clinic-announcements-api/pkg/errors"
	"github.com/noah-isme/clinic-announcements-api/pkg/response"
)

const (
	// ContextUserKey is the gin context key storing JWT claims.
	ContextUserKey = "currentUser"
	// ContextCallerKey stores the resolved models.Caller.
	ContextCallerKey = "currentCaller"
)

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// CallerResolver turns verified claims into the caller identity.
type CallerResolver interface {
	Caller(claims *models.JWTClaims) models.Caller
}

// JWT protects routes by requiring a valid access token and resolves the caller.
func JWT(tokens TokenValidator, callers CallerResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := tokens.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Set(ContextCallerKey, callers.Caller(claims))
		c.Next()
	}
}

// CallerFromContext returns the caller resolved by JWT.
func CallerFromContext(c *gin.Context) (models.Caller, bool) {
	value, exists := c.Get(ContextCallerKey)
	if !exists {
		return models.Caller{}, false
	}
	caller, ok := value.(models.Caller)
	return caller, ok
}
