package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-announcements-api/pkg/middleware/requestid"
)

// Audit logs successful publisher mutations with the acting caller and target id.
func Audit(logger *zap.Logger, action string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}
		fields := []zap.Field{
			zap.String("action", action),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Time("at", start),
		}
		if id := c.Param("id"); id != "" {
			fields = append(fields, zap.String("announcement_id", id))
		}
		if caller, ok := CallerFromContext(c); ok {
			fields = append(fields, zap.String("caller_id", caller.ID), zap.String("caller_role", string(caller.Role)))
		}
		if reqID := requestid.Value(c); reqID != "" {
			fields = append(fields, zap.String("request_id", reqID))
		}
		logger.Info("audit", fields...)
	}
}
