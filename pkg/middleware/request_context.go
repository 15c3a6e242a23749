package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestContextMiddleware 注入 tenant/env/user 和 request_id，便于下游和日志使用。
func RequestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		if tenant := c.GetHeader("X-Tenant-ID"); tenant != "" {
			c.Set("tenant_id", tenant)
		}
		if env := c.GetHeader("X-Env"); env != "" {
			c.Set("env", env)
		}
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			c.Set("user_id", userID)
		}
		c.Set("request_id", reqID)
		c.Writer.Header().Set("X-Request-ID", reqID)
		c.Next()
	}
}
