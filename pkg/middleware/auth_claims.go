package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"render-engine/pkg/config"
)

// RenderClaims 渲染服务关心的身份声明；认证本身由上游网关完成，
// 这里只负责把令牌中的租户/用户信息透传到请求上下文。
type RenderClaims struct {
	TenantID string `json:"tenant_id"`
	Env      string `json:"env"`
	UserID   string `json:"user_id"`
	jwt.RegisteredClaims
}

// AuthClaimsMiddleware 解析Bearer令牌中的租户声明；令牌缺失或非法时不拦截，
// 下游依赖显式的header回退（见RequestContextMiddleware）。
func AuthClaimsMiddleware(cfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.Next()
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")

		claims := &RenderClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return []byte(cfg.Secret), nil
		})
		if err == nil && token.Valid {
			if claims.TenantID != "" {
				c.Set("tenant_id", claims.TenantID)
			}
			if claims.Env != "" {
				c.Set("env", claims.Env)
			}
			if claims.UserID != "" {
				c.Set("user_id", claims.UserID)
			}
		}
		c.Next()
	}
}
