// Package middleware file: internal/middleware/auth.go
package middleware

import (
	"ClickFlow/internal/service"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const claimKey = "clickflow.claim"

// RequireAuth 要求请求携带有效的 Bearer 令牌；鉴权关闭时直接放行
func RequireAuth(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth == nil || !auth.Enabled() {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			slog.Debug("RequireAuth: 缺少令牌", "path", c.Request.URL.Path, "ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Authentication required"})
			return
		}
		claims, err := auth.ParseToken(strings.TrimSpace(token))
		if err != nil {
			slog.Info("RequireAuth: 令牌无效", "path", c.Request.URL.Path, "ip", c.ClientIP(), "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Invalid or expired token"})
			return
		}
		c.Set(claimKey, claims)
		c.Next()
	}
}

// ClaimFrom 返回 RequireAuth 放入上下文的令牌载荷，未鉴权时为 nil
func ClaimFrom(c *gin.Context) *service.Claim {
	v, ok := c.Get(claimKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*service.Claim)
	return claims
}
