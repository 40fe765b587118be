// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"drone-helpdesk-go/pkg/log"
	"drone-helpdesk-go/pkg/token"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ClaimsKey 是 gin 上下文中保存 *token.OperatorClaims 的键。
const ClaimsKey = "claims"

// AuthMiddleware 校验 Authorization: Bearer 头。WebSocket 路由无法设置请求头，
// 因此当路径参数 token 存在时改用它。
func AuthMiddleware(verifier *token.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Param("token")
		if tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含有效的授权头"})
				return
			}
			tokenString = strings.TrimPrefix(authHeader, bearerPrefix)
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			log.Warnf("[AuthMiddleware] token 校验失败, path: %s, error: %v", c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token"})
			return
		}
		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// OperatorID 返回当前请求的操作员 ID，未认证时为空。
func OperatorID(c *gin.Context) string {
	if v, ok := c.Get(ClaimsKey); ok {
		if claims, ok := v.(*token.OperatorClaims); ok {
			return claims.OperatorID
		}
	}
	return ""
}
