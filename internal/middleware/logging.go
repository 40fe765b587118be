// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"drone-helpdesk-go/pkg/log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader 用于在请求与响应间传递请求 ID。
const RequestIDHeader = "X-Request-ID"

// RequestLogger 为每个请求分配请求 ID 并在结束时记录一条结构化日志。
// 请求体与响应体可能包含用户问题和完整回答，不写入日志。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("requestID", requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		log.Infow("HTTP Request Log",
			"requestID", requestID,
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"operator", OperatorID(c),
			"responseSize", c.Writer.Size(),
		)
	}
}
