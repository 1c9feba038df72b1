package middleware

import (
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 查询串中出现时需打码的参数，/ws?token= 会携带 access token
var sensitiveQueryKeys = []string{"token", "code", "password"}

// quietPaths 探活与抓取路径，成功时只记 Debug
var quietPaths = map[string]bool{"/health": true, "/metrics": true}

// Logger 访问日志中间件，5xx 记 Error，4xx 记 Warn
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", c.GetString(CtxRequestID)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if q := redactQuery(c.Request.URL.RawQuery); q != "" {
			fields = append(fields, zap.String("query", q))
		}
		if uid := c.GetString(CtxUserID); uid != "" {
			fields = append(fields, zap.String("user_id", uid))
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			fields = append(fields, zap.String("errors", errs.String()))
		}

		switch {
		case status >= 500:
			logger.Error("请求处理失败", fields...)
		case status >= 400:
			logger.Warn("客户端错误", fields...)
		case quietPaths[path]:
			logger.Debug("请求完成", fields...)
		default:
			logger.Info("请求完成", fields...)
		}
	}
}

// redactQuery 将敏感参数值替换为 ***，无法解析时整体丢弃
func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "<unparsable>"
	}
	for _, k := range sensitiveQueryKeys {
		if _, ok := values[k]; ok {
			values.Set(k, "***")
		}
	}
	return values.Encode()
}
