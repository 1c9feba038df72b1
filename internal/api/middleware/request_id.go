package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CtxRequestID 请求追踪 ID 的上下文键，pkg/response 错误响应同样读取此键
const CtxRequestID = "request_id"

const (
	headerRequestID = "X-Request-ID"
	requestIDMaxLen = 64
)

// RequestID 透传上游 X-Request-ID，缺失或不合法时生成 UUID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(headerRequestID)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		c.Set(CtxRequestID, rid)
		c.Header(headerRequestID, rid)
		c.Next()
	}
}

// validRequestID 仅接受字母数字与 -_.: ，拒绝换行等可污染日志的字符
func validRequestID(s string) bool {
	if s == "" || len(s) > requestIDMaxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-' || ch == '_' || ch == '.' || ch == ':':
		default:
			return false
		}
	}
	return true
}
