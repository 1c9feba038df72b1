package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// requestIDKey 与 middleware.CtxRequestID 一致；pkg 不反向依赖 internal
const requestIDKey = "request_id"

// 成功码与通用错误码
const (
	CodeOK           = 0
	CodeInternal     = 50000
	CodeUnavailable  = 50001
	msgSuccess       = "success"
	msgInternalError = "服务器内部错误"
)

// Response 统一响应结构
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Details   string      `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"` // 仅错误响应携带，便于对照日志
}

// Pagination 分页元数据
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// PageData 分页响应数据
type PageData struct {
	List       interface{} `json:"list"`
	Pagination Pagination  `json:"pagination"`
}

// NewPagination 计算总页数；pageSize<=0 时按 20
func NewPagination(total int64, page, pageSize int) Pagination {
	if pageSize <= 0 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: totalPages}
}

// ── 成功响应 ──

func success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Code: CodeOK, Message: msgSuccess, Data: data})
}

// OK 200 成功响应
func OK(c *gin.Context, data interface{}) { success(c, http.StatusOK, data) }

// Created 201 创建成功
func Created(c *gin.Context, data interface{}) { success(c, http.StatusCreated, data) }

// OKPage 200 分页成功；list 为 nil 时输出空数组
func OKPage(c *gin.Context, list interface{}, total int64, page, pageSize int) {
	if list == nil {
		list = []struct{}{}
	}
	success(c, http.StatusOK, PageData{List: list, Pagination: NewPagination(total, page, pageSize)})
}

// ── 错误响应 ──

// Error 通用错误响应
func Error(c *gin.Context, httpStatus int, code int, message string) {
	ErrorWithDetails(c, httpStatus, code, message, "")
}

// ErrorWithDetails 带详情的错误响应
func ErrorWithDetails(c *gin.Context, httpStatus int, code int, message, details string) {
	c.JSON(httpStatus, Response{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: c.GetString(requestIDKey),
	})
}

// ── 常见快捷方式 ──

// BadRequest 400
func BadRequest(c *gin.Context, code int, message string) {
	Error(c, http.StatusBadRequest, code, message)
}

// Unauthorized 401
func Unauthorized(c *gin.Context, code int, message string) {
	Error(c, http.StatusUnauthorized, code, message)
}

// Forbidden 403
func Forbidden(c *gin.Context, code int, message string) {
	Error(c, http.StatusForbidden, code, message)
}

// NotFound 404
func NotFound(c *gin.Context, code int, message string) {
	Error(c, http.StatusNotFound, code, message)
}

// Conflict 409
func Conflict(c *gin.Context, code int, message string) {
	Error(c, http.StatusConflict, code, message)
}

// TooManyRequests 429
func TooManyRequests(c *gin.Context, code int, message string) {
	Error(c, http.StatusTooManyRequests, code, message)
}

// InternalError 500
func InternalError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, CodeInternal, msgInternalError)
}

// ServiceUnavailable 503，依赖组件未启用或不可用
func ServiceUnavailable(c *gin.Context, message string) {
	Error(c, http.StatusServiceUnavailable, CodeUnavailable, message)
}
