package handler

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mohamed66886/sehaty-sub000/internal/api/middleware"
	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/service"
	pkgerrors "github.com/mohamed66886/sehaty-sub000/pkg/errors"
	"github.com/mohamed66886/sehaty-sub000/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get(middleware.CtxUserID)
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetRole 从 Gin 上下文中安全提取 role。
func MustGetRole(c *gin.Context) (string, bool) {
	v, exists := c.Get(middleware.CtxRole)
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}

// MustGetCaller 同时提取 user_id 与 role
func MustGetCaller(c *gin.Context) (string, string, bool) {
	id, ok := MustGetUserID(c)
	if !ok {
		return "", "", false
	}
	role, ok := MustGetRole(c)
	if !ok {
		return "", "", false
	}
	return id, role, true
}

// tokenExpiry 当前 Access Token 的过期时间，缺失时按 15 分钟兜底
func tokenExpiry(c *gin.Context) time.Time {
	if v, ok := c.Get(middleware.CtxTokenExp); ok {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Now().Add(15 * time.Minute)
}

// bindFailed 参数绑定失败：请求体超限返回 413，其余 400
func bindFailed(c *gin.Context, err error) {
	if middleware.IsBodyTooLarge(err) {
		response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
		return
	}
	response.ErrorWithDetails(c, http.StatusBadRequest, 10001, "参数校验失败", err.Error())
}

// pageOf 返回分页参数的页码与每页条数
func pageOf(p *dto.PaginationRequest) (int, int) {
	return p.GetPage(), p.GetPageSize()
}

// sendFile 以附件形式返回文件
func sendFile(c *gin.Context, data []byte, filename, contentType string) {
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(filename))
	c.Data(http.StatusOK, contentType, data)
}

// handleCommonError 处理跨模块共享的业务错误，未识别时返回 500
func handleCommonError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNoPermission):
		response.Forbidden(c, 10003, "无权操作")
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, 12001, "用户不存在")
	case errors.Is(err, service.ErrNotStudent):
		response.BadRequest(c, 12004, "目标用户不是学生")
	case errors.Is(err, service.ErrClassNotFound):
		response.NotFound(c, 13001, "班级不存在")
	case errors.Is(err, service.ErrNotClassOwner):
		response.Forbidden(c, 13002, "只能管理自己的班级")
	case errors.Is(err, service.ErrStudentNotInClass):
		response.BadRequest(c, 13007, "该学生不在此班级")
	case errors.Is(err, service.ErrInvalidDate):
		response.BadRequest(c, 14002, "日期格式应为 YYYY-MM-DD")
	case errors.Is(err, service.ErrInvalidDateRange):
		response.BadRequest(c, 14003, "开始日期不能晚于结束日期")
	case errors.Is(err, service.ErrDateRangeTooLarge):
		response.BadRequest(c, 14004, "查询范围不能超过 366 天")
	case errors.Is(err, service.ErrStorageFailed):
		response.Error(c, http.StatusBadGateway, 10006, "文件上传失败")
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 10007, "数据已被其他操作修改，请刷新后重试")
	case errors.Is(err, pkgerrors.ErrLockHeld):
		response.Conflict(c, 10008, "操作正在处理中，请勿重复提交")
	default:
		response.InternalError(c)
	}
}
