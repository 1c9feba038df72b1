package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/service"
	"github.com/mohamed66886/sehaty-sub000/pkg/response"
)

// ClassHandler 班级与班级码 HTTP 处理器
type ClassHandler struct {
	classSvc service.ClassService
}

// NewClassHandler 创建 ClassHandler
func NewClassHandler(classSvc service.ClassService) *ClassHandler {
	return &ClassHandler{classSvc: classSvc}
}

// ListClasses 教师看自己的班级，管理员看全部
// GET /api/v1/classes
func (h *ClassHandler) ListClasses(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	classes, err := h.classSvc.List(c.Request.Context(), callerID, role)
	if err != nil {
		h.handleClassError(c, err)
		return
	}

	response.OK(c, gin.H{"list": classes})
}

// CreateClass 创建班级
// POST /api/v1/classes
func (h *ClassHandler) CreateClass(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.CreateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	class, err := h.classSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleClassError(c, err)
		return
	}

	response.Created(c, class)
}

// GetClass 班级详情
// GET /api/v1/classes/:id
func (h *ClassHandler) GetClass(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	class, err := h.classSvc.GetByID(c.Request.Context(), c.Param("id"), callerID, role)
	if err != nil {
		h.handleClassError(c, err)
		return
	}

	response.OK(c, class)
}

// UpdateClass 修改班级
// PUT /api/v1/classes/:id
func (h *ClassHandler) UpdateClass(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.UpdateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	class, err := h.classSvc.Update(c.Request.Context(), c.Param("id"), &req, callerID, role)
	if err != nil {
		h.handleClassError(c, err)
		return
	}

	response.OK(c, class)
}

// DeleteClass 删除班级
// DELETE /api/v1/classes/:id
func (h *ClassHandler) DeleteClass(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	if err := h.classSvc.Delete(c.Request.Context(), c.Param("id"), callerID, role); err != nil {
		h.handleClassError(c, err)
		return
	}

	response.OK(c, nil)
}

// ListStudents 班级花名册
// GET /api/v1/classes/:id/students
func (h *ClassHandler) ListStudents(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	students, err := h.classSvc.ListStudents(c.Request.Context(), c.Param("id"), callerID, role)
	if err != nil {
		h.handleClassError(c, err)
		return
	}

	response.OK(c, gin.H{"list": students})
}

// RemoveStudent 从花名册移除学生
// DELETE /api/v1/classes/:id/students/:sid
func (h *ClassHandler) RemoveStudent(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	if err := h.classSvc.RemoveStudent(c.Request.Context(), c.Param("id"), c.Param("sid"), callerID, role); err != nil {
		h.handleClassError(c, err)
		return
	}

	response.OK(c, nil)
}

// ────────────────────── 班级码 ──────────────────────

// GenerateCode 生成新的班级码，旧码失效
// POST /api/v1/classes/:id/code
func (h *ClassHandler) GenerateCode(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.GenerateClassCodeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindFailed(c, err)
			return
		}
	}

	code, err := h.classSvc.GenerateCode(c.Request.Context(), c.Param("id"), &req, callerID, role)
	if err != nil {
		h.handleClassError(c, err)
		return
	}

	response.Created(c, code)
}

// GetActiveCode 当前有效班级码
// GET /api/v1/classes/:id/code
func (h *ClassHandler) GetActiveCode(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	code, err := h.classSvc.GetActiveCode(c.Request.Context(), c.Param("id"), callerID, role)
	if err != nil {
		h.handleClassError(c, err)
		return
	}

	response.OK(c, code)
}

// CodeQR 班级码二维码
// GET /api/v1/classes/:id/code/qr
func (h *ClassHandler) CodeQR(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	png, err := h.classSvc.CodeQR(c.Request.Context(), c.Param("id"), callerID, role)
	if err != nil {
		h.handleClassError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// ValidateCode 校验班级码（公开）
// GET /api/v1/class-codes/:code
func (h *ClassHandler) ValidateCode(c *gin.Context) {
	result, err := h.classSvc.ValidateCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.handleClassError(c, err)
		return
	}

	response.OK(c, result)
}

// Join 学生通过班级码加入班级
// POST /api/v1/classes/join
func (h *ClassHandler) Join(c *gin.Context) {
	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.JoinClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	class, err := h.classSvc.Join(c.Request.Context(), studentID, &req)
	if err != nil {
		h.handleClassError(c, err)
		return
	}

	response.OK(c, class)
}

// handleClassError 统一处理班级模块业务错误
func (h *ClassHandler) handleClassError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrClassCodeInvalid):
		response.BadRequest(c, 13003, "班级码无效或已过期")
	case errors.Is(err, service.ErrClassCodeExhausted):
		response.Error(c, http.StatusServiceUnavailable, 13004, "班级码生成失败，请稍后重试")
	case errors.Is(err, service.ErrClassHasNoCode):
		response.NotFound(c, 13005, "该班级尚未生成班级码")
	case errors.Is(err, service.ErrAlreadyInClass):
		response.Conflict(c, 13006, "已在该班级中")
	case errors.Is(err, service.ErrClassHasStudents):
		response.BadRequest(c, 13008, "班级内仍有学生，无法删除")
	default:
		handleCommonError(c, err)
	}
}
