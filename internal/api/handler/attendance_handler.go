package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/service"
	"github.com/mohamed66886/sehaty-sub000/pkg/response"
)

// AttendanceHandler 考勤模块 HTTP 处理器
type AttendanceHandler struct {
	attendanceSvc service.AttendanceService
}

// NewAttendanceHandler 创建 AttendanceHandler
func NewAttendanceHandler(attendanceSvc service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendanceSvc: attendanceSvc}
}

// Mark 批量录入某日考勤
// POST /api/v1/attendance
func (h *AttendanceHandler) Mark(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	result, err := h.attendanceSvc.Mark(c.Request.Context(), &req, callerID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, result)
}

// List 考勤明细
// GET /api/v1/attendance?class_id&from&to&status
func (h *AttendanceHandler) List(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var q dto.AttendanceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindFailed(c, err)
		return
	}

	records, err := h.attendanceSvc.List(c.Request.Context(), &q, callerID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, gin.H{"list": records})
}

// Daily 按天分组
// GET /api/v1/attendance/daily
func (h *AttendanceHandler) Daily(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var q dto.AttendanceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindFailed(c, err)
		return
	}

	days, err := h.attendanceSvc.Daily(c.Request.Context(), &q, callerID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, gin.H{"list": days})
}

// Summary 汇总与出勤率
// GET /api/v1/attendance/summary
func (h *AttendanceHandler) Summary(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var q dto.AttendanceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindFailed(c, err)
		return
	}

	summary, err := h.attendanceSvc.Summary(c.Request.Context(), &q, callerID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, summary)
}

// DeleteByDate 删除班级某日全部考勤
// DELETE /api/v1/attendance/by-date?class_id&date
func (h *AttendanceHandler) DeleteByDate(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var q dto.DeleteAttendanceByDateQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindFailed(c, err)
		return
	}

	result, err := h.attendanceSvc.DeleteByDate(c.Request.Context(), &q, callerID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, result)
}

// Update 修改单条考勤
// PUT /api/v1/attendance/:id
func (h *AttendanceHandler) Update(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.UpdateAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	record, err := h.attendanceSvc.Update(c.Request.Context(), c.Param("id"), &req, callerID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, record)
}

// Delete 删除单条考勤
// DELETE /api/v1/attendance/:id
func (h *AttendanceHandler) Delete(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	if err := h.attendanceSvc.Delete(c.Request.Context(), c.Param("id"), callerID, role); err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, nil)
}

// StudentHistory 学生考勤历史
// GET /api/v1/attendance/students/:id?from&to
func (h *AttendanceHandler) StudentHistory(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	history, err := h.attendanceSvc.StudentHistory(c.Request.Context(), c.Param("id"), c.Query("from"), c.Query("to"), callerID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, history)
}

// handleAttendanceError 统一处理考勤模块业务错误
func (h *AttendanceHandler) handleAttendanceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAttendanceNotFound):
		response.NotFound(c, 14001, "考勤记录不存在")
	default:
		handleCommonError(c, err)
	}
}
