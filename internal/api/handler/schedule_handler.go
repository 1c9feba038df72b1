package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/service"
	"github.com/mohamed66886/sehaty-sub000/pkg/response"
)

// ScheduleHandler 周课表 HTTP 处理器
type ScheduleHandler struct {
	scheduleSvc service.ScheduleService
}

// NewScheduleHandler 创建 ScheduleHandler
func NewScheduleHandler(scheduleSvc service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{scheduleSvc: scheduleSvc}
}

// MyWeek 当前用户的周课表
// GET /api/v1/schedules/me
func (h *ScheduleHandler) MyWeek(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	week, err := h.scheduleSvc.GetWeek(c.Request.Context(), callerID, role)
	if err != nil {
		h.handleScheduleError(c, err)
		return
	}

	response.OK(c, week)
}

// MyWeekICS 导出 iCalendar
// GET /api/v1/schedules/me/ics
func (h *ScheduleHandler) MyWeekICS(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	data, err := h.scheduleSvc.ExportICS(c.Request.Context(), callerID, role)
	if err != nil {
		h.handleScheduleError(c, err)
		return
	}

	sendFile(c, data, "schedule.ics", "text/calendar; charset=utf-8")
}

// TeacherWeek 指定教师的周课表（管理员）
// GET /api/v1/schedules/teachers/:id
func (h *ScheduleHandler) TeacherWeek(c *gin.Context) {
	week, err := h.scheduleSvc.GetTeacherWeek(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleScheduleError(c, err)
		return
	}

	response.OK(c, week)
}

// AddSlot 新增课程时段
// POST /api/v1/schedules/days/:day/slots
func (h *ScheduleHandler) AddSlot(c *gin.Context) {
	teacherID, day, ok := h.dayParam(c)
	if !ok {
		return
	}

	var req dto.SlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	result, err := h.scheduleSvc.AddSlot(c.Request.Context(), teacherID, day, &req)
	if err != nil {
		h.handleScheduleError(c, err)
		return
	}

	response.Created(c, result)
}

// EditSlot 修改课程时段
// PUT /api/v1/schedules/days/:day/slots/:slot_id
func (h *ScheduleHandler) EditSlot(c *gin.Context) {
	teacherID, day, ok := h.dayParam(c)
	if !ok {
		return
	}

	var req dto.SlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	result, err := h.scheduleSvc.EditSlot(c.Request.Context(), teacherID, day, c.Param("slot_id"), &req)
	if err != nil {
		h.handleScheduleError(c, err)
		return
	}

	response.OK(c, result)
}

// DeleteSlot 删除课程时段
// DELETE /api/v1/schedules/days/:day/slots/:slot_id
func (h *ScheduleHandler) DeleteSlot(c *gin.Context) {
	teacherID, day, ok := h.dayParam(c)
	if !ok {
		return
	}

	result, err := h.scheduleSvc.DeleteSlot(c.Request.Context(), teacherID, day, c.Param("slot_id"))
	if err != nil {
		h.handleScheduleError(c, err)
		return
	}

	response.OK(c, result)
}

// dayParam 取当前教师 ID 与路径中的星期
func (h *ScheduleHandler) dayParam(c *gin.Context) (string, int, bool) {
	teacherID, ok := MustGetUserID(c)
	if !ok {
		return "", 0, false
	}
	day, err := strconv.Atoi(c.Param("day"))
	if err != nil {
		response.BadRequest(c, 17001, service.ErrInvalidDay.Error())
		return "", 0, false
	}
	return teacherID, day, true
}

// handleScheduleError 统一处理课表模块业务错误
func (h *ScheduleHandler) handleScheduleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDay):
		response.BadRequest(c, 17001, err.Error())
	case errors.Is(err, service.ErrSlotTimeInvalid):
		response.BadRequest(c, 17002, err.Error())
	case errors.Is(err, service.ErrSlotOverlap):
		response.Conflict(c, 17003, err.Error())
	case errors.Is(err, service.ErrSlotNotFound):
		response.NotFound(c, 17004, err.Error())
	default:
		handleCommonError(c, err)
	}
}
