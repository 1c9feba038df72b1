package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/mohamed66886/sehaty-sub000/internal/service"
	"github.com/mohamed66886/sehaty-sub000/pkg/response"
)

// DashboardHandler 首页概览 HTTP 处理器
type DashboardHandler struct {
	dashboardSvc service.DashboardService
}

// NewDashboardHandler 创建 DashboardHandler
func NewDashboardHandler(dashboardSvc service.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboardSvc: dashboardSvc}
}

// Admin 管理员概览
// GET /api/v1/dashboard/admin
func (h *DashboardHandler) Admin(c *gin.Context) {
	data, err := h.dashboardSvc.Admin(c.Request.Context())
	if err != nil {
		handleCommonError(c, err)
		return
	}
	response.OK(c, data)
}

// Teacher 教师概览
// GET /api/v1/dashboard/teacher
func (h *DashboardHandler) Teacher(c *gin.Context) {
	teacherID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	data, err := h.dashboardSvc.Teacher(c.Request.Context(), teacherID)
	if err != nil {
		handleCommonError(c, err)
		return
	}
	response.OK(c, data)
}

// Parent 家长概览（按孩子汇总）
// GET /api/v1/dashboard/parent
func (h *DashboardHandler) Parent(c *gin.Context) {
	parentID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	data, err := h.dashboardSvc.Parent(c.Request.Context(), parentID)
	if err != nil {
		handleCommonError(c, err)
		return
	}
	response.OK(c, data)
}
