package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/service"
	"github.com/mohamed66886/sehaty-sub000/pkg/response"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypePDF  = "application/pdf"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportAttendance 导出考勤
// GET /api/v1/attendance/export?class_id&from&to&format=csv|xlsx
func (h *ExportHandler) ExportAttendance(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var q dto.AttendanceExportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindFailed(c, err)
		return
	}

	buf, filename, err := h.exportSvc.ExportAttendance(c.Request.Context(), &q, callerID, role)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	contentType := contentTypeXLSX
	if q.Format == "csv" {
		contentType = contentTypeCSV
	}
	sendFile(c, buf.Bytes(), filename, contentType)
}

// ExportExamResults 导出考试成绩
// GET /api/v1/exams/:id/results/export
func (h *ExportHandler) ExportExamResults(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	buf, filename, err := h.exportSvc.ExportExamResults(c.Request.Context(), c.Param("id"), callerID, role)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	sendFile(c, buf.Bytes(), filename, contentTypeXLSX)
}

// ResultReport 单个成绩单 PDF
// GET /api/v1/results/:id/report.pdf
func (h *ExportHandler) ResultReport(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	buf, filename, err := h.exportSvc.ResultReportPDF(c.Request.Context(), c.Param("id"), callerID, role)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	sendFile(c, buf.Bytes(), filename, contentTypePDF)
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExportFormat):
		response.BadRequest(c, 10001, err.Error())
	case errors.Is(err, service.ErrExamNotFound):
		response.NotFound(c, 16001, "考试不存在")
	case errors.Is(err, service.ErrExamResultNotFound):
		response.NotFound(c, 16002, "考试成绩不存在")
	case errors.Is(err, service.ErrResultNotSubmitted):
		response.Error(c, http.StatusConflict, 16016, err.Error())
	case errors.Is(err, service.ErrExportGenerateFail):
		response.InternalError(c)
	default:
		handleCommonError(c, err)
	}
}
