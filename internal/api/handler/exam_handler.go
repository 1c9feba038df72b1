package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/service"
	"github.com/mohamed66886/sehaty-sub000/pkg/response"
)

// ExamHandler 考试模块 HTTP 处理器
type ExamHandler struct {
	examSvc service.ExamService
}

// NewExamHandler 创建 ExamHandler
func NewExamHandler(examSvc service.ExamService) *ExamHandler {
	return &ExamHandler{examSvc: examSvc}
}

// ListExams 考试列表
// GET /api/v1/exams
func (h *ExamHandler) ListExams(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.ExamListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}

	list, total, err := h.examSvc.List(c.Request.Context(), &req, callerID, role)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	page, size := pageOf(&req.PaginationRequest)
	response.OKPage(c, list, total, page, size)
}

// CreateExam 创建考试
// POST /api/v1/exams
func (h *ExamHandler) CreateExam(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.CreateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	exam, err := h.examSvc.Create(c.Request.Context(), &req, callerID, role)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	response.Created(c, exam)
}

// GetExam 考试详情（教师含答案）
// GET /api/v1/exams/:id
func (h *ExamHandler) GetExam(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	exam, err := h.examSvc.GetByID(c.Request.Context(), c.Param("id"), callerID, role)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	response.OK(c, exam)
}

// UpdateExam 修改考试
// PUT /api/v1/exams/:id
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.UpdateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	exam, err := h.examSvc.Update(c.Request.Context(), c.Param("id"), &req, callerID, role)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	response.OK(c, exam)
}

// DeleteExam 删除考试
// DELETE /api/v1/exams/:id
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	if err := h.examSvc.Delete(c.Request.Context(), c.Param("id"), callerID, role); err != nil {
		h.handleExamError(c, err)
		return
	}

	response.OK(c, nil)
}

// Publish 发布或取消发布
// PUT /api/v1/exams/:id/publish
func (h *ExamHandler) Publish(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.PublishExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	exam, err := h.examSvc.Publish(c.Request.Context(), c.Param("id"), req.Published, callerID, role)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	response.OK(c, exam)
}

// AddQuestions 追加题目
// POST /api/v1/exams/:id/questions
func (h *ExamHandler) AddQuestions(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.ReplaceQuestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	exam, err := h.examSvc.AddQuestions(c.Request.Context(), c.Param("id"), req.Questions, callerID, role)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	response.OK(c, exam)
}

// ReplaceQuestions 替换全部题目
// PUT /api/v1/exams/:id/questions
func (h *ExamHandler) ReplaceQuestions(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.ReplaceQuestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	exam, err := h.examSvc.ReplaceQuestions(c.Request.Context(), c.Param("id"), req.Questions, callerID, role)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	response.OK(c, exam)
}

// ImportQuestions 从 xlsx/csv 导入题目（multipart 字段 file）
// POST /api/v1/exams/:id/questions/import
func (h *ExamHandler) ImportQuestions(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		bindFailed(c, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, 10001, "无法读取上传文件")
		return
	}
	defer f.Close()

	result, err := h.examSvc.ImportQuestions(c.Request.Context(), c.Param("id"), f, fh.Filename, callerID, role)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	response.OK(c, result)
}

// Start 学生开始作答
// POST /api/v1/exams/:id/start
func (h *ExamHandler) Start(c *gin.Context) {
	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.examSvc.Start(c.Request.Context(), c.Param("id"), studentID)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	response.OK(c, result)
}

// Submit 学生交卷
// POST /api/v1/exams/:id/submit
func (h *ExamHandler) Submit(c *gin.Context) {
	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.SubmitExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	result, err := h.examSvc.Submit(c.Request.Context(), c.Param("id"), &req, studentID)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	response.OK(c, result)
}

// Results 某场考试的全部成绩
// GET /api/v1/exams/:id/results
func (h *ExamHandler) Results(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	results, err := h.examSvc.Results(c.Request.Context(), c.Param("id"), callerID, role)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	response.OK(c, gin.H{"list": results})
}

// MyResults 学生自己的成绩
// GET /api/v1/exams/results/me
func (h *ExamHandler) MyResults(c *gin.Context) {
	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var page dto.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		bindFailed(c, err)
		return
	}

	results, total, err := h.examSvc.MyResults(c.Request.Context(), studentID, &page)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	p, size := pageOf(&page)
	response.OKPage(c, results, total, p, size)
}

// Stats 成绩统计
// GET /api/v1/exams/:id/stats
func (h *ExamHandler) Stats(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	stats, err := h.examSvc.Stats(c.Request.Context(), c.Param("id"), callerID, role)
	if err != nil {
		h.handleExamError(c, err)
		return
	}

	response.OK(c, stats)
}

// handleExamError 统一处理考试模块业务错误
func (h *ExamHandler) handleExamError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExamNotFound):
		response.NotFound(c, 16001, "考试不存在")
	case errors.Is(err, service.ErrExamResultNotFound):
		response.NotFound(c, 16002, "考试成绩不存在")
	case errors.Is(err, service.ErrExamWindowInvalid):
		response.BadRequest(c, 16003, "考试结束时间必须晚于开始时间")
	case errors.Is(err, service.ErrExamTimeFormat):
		response.BadRequest(c, 16004, "时间格式应为 RFC3339")
	case errors.Is(err, service.ErrInvalidQuestion):
		// 错误信息包含具体题号
		response.BadRequest(c, 16005, err.Error())
	case errors.Is(err, service.ErrExamNoQuestions):
		response.BadRequest(c, 16006, "考试至少需要一道题目")
	case errors.Is(err, service.ErrExamPublished):
		response.Conflict(c, 16007, "考试已发布，无法修改题目")
	case errors.Is(err, service.ErrExamNotPublished):
		response.Forbidden(c, 16008, "考试尚未发布")
	case errors.Is(err, service.ErrExamNotOpen):
		response.Forbidden(c, 16009, "不在考试时间范围内")
	case errors.Is(err, service.ErrExamNotStarted):
		response.BadRequest(c, 16010, "尚未开始作答")
	case errors.Is(err, service.ErrExamAlreadySubmitted):
		response.Conflict(c, 16011, "已交卷，不能重复提交")
	case errors.Is(err, service.ErrExamSubmitting):
		response.Conflict(c, 16012, "交卷处理中，请勿重复提交")
	case errors.Is(err, service.ErrNotInExamClass):
		response.Forbidden(c, 16013, "不属于该考试所在班级")
	case errors.Is(err, service.ErrImportBadFormat):
		response.BadRequest(c, 16014, "仅支持 .xlsx 与 .csv 文件")
	case errors.Is(err, service.ErrImportNoData), errors.Is(err, service.ErrImportBadHeader), errors.Is(err, service.ErrImportTooManyRows):
		response.BadRequest(c, 16015, err.Error())
	default:
		handleCommonError(c, err)
	}
}
