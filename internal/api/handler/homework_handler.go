package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/service"
	"github.com/mohamed66886/sehaty-sub000/pkg/response"
)

// HomeworkHandler 作业模块 HTTP 处理器
type HomeworkHandler struct {
	homeworkSvc service.HomeworkService
}

// NewHomeworkHandler 创建 HomeworkHandler
func NewHomeworkHandler(homeworkSvc service.HomeworkService) *HomeworkHandler {
	return &HomeworkHandler{homeworkSvc: homeworkSvc}
}

// CreateHomework 布置作业（multipart：字段 + files）
// POST /api/v1/homework
func (h *HomeworkHandler) CreateHomework(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.CreateHomeworkRequest
	if err := c.ShouldBind(&req); err != nil {
		bindFailed(c, err)
		return
	}
	files, closeAll, err := formUploads(c, "files")
	if err != nil {
		bindFailed(c, err)
		return
	}
	defer closeAll()

	hw, err := h.homeworkSvc.Create(c.Request.Context(), &req, files, callerID, role)
	if err != nil {
		h.handleHomeworkError(c, err)
		return
	}

	response.Created(c, hw)
}

// ListHomework 教师看自己布置的，学生看本班的
// GET /api/v1/homework
func (h *HomeworkHandler) ListHomework(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.HomeworkListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}

	list, total, err := h.homeworkSvc.List(c.Request.Context(), &req, callerID, role)
	if err != nil {
		h.handleHomeworkError(c, err)
		return
	}

	page, size := pageOf(&req.PaginationRequest)
	response.OKPage(c, list, total, page, size)
}

// ListForChildren 家长查看孩子们的作业
// GET /api/v1/homework/children
func (h *HomeworkHandler) ListForChildren(c *gin.Context) {
	parentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.homeworkSvc.ListForChildren(c.Request.Context(), parentID)
	if err != nil {
		h.handleHomeworkError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// GetHomework 作业详情
// GET /api/v1/homework/:id
func (h *HomeworkHandler) GetHomework(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	hw, err := h.homeworkSvc.GetByID(c.Request.Context(), c.Param("id"), callerID, role)
	if err != nil {
		h.handleHomeworkError(c, err)
		return
	}

	response.OK(c, hw)
}

// UpdateHomework 修改作业
// PUT /api/v1/homework/:id
func (h *HomeworkHandler) UpdateHomework(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.UpdateHomeworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	hw, err := h.homeworkSvc.Update(c.Request.Context(), c.Param("id"), &req, callerID, role)
	if err != nil {
		h.handleHomeworkError(c, err)
		return
	}

	response.OK(c, hw)
}

// DeleteHomework 删除作业
// DELETE /api/v1/homework/:id
func (h *HomeworkHandler) DeleteHomework(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	if err := h.homeworkSvc.Delete(c.Request.Context(), c.Param("id"), callerID, role); err != nil {
		h.handleHomeworkError(c, err)
		return
	}

	response.OK(c, nil)
}

// AddAttachments 追加附件（multipart files）
// POST /api/v1/homework/:id/attachments
func (h *HomeworkHandler) AddAttachments(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	files, closeAll, err := formUploads(c, "files")
	if err != nil {
		bindFailed(c, err)
		return
	}
	defer closeAll()
	if len(files) == 0 {
		response.BadRequest(c, 10001, "请选择要上传的文件")
		return
	}

	hw, err := h.homeworkSvc.AddAttachments(c.Request.Context(), c.Param("id"), files, callerID, role)
	if err != nil {
		h.handleHomeworkError(c, err)
		return
	}

	response.OK(c, hw)
}

// RemoveAttachment 按下标删除附件
// DELETE /api/v1/homework/:id/attachments/:index
func (h *HomeworkHandler) RemoveAttachment(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.BadRequest(c, 10001, "附件下标无效")
		return
	}

	hw, err := h.homeworkSvc.RemoveAttachment(c.Request.Context(), c.Param("id"), index, callerID, role)
	if err != nil {
		h.handleHomeworkError(c, err)
		return
	}

	response.OK(c, hw)
}

// Submit 学生提交或重新提交（multipart：content + files）
// POST /api/v1/homework/:id/submit
func (h *HomeworkHandler) Submit(c *gin.Context) {
	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.SubmitHomeworkRequest
	if err := c.ShouldBind(&req); err != nil {
		bindFailed(c, err)
		return
	}
	files, closeAll, err := formUploads(c, "files")
	if err != nil {
		bindFailed(c, err)
		return
	}
	defer closeAll()

	sub, err := h.homeworkSvc.Submit(c.Request.Context(), c.Param("id"), &req, files, studentID)
	if err != nil {
		h.handleHomeworkError(c, err)
		return
	}

	response.OK(c, sub)
}

// ListSubmissions 作业的全部提交
// GET /api/v1/homework/:id/submissions
func (h *HomeworkHandler) ListSubmissions(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	subs, err := h.homeworkSvc.ListSubmissions(c.Request.Context(), c.Param("id"), callerID, role)
	if err != nil {
		h.handleHomeworkError(c, err)
		return
	}

	response.OK(c, gin.H{"list": subs})
}

// Progress 完成情况
// GET /api/v1/homework/:id/progress
func (h *HomeworkHandler) Progress(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	progress, err := h.homeworkSvc.Progress(c.Request.Context(), c.Param("id"), callerID, role)
	if err != nil {
		h.handleHomeworkError(c, err)
		return
	}

	response.OK(c, progress)
}

// Grade 批改
// PUT /api/v1/submissions/:id/grade
func (h *HomeworkHandler) Grade(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.GradeSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	sub, err := h.homeworkSvc.Grade(c.Request.Context(), c.Param("id"), &req, callerID, role)
	if err != nil {
		h.handleHomeworkError(c, err)
		return
	}

	response.OK(c, sub)
}

// handleHomeworkError 统一处理作业模块业务错误
func (h *HomeworkHandler) handleHomeworkError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrHomeworkNotFound):
		response.NotFound(c, 15001, "作业不存在")
	case errors.Is(err, service.ErrSubmissionNotFound):
		response.NotFound(c, 15002, "提交记录不存在")
	case errors.Is(err, service.ErrInvalidDeadline):
		response.BadRequest(c, 15003, "截止时间无效")
	case errors.Is(err, service.ErrFileTooLarge):
		response.BadRequest(c, 15004, "文件超过大小限制")
	case errors.Is(err, service.ErrTooManyFiles):
		response.BadRequest(c, 15005, "附件数量超过限制")
	case errors.Is(err, service.ErrAlreadyGraded):
		response.Conflict(c, 15006, "作业已批改，无法再次提交")
	case errors.Is(err, service.ErrNotInHomeworkClass):
		response.Forbidden(c, 15007, "不属于该作业所在班级")
	case errors.Is(err, service.ErrAttachmentNotFound):
		response.NotFound(c, 15008, "附件不存在")
	case errors.Is(err, service.ErrEmptySubmission):
		response.BadRequest(c, 15009, "提交内容与附件不能同时为空")
	case errors.Is(err, service.ErrSubmissionIsMissing):
		response.BadRequest(c, 15010, "未提交的作业无法批改")
	default:
		handleCommonError(c, err)
	}
}
