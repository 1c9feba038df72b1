package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/service"
	"github.com/mohamed66886/sehaty-sub000/pkg/response"
)

// UserHandler 用户模块 HTTP 处理器
type UserHandler struct {
	userSvc service.UserService
}

// NewUserHandler 创建 UserHandler
func NewUserHandler(userSvc service.UserService) *UserHandler {
	return &UserHandler{userSvc: userSvc}
}

// ────────────────────── 个人设置 ──────────────────────

// GetProfile 个人资料
// GET /api/v1/users/me
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	user, err := h.userSvc.GetProfile(c.Request.Context(), userID)
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	response.OK(c, user)
}

// UpdateProfile 修改个人资料
// PUT /api/v1/users/me
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	user, err := h.userSvc.UpdateProfile(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	response.OK(c, user)
}

// UploadAvatar 上传头像（multipart 字段 file）
// PUT /api/v1/users/me/avatar
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	userID, ok := MustGetUserID(c)
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

	result, err := h.userSvc.UploadAvatar(c.Request.Context(), userID, f, fh.Size)
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	response.OK(c, result)
}

// ListChildren 家长查看已关联的孩子
// GET /api/v1/users/me/children
func (h *UserHandler) ListChildren(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	children, err := h.userSvc.ListChildren(c.Request.Context(), userID)
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	response.OK(c, gin.H{"list": children})
}

// ────────────────────── 管理员 ──────────────────────

// ListUsers 用户列表
// GET /api/v1/users
func (h *UserHandler) ListUsers(c *gin.Context) {
	var req dto.UserListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}

	users, total, err := h.userSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	page, size := pageOf(&req.PaginationRequest)
	response.OKPage(c, users, total, page, size)
}

// GetUser 用户详情
// GET /api/v1/users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	user, err := h.userSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	response.OK(c, user)
}

// CreateUser 创建用户
// POST /api/v1/users
func (h *UserHandler) CreateUser(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	result, err := h.userSvc.CreateUser(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	response.Created(c, result)
}

// UpdateUser 更新用户
// PUT /api/v1/users/:id
func (h *UserHandler) UpdateUser(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	user, err := h.userSvc.Update(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	response.OK(c, user)
}

// SetActive 启用/停用账号
// PUT /api/v1/users/:id/status
func (h *UserHandler) SetActive(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	if err := h.userSvc.SetActive(c.Request.Context(), c.Param("id"), *req.IsActive, callerID); err != nil {
		h.handleUserError(c, err)
		return
	}

	response.OK(c, nil)
}

// DeleteUser 删除用户（软删除）
// DELETE /api/v1/users/:id
func (h *UserHandler) DeleteUser(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.userSvc.Delete(c.Request.Context(), c.Param("id"), callerID); err != nil {
		h.handleUserError(c, err)
		return
	}

	response.OK(c, nil)
}

// ResetPassword 重置为随机临时密码
// POST /api/v1/users/:id/reset-password
func (h *UserHandler) ResetPassword(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.userSvc.ResetPassword(c.Request.Context(), c.Param("id"), callerID)
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	response.OK(c, result)
}

// LinkChild 为家长关联学生；:id 为 me 时表示当前家长
// POST /api/v1/users/:id/children
func (h *UserHandler) LinkChild(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	parentID := c.Param("id")
	if parentID == "me" {
		parentID = callerID
	}

	var req dto.LinkChildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	child, err := h.userSvc.LinkChild(c.Request.Context(), parentID, &req, callerID, role)
	if err != nil {
		h.handleUserError(c, err)
		return
	}

	response.OK(c, child)
}

// handleUserError 统一处理用户模块业务错误
func (h *UserHandler) handleUserError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEmailExists):
		response.Conflict(c, 12002, "邮箱已被注册")
	case errors.Is(err, service.ErrUserSelfDelete):
		response.BadRequest(c, 12003, "不能删除或停用自己")
	case errors.Is(err, service.ErrNotParent):
		response.BadRequest(c, 12005, "目标用户不是家长")
	case errors.Is(err, service.ErrChildLinked):
		response.Conflict(c, 12006, "该学生已关联其他家长")
	case errors.Is(err, service.ErrAvatarTooLarge):
		response.BadRequest(c, 12007, "头像文件不能超过 5MB")
	case errors.Is(err, service.ErrAvatarBadFormat):
		response.BadRequest(c, 12008, "头像仅支持 jpeg/png/webp")
	case errors.Is(err, service.ErrClassOnlyStudent):
		response.BadRequest(c, 12009, "仅学生可以设置班级")
	default:
		handleCommonError(c, err)
	}
}
