package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/service"
	"github.com/mohamed66886/sehaty-sub000/pkg/response"
)

// MessageHandler 站内消息 HTTP 处理器
type MessageHandler struct {
	messageSvc service.MessageService
}

// NewMessageHandler 创建 MessageHandler
func NewMessageHandler(messageSvc service.MessageService) *MessageHandler {
	return &MessageHandler{messageSvc: messageSvc}
}

// Send 发送消息
// POST /api/v1/messages
func (h *MessageHandler) Send(c *gin.Context) {
	senderID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindFailed(c, err)
		return
	}

	msg, err := h.messageSvc.Send(c.Request.Context(), senderID, &req)
	if err != nil {
		h.handleMessageError(c, err)
		return
	}

	response.Created(c, msg)
}

// Inbox 收件箱
// GET /api/v1/messages/inbox
func (h *MessageHandler) Inbox(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.MessageListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}

	list, total, err := h.messageSvc.Inbox(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleMessageError(c, err)
		return
	}

	page, size := pageOf(&req.PaginationRequest)
	response.OKPage(c, list, total, page, size)
}

// Sent 发件箱
// GET /api/v1/messages/sent
func (h *MessageHandler) Sent(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.PaginationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindFailed(c, err)
		return
	}

	list, total, err := h.messageSvc.Sent(c.Request.Context(), userID, &req)
	if err != nil {
		h.handleMessageError(c, err)
		return
	}

	page, size := pageOf(&req)
	response.OKPage(c, list, total, page, size)
}

// UnreadCount 未读数
// GET /api/v1/messages/unread-count
func (h *MessageHandler) UnreadCount(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	count, err := h.messageSvc.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		h.handleMessageError(c, err)
		return
	}

	response.OK(c, count)
}

// MarkRead 标记已读
// PUT /api/v1/messages/:id/read
func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	msg, err := h.messageSvc.MarkRead(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.handleMessageError(c, err)
		return
	}

	response.OK(c, msg)
}

// Delete 删除消息
// DELETE /api/v1/messages/:id
func (h *MessageHandler) Delete(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.messageSvc.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		h.handleMessageError(c, err)
		return
	}

	response.OK(c, nil)
}

// handleMessageError 统一处理消息模块业务错误
func (h *MessageHandler) handleMessageError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrMessageNotFound):
		response.NotFound(c, 18001, err.Error())
	case errors.Is(err, service.ErrRecipientNotFound):
		response.NotFound(c, 18002, err.Error())
	case errors.Is(err, service.ErrMessageToSelf):
		response.BadRequest(c, 18003, err.Error())
	case errors.Is(err, service.ErrMessageNotAllowed):
		response.Forbidden(c, 18004, err.Error())
	case errors.Is(err, service.ErrNotMessageRecipient):
		response.Forbidden(c, 18005, err.Error())
	default:
		handleCommonError(c, err)
	}
}
