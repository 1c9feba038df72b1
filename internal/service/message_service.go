package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mohamed66886/sehaty-sub000/internal/dto"
	"github.com/mohamed66886/sehaty-sub000/internal/model"
	"github.com/mohamed66886/sehaty-sub000/internal/repository"
	"github.com/mohamed66886/sehaty-sub000/pkg/realtime"
)

// ── 消息模块业务错误 ──

var (
	ErrMessageNotFound     = errors.New("消息不存在")
	ErrRecipientNotFound   = errors.New("收件人不存在")
	ErrMessageToSelf       = errors.New("不能给自己发送消息")
	ErrMessageNotAllowed   = errors.New("无权向该用户发送消息")
	ErrNotMessageRecipient = errors.New("只有收件人可以标记已读")
)

// EventMessage 新消息推送事件类型
const EventMessage = "message"

// MessageService 站内消息业务接口
type MessageService interface {
	Send(ctx context.Context, senderID string, req *dto.SendMessageRequest) (*dto.MessageResponse, error)
	Inbox(ctx context.Context, userID string, req *dto.MessageListRequest) ([]dto.MessageResponse, int64, error)
	Sent(ctx context.Context, userID string, page *dto.PaginationRequest) ([]dto.MessageResponse, int64, error)
	UnreadCount(ctx context.Context, userID string) (*dto.UnreadCountResponse, error)
	MarkRead(ctx context.Context, id, userID string) (*dto.MessageResponse, error)
	Delete(ctx context.Context, id, userID string) error
}

type messageService struct {
	repo   *repository.Repository
	pub    Publisher
	logger *zap.Logger
}

// NewMessageService 创建 MessageService 实例；pub 为 nil 时不推送
func NewMessageService(repo *repository.Repository, pub Publisher, logger *zap.Logger) MessageService {
	return &messageService{repo: repo, pub: pub, logger: logger}
}

func (s *messageService) Send(ctx context.Context, senderID string, req *dto.SendMessageRequest) (*dto.MessageResponse, error) {
	if req.RecipientID == senderID {
		return nil, ErrMessageToSelf
	}
	sender, err := s.repo.User.GetByID(ctx, senderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	recipient, err := s.repo.User.GetByID(ctx, req.RecipientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecipientNotFound
		}
		s.logger.Error("查询收件人失败", zap.String("recipient_id", req.RecipientID), zap.Error(err))
		return nil, err
	}
	if !recipient.IsActive {
		return nil, ErrRecipientNotFound
	}

	allowed, err := s.canMessage(ctx, sender, recipient)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrMessageNotAllowed
	}

	msg := &model.Message{
		SenderID:    senderID,
		RecipientID: recipient.UserID,
		Subject:     strings.TrimSpace(req.Subject),
		Body:        strings.TrimSpace(req.Body),
	}
	msg.StampCreate(senderID)
	if err := s.repo.Message.Create(ctx, msg); err != nil {
		s.logger.Error("发送消息失败", zap.String("sender_id", senderID), zap.Error(err))
		return nil, err
	}
	msg.Sender = sender
	msg.Recipient = recipient

	resp := toMessageResponse(msg)
	if s.pub != nil {
		s.pub.Publish(recipient.UserID, realtime.Event{Type: EventMessage, Data: resp})
	}
	return &resp, nil
}

// canMessage 教师与家长互通；教师与本班学生互通；超级管理员与任何人互通
func (s *messageService) canMessage(ctx context.Context, sender, recipient *model.User) (bool, error) {
	if sender.Role == model.RoleSuperAdmin || recipient.Role == model.RoleSuperAdmin {
		return true, nil
	}

	var teacher, student *model.User
	switch {
	case sender.Role == model.RoleTeacher && recipient.Role == model.RoleParent,
		sender.Role == model.RoleParent && recipient.Role == model.RoleTeacher:
		return true, nil
	case sender.Role == model.RoleTeacher && recipient.Role == model.RoleStudent:
		teacher, student = sender, recipient
	case sender.Role == model.RoleStudent && recipient.Role == model.RoleTeacher:
		teacher, student = recipient, sender
	default:
		return false, nil
	}

	if student.ClassID == nil {
		return false, nil
	}
	class, err := s.repo.Class.GetByID(ctx, *student.ClassID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return class.TeacherID == teacher.UserID, nil
}

func (s *messageService) Inbox(ctx context.Context, userID string, req *dto.MessageListRequest) ([]dto.MessageResponse, int64, error) {
	list, total, err := s.repo.Message.ListInbox(ctx, userID, req.UnreadOnly, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询收件箱失败", zap.String("user_id", userID), zap.Error(err))
		return nil, 0, err
	}
	return toMessageResponses(list), total, nil
}

func (s *messageService) Sent(ctx context.Context, userID string, page *dto.PaginationRequest) ([]dto.MessageResponse, int64, error) {
	list, total, err := s.repo.Message.ListSent(ctx, userID, page.GetOffset(), page.GetPageSize())
	if err != nil {
		s.logger.Error("查询发件箱失败", zap.String("user_id", userID), zap.Error(err))
		return nil, 0, err
	}
	return toMessageResponses(list), total, nil
}

func (s *messageService) UnreadCount(ctx context.Context, userID string) (*dto.UnreadCountResponse, error) {
	n, err := s.repo.Message.CountUnread(ctx, userID)
	if err != nil {
		s.logger.Error("统计未读消息失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return &dto.UnreadCountResponse{Count: n}, nil
}

func (s *messageService) MarkRead(ctx context.Context, id, userID string) (*dto.MessageResponse, error) {
	msg, err := s.getMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.RecipientID != userID {
		return nil, ErrNotMessageRecipient
	}
	if !msg.IsRead {
		now := time.Now().UTC()
		if err := s.repo.Message.MarkRead(ctx, id, now); err != nil {
			s.logger.Error("标记已读失败", zap.String("id", id), zap.Error(err))
			return nil, err
		}
		msg.IsRead = true
		msg.ReadAt = &now
	}
	resp := toMessageResponse(msg)
	return &resp, nil
}

func (s *messageService) Delete(ctx context.Context, id, userID string) error {
	msg, err := s.getMessage(ctx, id)
	if err != nil {
		return err
	}
	if msg.SenderID != userID && msg.RecipientID != userID {
		// 对无关用户隐藏消息存在性
		return ErrMessageNotFound
	}
	if err := s.repo.Message.Delete(ctx, id, userID); err != nil {
		s.logger.Error("删除消息失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

func (s *messageService) getMessage(ctx context.Context, id string) (*model.Message, error) {
	msg, err := s.repo.Message.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		s.logger.Error("查询消息失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return msg, nil
}

func toMessageResponse(m *model.Message) dto.MessageResponse {
	resp := dto.MessageResponse{
		ID:          m.MessageID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Subject:     m.Subject,
		Body:        m.Body,
		IsRead:      m.IsRead,
		ReadAt:      formatTimePtr(m.ReadAt),
		CreatedAt:   formatTime(m.CreatedAt),
	}
	if m.Sender != nil {
		resp.SenderName = m.Sender.Name
		resp.SenderRole = m.Sender.Role
	}
	if m.Recipient != nil {
		resp.RecipientName = m.Recipient.Name
	}
	return resp
}

func toMessageResponses(list []model.Message) []dto.MessageResponse {
	out := make([]dto.MessageResponse, 0, len(list))
	for i := range list {
		out = append(out, toMessageResponse(&list[i]))
	}
	return out
}
