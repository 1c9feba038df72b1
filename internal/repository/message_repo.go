package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/mohamed66886/sehaty-sub000/internal/model"
)

// MessageRepository 站内消息数据访问接口
type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	ListInbox(ctx context.Context, userID string, unreadOnly bool, offset, limit int) ([]model.Message, int64, error)
	ListSent(ctx context.Context, userID string, offset, limit int) ([]model.Message, int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string, deletedBy string) error
}

type messageRepo struct {
	db *gorm.DB
}

// NewMessageRepo 创建 MessageRepository 实例
func NewMessageRepo(db *gorm.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) Create(ctx context.Context, msg *model.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepo) GetByID(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).
		Preload("Sender").Preload("Recipient").
		Where("message_id = ?", id).
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) ListInbox(ctx context.Context, userID string, unreadOnly bool, offset, limit int) ([]model.Message, int64, error) {
	db := r.db.WithContext(ctx).Model(&model.Message{}).Where("recipient_id = ?", userID)
	if unreadOnly {
		db = db.Where("is_read = ?", false)
	}
	return r.page(db, offset, limit)
}

func (r *messageRepo) ListSent(ctx context.Context, userID string, offset, limit int) ([]model.Message, int64, error) {
	db := r.db.WithContext(ctx).Model(&model.Message{}).Where("sender_id = ?", userID)
	return r.page(db, offset, limit)
}

func (r *messageRepo) page(db *gorm.DB, offset, limit int) ([]model.Message, int64, error) {
	var list []model.Message
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Preload("Sender").Preload("Recipient").
		Offset(offset).Limit(limit).
		Order("created_at DESC").
		Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *messageRepo) CountUnread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	return n, err
}

func (r *messageRepo) MarkRead(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("message_id = ? AND is_read = ?", id, false).
		Updates(map[string]interface{}{
			"is_read":    true,
			"read_at":    at,
			"updated_at": at,
		}).Error
}

func (r *messageRepo) Delete(ctx context.Context, id string, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("message_id = ?", id).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}
