package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/mohamed66886/sehaty-sub000/internal/model"
)

// ClassCodeRepository 班级码数据访问接口
type ClassCodeRepository interface {
	Create(ctx context.Context, code *model.ClassCode) error
	// GetActiveByCode 查询启用中的班级码（可能已过期，由调用方判断）
	GetActiveByCode(ctx context.Context, code string) (*model.ClassCode, error)
	GetActiveByClass(ctx context.Context, classID string) (*model.ClassCode, error)
	// DeactivateByClass 停用某班级全部启用中的班级码
	DeactivateByClass(ctx context.Context, classID, updatedBy string) error
}

type classCodeRepo struct {
	db *gorm.DB
}

// NewClassCodeRepo 创建 ClassCodeRepository 实例
func NewClassCodeRepo(db *gorm.DB) ClassCodeRepository {
	return &classCodeRepo{db: db}
}

func (r *classCodeRepo) Create(ctx context.Context, code *model.ClassCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

func (r *classCodeRepo) GetActiveByCode(ctx context.Context, code string) (*model.ClassCode, error) {
	var cc model.ClassCode
	err := r.db.WithContext(ctx).
		Where("code = ? AND is_active = ?", code, true).
		First(&cc).Error
	if err != nil {
		return nil, err
	}
	return &cc, nil
}

func (r *classCodeRepo) GetActiveByClass(ctx context.Context, classID string) (*model.ClassCode, error) {
	var cc model.ClassCode
	err := r.db.WithContext(ctx).
		Where("class_id = ? AND is_active = ?", classID, true).
		Order("created_at DESC").
		First(&cc).Error
	if err != nil {
		return nil, err
	}
	return &cc, nil
}

func (r *classCodeRepo) DeactivateByClass(ctx context.Context, classID, updatedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.ClassCode{}).
		Where("class_id = ? AND is_active = ?", classID, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_by": updatedBy,
			"updated_at": time.Now(),
		}).Error
}
