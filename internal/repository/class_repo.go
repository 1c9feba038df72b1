package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mohamed66886/sehaty-sub000/internal/model"
	pkgerrors "github.com/mohamed66886/sehaty-sub000/pkg/errors"
)

// ClassRepository 班级数据访问接口
type ClassRepository interface {
	Create(ctx context.Context, class *model.Class) error
	GetByID(ctx context.Context, id string) (*model.Class, error)
	Update(ctx context.Context, class *model.Class) error
	Delete(ctx context.Context, id string, deletedBy string) error
	ListByTeacher(ctx context.Context, teacherID string) ([]model.Class, error)
	ListAll(ctx context.Context) ([]model.Class, error)
	Count(ctx context.Context) (int64, error)
}

type classRepo struct {
	db *gorm.DB
}

// NewClassRepo 创建 ClassRepository 实例
func NewClassRepo(db *gorm.DB) ClassRepository {
	return &classRepo{db: db}
}

func (r *classRepo) Create(ctx context.Context, class *model.Class) error {
	return r.db.WithContext(ctx).Create(class).Error
}

func (r *classRepo) GetByID(ctx context.Context, id string) (*model.Class, error) {
	var class model.Class
	err := r.db.WithContext(ctx).
		Preload("Teacher").
		Where("class_id = ?", id).
		First(&class).Error
	if err != nil {
		return nil, err
	}
	return &class, nil
}

func (r *classRepo) Update(ctx context.Context, class *model.Class) error {
	oldVersion := class.Version
	result := r.db.WithContext(ctx).
		Model(&model.Class{}).
		Where("class_id = ? AND version = ?", class.ClassID, oldVersion).
		Updates(map[string]interface{}{
			"name":        class.Name,
			"description": class.Description,
			"teacher_id":  class.TeacherID,
			"updated_by":  class.UpdatedBy,
			"updated_at":  gorm.Expr("NOW()"),
			"version":     oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	class.Version = oldVersion + 1
	return nil
}

func (r *classRepo) Delete(ctx context.Context, id string, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.Class{}).
		Where("class_id = ?", id).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}

func (r *classRepo) ListByTeacher(ctx context.Context, teacherID string) ([]model.Class, error) {
	var classes []model.Class
	err := r.db.WithContext(ctx).
		Where("teacher_id = ?", teacherID).
		Order("name ASC").
		Find(&classes).Error
	return classes, err
}

func (r *classRepo) ListAll(ctx context.Context) ([]model.Class, error) {
	var classes []model.Class
	err := r.db.WithContext(ctx).
		Preload("Teacher").
		Order("name ASC").
		Find(&classes).Error
	return classes, err
}

func (r *classRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Class{}).Count(&n).Error
	return n, err
}
