package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/mohamed66886/sehaty-sub000/internal/model"
	pkgerrors "github.com/mohamed66886/sehaty-sub000/pkg/errors"
)

// ScheduleRepository 教师课表数据访问接口
type ScheduleRepository interface {
	Create(ctx context.Context, day *model.ScheduleDay) error
	GetByTeacherAndDay(ctx context.Context, teacherID string, dayOfWeek int) (*model.ScheduleDay, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]model.ScheduleDay, error)
	// Update 整体改写某天的时间段数组（乐观锁）
	Update(ctx context.Context, day *model.ScheduleDay) error
}

type scheduleRepo struct {
	db *gorm.DB
}

// NewScheduleRepo 创建 ScheduleRepository 实例
func NewScheduleRepo(db *gorm.DB) ScheduleRepository {
	return &scheduleRepo{db: db}
}

func (r *scheduleRepo) Create(ctx context.Context, day *model.ScheduleDay) error {
	return r.db.WithContext(ctx).Create(day).Error
}

func (r *scheduleRepo) GetByTeacherAndDay(ctx context.Context, teacherID string, dayOfWeek int) (*model.ScheduleDay, error) {
	var day model.ScheduleDay
	err := r.db.WithContext(ctx).
		Where("teacher_id = ? AND day_of_week = ?", teacherID, dayOfWeek).
		First(&day).Error
	if err != nil {
		return nil, err
	}
	return &day, nil
}

func (r *scheduleRepo) ListByTeacher(ctx context.Context, teacherID string) ([]model.ScheduleDay, error) {
	var days []model.ScheduleDay
	err := r.db.WithContext(ctx).
		Where("teacher_id = ?", teacherID).
		Order("day_of_week ASC").
		Find(&days).Error
	return days, err
}

func (r *scheduleRepo) Update(ctx context.Context, day *model.ScheduleDay) error {
	oldVersion := day.Version
	result := r.db.WithContext(ctx).
		Model(&model.ScheduleDay{}).
		Where("schedule_day_id = ? AND version = ?", day.ScheduleDayID, oldVersion).
		Updates(map[string]interface{}{
			"slots":      day.Slots,
			"updated_by": day.UpdatedBy,
			"updated_at": gorm.Expr("NOW()"),
			"version":    oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	day.Version = oldVersion + 1
	return nil
}
