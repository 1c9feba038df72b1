package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/mohamed66886/sehaty-sub000/internal/model"
	pkgerrors "github.com/mohamed66886/sehaty-sub000/pkg/errors"
)

// ExamFilter 考试列表条件
type ExamFilter struct {
	TeacherID     string
	ClassIDs      []string
	PublishedOnly bool
}

// ExamRepository 考试数据访问接口
type ExamRepository interface {
	Create(ctx context.Context, exam *model.Exam) error
	GetByID(ctx context.Context, id string) (*model.Exam, error)
	Update(ctx context.Context, exam *model.Exam) error
	Delete(ctx context.Context, id string, deletedBy string) error
	List(ctx context.Context, filter ExamFilter, offset, limit int) ([]model.Exam, int64, error)
	// ListUpcoming 教师名下尚未结束的考试，按开始时间排序
	ListUpcoming(ctx context.Context, teacherID string, now time.Time, limit int) ([]model.Exam, error)
	Count(ctx context.Context) (int64, error)
}

type examRepo struct {
	db *gorm.DB
}

// NewExamRepo 创建 ExamRepository 实例
func NewExamRepo(db *gorm.DB) ExamRepository {
	return &examRepo{db: db}
}

func (r *examRepo) Create(ctx context.Context, exam *model.Exam) error {
	return r.db.WithContext(ctx).Create(exam).Error
}

func (r *examRepo) GetByID(ctx context.Context, id string) (*model.Exam, error) {
	var exam model.Exam
	err := r.db.WithContext(ctx).
		Preload("Class").
		Where("exam_id = ?", id).
		First(&exam).Error
	if err != nil {
		return nil, err
	}
	return &exam, nil
}

func (r *examRepo) Update(ctx context.Context, exam *model.Exam) error {
	oldVersion := exam.Version
	result := r.db.WithContext(ctx).
		Model(&model.Exam{}).
		Where("exam_id = ? AND version = ?", exam.ExamID, oldVersion).
		Updates(map[string]interface{}{
			"title":            exam.Title,
			"description":      exam.Description,
			"questions":        exam.Questions,
			"duration_minutes": exam.DurationMinutes,
			"start_at":         exam.StartAt,
			"end_at":           exam.EndAt,
			"pass_percentage":  exam.PassPercentage,
			"is_published":     exam.IsPublished,
			"updated_by":       exam.UpdatedBy,
			"updated_at":       gorm.Expr("NOW()"),
			"version":          oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	exam.Version = oldVersion + 1
	return nil
}

func (r *examRepo) Delete(ctx context.Context, id string, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.Exam{}).
		Where("exam_id = ?", id).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}

func (r *examRepo) List(ctx context.Context, filter ExamFilter, offset, limit int) ([]model.Exam, int64, error) {
	var list []model.Exam
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Exam{})
	if filter.TeacherID != "" {
		db = db.Where("teacher_id = ?", filter.TeacherID)
	}
	if filter.ClassIDs != nil {
		if len(filter.ClassIDs) == 0 {
			return []model.Exam{}, 0, nil
		}
		db = db.Where("class_id IN ?", filter.ClassIDs)
	}
	if filter.PublishedOnly {
		db = db.Where("is_published = ?", true)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Preload("Class").
		Offset(offset).Limit(limit).
		Order("start_at DESC").
		Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *examRepo) ListUpcoming(ctx context.Context, teacherID string, now time.Time, limit int) ([]model.Exam, error) {
	var list []model.Exam
	err := r.db.WithContext(ctx).
		Preload("Class").
		Where("teacher_id = ? AND end_at > ?", teacherID, now).
		Order("start_at ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *examRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Exam{}).Count(&n).Error
	return n, err
}

// ── ExamResult ──

// ExamResultRepository 考试结果数据访问接口
type ExamResultRepository interface {
	Create(ctx context.Context, result *model.ExamResult) error
	GetByID(ctx context.Context, id string) (*model.ExamResult, error)
	GetByExamAndStudent(ctx context.Context, examID, studentID string) (*model.ExamResult, error)
	// Submit 仅当结果仍为 in_progress 时写入评分，否则返回 ErrOptimisticLock
	Submit(ctx context.Context, result *model.ExamResult) error
	ListByExam(ctx context.Context, examID string) ([]model.ExamResult, error)
	ListByStudent(ctx context.Context, studentID string, offset, limit int) ([]model.ExamResult, int64, error)
	LatestSubmittedByStudent(ctx context.Context, studentID string) (*model.ExamResult, error)
}

type examResultRepo struct {
	db *gorm.DB
}

// NewExamResultRepo 创建 ExamResultRepository 实例
func NewExamResultRepo(db *gorm.DB) ExamResultRepository {
	return &examResultRepo{db: db}
}

func (r *examResultRepo) Create(ctx context.Context, result *model.ExamResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

func (r *examResultRepo) GetByID(ctx context.Context, id string) (*model.ExamResult, error) {
	var res model.ExamResult
	err := r.db.WithContext(ctx).
		Preload("Exam").Preload("Exam.Class").
		Preload("Student").
		Where("result_id = ?", id).
		First(&res).Error
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *examResultRepo) GetByExamAndStudent(ctx context.Context, examID, studentID string) (*model.ExamResult, error) {
	var res model.ExamResult
	err := r.db.WithContext(ctx).
		Where("exam_id = ? AND student_id = ?", examID, studentID).
		First(&res).Error
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *examResultRepo) Submit(ctx context.Context, result *model.ExamResult) error {
	res := r.db.WithContext(ctx).
		Model(&model.ExamResult{}).
		Where("result_id = ? AND status = ?", result.ResultID, model.ResultInProgress).
		Updates(map[string]interface{}{
			"answers":            result.Answers,
			"score":              result.Score,
			"total_points":       result.TotalPoints,
			"percentage":         result.Percentage,
			"passed":             result.Passed,
			"time_taken_seconds": result.TimeTakenSeconds,
			"submitted_at":       result.SubmittedAt,
			"status":             model.ResultSubmitted,
			"updated_by":         result.UpdatedBy,
			"updated_at":         time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	result.Status = model.ResultSubmitted
	return nil
}

func (r *examResultRepo) ListByExam(ctx context.Context, examID string) ([]model.ExamResult, error) {
	var list []model.ExamResult
	err := r.db.WithContext(ctx).
		Preload("Student").
		Where("exam_id = ?", examID).
		Order("percentage DESC, submitted_at ASC").
		Find(&list).Error
	return list, err
}

func (r *examResultRepo) ListByStudent(ctx context.Context, studentID string, offset, limit int) ([]model.ExamResult, int64, error) {
	var list []model.ExamResult
	var total int64

	db := r.db.WithContext(ctx).Model(&model.ExamResult{}).Where("student_id = ?", studentID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Preload("Exam").
		Offset(offset).Limit(limit).
		Order("started_at DESC").
		Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *examResultRepo) LatestSubmittedByStudent(ctx context.Context, studentID string) (*model.ExamResult, error) {
	var res model.ExamResult
	err := r.db.WithContext(ctx).
		Preload("Exam").
		Where("student_id = ? AND status = ?", studentID, model.ResultSubmitted).
		Order("submitted_at DESC").
		First(&res).Error
	if err != nil {
		return nil, err
	}
	return &res, nil
}
