package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mohamed66886/sehaty-sub000/internal/model"
	pkgerrors "github.com/mohamed66886/sehaty-sub000/pkg/errors"
)

// HomeworkFilter 作业列表条件
type HomeworkFilter struct {
	TeacherID string
	ClassIDs  []string
}

// HomeworkRepository 作业数据访问接口
type HomeworkRepository interface {
	Create(ctx context.Context, hw *model.Homework) error
	GetByID(ctx context.Context, id string) (*model.Homework, error)
	Update(ctx context.Context, hw *model.Homework) error
	Delete(ctx context.Context, id string, deletedBy string) error
	List(ctx context.Context, filter HomeworkFilter, offset, limit int) ([]model.Homework, int64, error)
	// ListDeadlineBetween 截止时间落在 (from, to] 的作业
	ListDeadlineBetween(ctx context.Context, from, to time.Time) ([]model.Homework, error)
	Count(ctx context.Context) (int64, error)
}

type homeworkRepo struct {
	db *gorm.DB
}

// NewHomeworkRepo 创建 HomeworkRepository 实例
func NewHomeworkRepo(db *gorm.DB) HomeworkRepository {
	return &homeworkRepo{db: db}
}

func (r *homeworkRepo) Create(ctx context.Context, hw *model.Homework) error {
	return r.db.WithContext(ctx).Create(hw).Error
}

func (r *homeworkRepo) GetByID(ctx context.Context, id string) (*model.Homework, error) {
	var hw model.Homework
	err := r.db.WithContext(ctx).
		Preload("Class").
		Where("homework_id = ?", id).
		First(&hw).Error
	if err != nil {
		return nil, err
	}
	return &hw, nil
}

func (r *homeworkRepo) Update(ctx context.Context, hw *model.Homework) error {
	oldVersion := hw.Version
	result := r.db.WithContext(ctx).
		Model(&model.Homework{}).
		Where("homework_id = ? AND version = ?", hw.HomeworkID, oldVersion).
		Updates(map[string]interface{}{
			"title":       hw.Title,
			"description": hw.Description,
			"deadline":    hw.Deadline,
			"attachments": hw.Attachments,
			"updated_by":  hw.UpdatedBy,
			"updated_at":  gorm.Expr("NOW()"),
			"version":     oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	hw.Version = oldVersion + 1
	return nil
}

func (r *homeworkRepo) Delete(ctx context.Context, id string, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.Homework{}).
		Where("homework_id = ?", id).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}

func (r *homeworkRepo) List(ctx context.Context, filter HomeworkFilter, offset, limit int) ([]model.Homework, int64, error) {
	var list []model.Homework
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Homework{})
	if filter.TeacherID != "" {
		db = db.Where("teacher_id = ?", filter.TeacherID)
	}
	if filter.ClassIDs != nil {
		if len(filter.ClassIDs) == 0 {
			return []model.Homework{}, 0, nil
		}
		db = db.Where("class_id IN ?", filter.ClassIDs)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Preload("Class").
		Offset(offset).Limit(limit).
		Order("deadline DESC").
		Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *homeworkRepo) ListDeadlineBetween(ctx context.Context, from, to time.Time) ([]model.Homework, error) {
	var list []model.Homework
	err := r.db.WithContext(ctx).
		Where("deadline > ? AND deadline <= ?", from, to).
		Order("deadline ASC").
		Find(&list).Error
	return list, err
}

func (r *homeworkRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Homework{}).Count(&n).Error
	return n, err
}

// ── Submission ──

// SubmissionRepository 作业提交数据访问接口
type SubmissionRepository interface {
	Create(ctx context.Context, sub *model.HomeworkSubmission) error
	GetByID(ctx context.Context, id string) (*model.HomeworkSubmission, error)
	GetByHomeworkAndStudent(ctx context.Context, homeworkID, studentID string) (*model.HomeworkSubmission, error)
	Update(ctx context.Context, sub *model.HomeworkSubmission) error
	ListByHomework(ctx context.Context, homeworkID string) ([]model.HomeworkSubmission, error)
	ListByStudent(ctx context.Context, studentID string, homeworkIDs []string) ([]model.HomeworkSubmission, error)
	// CreateMissing 批量写入 missing 记录，已存在的 (homework, student) 跳过
	CreateMissing(ctx context.Context, subs []model.HomeworkSubmission) (int64, error)
	CountUngradedByTeacher(ctx context.Context, teacherID string) (int64, error)
}

type submissionRepo struct {
	db *gorm.DB
}

// NewSubmissionRepo 创建 SubmissionRepository 实例
func NewSubmissionRepo(db *gorm.DB) SubmissionRepository {
	return &submissionRepo{db: db}
}

func (r *submissionRepo) Create(ctx context.Context, sub *model.HomeworkSubmission) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *submissionRepo) GetByID(ctx context.Context, id string) (*model.HomeworkSubmission, error) {
	var sub model.HomeworkSubmission
	err := r.db.WithContext(ctx).
		Preload("Student").
		Where("submission_id = ?", id).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *submissionRepo) GetByHomeworkAndStudent(ctx context.Context, homeworkID, studentID string) (*model.HomeworkSubmission, error) {
	var sub model.HomeworkSubmission
	err := r.db.WithContext(ctx).
		Where("homework_id = ? AND student_id = ?", homeworkID, studentID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *submissionRepo) Update(ctx context.Context, sub *model.HomeworkSubmission) error {
	return r.db.WithContext(ctx).
		Model(&model.HomeworkSubmission{}).
		Where("submission_id = ?", sub.SubmissionID).
		Updates(map[string]interface{}{
			"content":      sub.Content,
			"attachments":  sub.Attachments,
			"status":       sub.Status,
			"grade":        sub.Grade,
			"feedback":     sub.Feedback,
			"submitted_at": sub.SubmittedAt,
			"graded_at":    sub.GradedAt,
			"updated_by":   sub.UpdatedBy,
			"updated_at":   time.Now(),
		}).Error
}

func (r *submissionRepo) ListByHomework(ctx context.Context, homeworkID string) ([]model.HomeworkSubmission, error) {
	var subs []model.HomeworkSubmission
	err := r.db.WithContext(ctx).
		Preload("Student").
		Where("homework_id = ?", homeworkID).
		Order("submitted_at ASC NULLS LAST").
		Find(&subs).Error
	return subs, err
}

func (r *submissionRepo) ListByStudent(ctx context.Context, studentID string, homeworkIDs []string) ([]model.HomeworkSubmission, error) {
	var subs []model.HomeworkSubmission
	if len(homeworkIDs) == 0 {
		return subs, nil
	}
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND homework_id IN ?", studentID, homeworkIDs).
		Find(&subs).Error
	return subs, err
}

func (r *submissionRepo) CreateMissing(ctx context.Context, subs []model.HomeworkSubmission) (int64, error) {
	if len(subs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&subs)
	return result.RowsAffected, result.Error
}

func (r *submissionRepo) CountUngradedByTeacher(ctx context.Context, teacherID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.HomeworkSubmission{}).
		Joins("JOIN homeworks h ON h.homework_id = homework_submissions.homework_id AND h.deleted_at IS NULL").
		Where("h.teacher_id = ? AND homework_submissions.status IN ?", teacherID,
			[]string{model.SubmissionSubmitted, model.SubmissionLate}).
		Count(&n).Error
	return n, err
}
