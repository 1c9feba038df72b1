package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	db *gorm.DB

	User       UserRepository
	Class      ClassRepository
	ClassCode  ClassCodeRepository
	Attendance AttendanceRepository
	Homework   HomeworkRepository
	Submission SubmissionRepository
	Exam       ExamRepository
	ExamResult ExamResultRepository
	Schedule   ScheduleRepository
	Message    MessageRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:         db,
		User:       NewUserRepo(db),
		Class:      NewClassRepo(db),
		ClassCode:  NewClassCodeRepo(db),
		Attendance: NewAttendanceRepo(db),
		Homework:   NewHomeworkRepo(db),
		Submission: NewSubmissionRepo(db),
		Exam:       NewExamRepo(db),
		ExamResult: NewExamResultRepo(db),
		Schedule:   NewScheduleRepo(db),
		Message:    NewMessageRepo(db),
	}
}

// BeginTx 开启事务；未连接数据库（单元测试中的 mock 聚合）时返回 nil
func (r *Repository) BeginTx(ctx context.Context) (*gorm.DB, error) {
	if r.db == nil {
		return nil, nil
	}
	tx := r.db.WithContext(ctx).Begin()
	return tx, tx.Error
}

// WithTx 返回绑定到事务连接的 Repository；tx 为 nil 时返回自身
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return NewRepository(tx)
}

// Ping 检查数据库连接
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
