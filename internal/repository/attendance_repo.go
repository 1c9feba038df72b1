package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mohamed66886/sehaty-sub000/internal/model"
)

// AttendanceFilter 考勤查询条件（空值表示不过滤）
type AttendanceFilter struct {
	ClassID   string
	StudentID string
	Status    string
	From      *time.Time
	To        *time.Time
}

// AttendanceRepository 考勤数据访问接口
type AttendanceRepository interface {
	// Upsert 按 (student_id, date) 写入，已存在时覆盖状态与备注
	Upsert(ctx context.Context, records []model.AttendanceRecord) error
	GetByID(ctx context.Context, id string) (*model.AttendanceRecord, error)
	Update(ctx context.Context, record *model.AttendanceRecord) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter AttendanceFilter) ([]model.AttendanceRecord, error)
	DeleteByClassAndDate(ctx context.Context, classID string, date time.Time) (int64, error)
}

type attendanceRepo struct {
	db *gorm.DB
}

// NewAttendanceRepo 创建 AttendanceRepository 实例
func NewAttendanceRepo(db *gorm.DB) AttendanceRepository {
	return &attendanceRepo{db: db}
}

func (r *attendanceRepo) Upsert(ctx context.Context, records []model.AttendanceRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "student_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"teacher_id", "class_id", "status", "notes", "updated_at", "updated_by",
			}),
		}).
		Create(&records).Error
}

func (r *attendanceRepo) GetByID(ctx context.Context, id string) (*model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	err := r.db.WithContext(ctx).
		Preload("Student").
		Where("record_id = ?", id).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *attendanceRepo) Update(ctx context.Context, record *model.AttendanceRecord) error {
	return r.db.WithContext(ctx).
		Model(&model.AttendanceRecord{}).
		Where("record_id = ?", record.RecordID).
		Updates(map[string]interface{}{
			"status":     record.Status,
			"notes":      record.Notes,
			"updated_by": record.UpdatedBy,
			"updated_at": time.Now(),
		}).Error
}

func (r *attendanceRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("record_id = ?", id).
		Delete(&model.AttendanceRecord{}).Error
}

func (r *attendanceRepo) List(ctx context.Context, filter AttendanceFilter) ([]model.AttendanceRecord, error) {
	var records []model.AttendanceRecord
	db := r.db.WithContext(ctx)

	if filter.ClassID != "" {
		db = db.Where("class_id = ?", filter.ClassID)
	}
	if filter.StudentID != "" {
		db = db.Where("student_id = ?", filter.StudentID)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		db = db.Where("date >= ?", filter.From.Format("2006-01-02"))
	}
	if filter.To != nil {
		db = db.Where("date <= ?", filter.To.Format("2006-01-02"))
	}

	err := db.Preload("Student").
		Order("date DESC, created_at ASC").
		Find(&records).Error
	return records, err
}

func (r *attendanceRepo) DeleteByClassAndDate(ctx context.Context, classID string, date time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("class_id = ? AND date = ?", classID, date.Format("2006-01-02")).
		Delete(&model.AttendanceRecord{})
	return result.RowsAffected, result.Error
}
