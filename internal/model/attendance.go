package model

import "time"

// 考勤状态
const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
	AttendanceLate    = "late"
	AttendanceExcused = "excused"
)

// AttendanceStatuses 全部合法考勤状态（按展示顺序）
var AttendanceStatuses = []string{AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused}

// AttendanceRecord 考勤记录表，对应 attendance_records（每名学生每天一条）
type AttendanceRecord struct {
	RecordID  string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"record_id"`
	TeacherID string    `gorm:"type:uuid;not null"                             json:"teacher_id"`
	ClassID   string    `gorm:"type:uuid;not null"                             json:"class_id"`
	StudentID string    `gorm:"type:uuid;not null"                             json:"student_id"`
	Date      time.Time `gorm:"type:date;not null"                             json:"date"`
	Status    string    `gorm:"type:varchar(10);not null"                      json:"status"` // present | absent | late | excused
	Notes     string    `gorm:"type:varchar(500)"                              json:"notes,omitempty"`
	BaseModel

	// 关联
	Student *User `gorm:"foreignKey:StudentID;references:UserID" json:"student,omitempty"`
}

// TableName 指定表名
func (AttendanceRecord) TableName() string { return "attendance_records" }
