package model

import "gorm.io/datatypes"

// ClassSlot 课程时间段（内联存储在某天的排课数组中）
type ClassSlot struct {
	ID        string  `json:"id"`
	ClassID   *string `json:"class_id,omitempty"`
	ClassName string  `json:"class_name"`
	Subject   string  `json:"subject"`
	StartTime string  `json:"start_time"` // HH:MM
	EndTime   string  `json:"end_time"`   // HH:MM
	Room      string  `json:"room,omitempty"`
}

// ScheduleDay 教师课表表，对应 schedule_days（每位教师每天一条，整天的时间段数组整体改写）
type ScheduleDay struct {
	ScheduleDayID string                         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"schedule_day_id"`
	TeacherID     string                         `gorm:"type:uuid;not null"                             json:"teacher_id"`
	DayOfWeek     int                            `gorm:"type:smallint;not null"                         json:"day_of_week"` // 0=周日 … 6=周六
	Slots         datatypes.JSONSlice[ClassSlot] `gorm:"type:jsonb;not null;default:'[]'"               json:"slots"`
	VersionedModel
}

// TableName 指定表名
func (ScheduleDay) TableName() string { return "schedule_days" }
