package model

import "time"

// Class 班级表，对应 classes
type Class struct {
	ClassID     string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"class_id"`
	Name        string `gorm:"type:varchar(100);not null"                     json:"name"`
	TeacherID   string `gorm:"type:uuid;not null"                             json:"teacher_id"`
	Description string `gorm:"type:text"                                      json:"description,omitempty"`
	VersionedModel

	// 关联
	Teacher *User `gorm:"foreignKey:TeacherID;references:UserID" json:"teacher,omitempty"`
}

// TableName 指定表名
func (Class) TableName() string { return "classes" }

// ClassCode 班级码表，对应 class_codes（4 位数字，学生凭码加入班级）
type ClassCode struct {
	ClassCodeID string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"class_code_id"`
	Code        string     `gorm:"type:char(4);not null"                          json:"code"`
	ClassID     string     `gorm:"type:uuid;not null"                             json:"class_id"`
	ClassName   string     `gorm:"type:varchar(100);not null"                     json:"class_name"` // 冗余快照
	IsActive    bool       `gorm:"not null;default:true"                          json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	BaseModel
}

// TableName 指定表名
func (ClassCode) TableName() string { return "class_codes" }

// Usable 班级码是否仍可用于加入班级
func (c *ClassCode) Usable(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	return c.ExpiresAt == nil || now.Before(*c.ExpiresAt)
}
