package model

// 角色
const (
	RoleSuperAdmin = "super_admin"
	RoleTeacher    = "teacher"
	RoleParent     = "parent"
	RoleStudent    = "student"
)

// User 用户表，对应 users（教师 / 家长 / 学生 / 超级管理员共用）
type User struct {
	UserID             string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"user_id"`
	Name               string  `gorm:"type:varchar(100);not null"                     json:"name"`
	Email              string  `gorm:"type:varchar(255);not null"                     json:"email"`
	Phone              string  `gorm:"type:varchar(20)"                               json:"phone,omitempty"`
	PasswordHash       string  `gorm:"type:varchar(255);not null"                     json:"-"`
	Role               string  `gorm:"type:varchar(20);not null;default:'student'"    json:"role"`
	AvatarURL          string  `gorm:"type:varchar(500)"                              json:"avatar_url,omitempty"`
	Language           string  `gorm:"type:varchar(5);not null;default:'ar'"          json:"language"`
	NotifyEmail        bool    `gorm:"not null;default:true"                          json:"notify_email"`
	Subject            string  `gorm:"type:varchar(100)"                              json:"subject,omitempty"`   // 仅教师
	ClassID            *string `gorm:"type:uuid"                                      json:"class_id,omitempty"`  // 仅学生
	ParentID           *string `gorm:"type:uuid"                                      json:"parent_id,omitempty"` // 仅学生
	IsActive           bool    `gorm:"not null;default:true"                          json:"is_active"`
	MustChangePassword bool    `gorm:"not null;default:false"                         json:"must_change_password"`
	VersionedModel

	// 关联
	Class *Class `gorm:"foreignKey:ClassID;references:ClassID" json:"class,omitempty"`
}

// TableName 指定表名
func (User) TableName() string { return "users" }
