package model

import (
	"time"

	"gorm.io/datatypes"
)

// 作业提交状态
const (
	SubmissionSubmitted = "submitted"
	SubmissionLate      = "late"
	SubmissionGraded    = "graded"
	SubmissionMissing   = "missing"
)

// Attachment 附件（URL 内联存储在文档上）
type Attachment struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ObjectKey   string `json:"object_key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Homework 作业表，对应 homeworks
type Homework struct {
	HomeworkID  string                          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"homework_id"`
	TeacherID   string                          `gorm:"type:uuid;not null"                             json:"teacher_id"`
	ClassID     string                          `gorm:"type:uuid;not null"                             json:"class_id"`
	Title       string                          `gorm:"type:varchar(200);not null"                     json:"title"`
	Description string                          `gorm:"type:text"                                      json:"description,omitempty"`
	Deadline    time.Time                       `gorm:"not null"                                       json:"deadline"`
	Attachments datatypes.JSONSlice[Attachment] `gorm:"type:jsonb;not null;default:'[]'"               json:"attachments"`
	VersionedModel

	// 关联
	Class *Class `gorm:"foreignKey:ClassID;references:ClassID" json:"class,omitempty"`
}

// TableName 指定表名
func (Homework) TableName() string { return "homeworks" }

// HomeworkSubmission 作业提交表，对应 homework_submissions（每名学生每份作业一条）
type HomeworkSubmission struct {
	SubmissionID string                          `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"submission_id"`
	HomeworkID   string                          `gorm:"type:uuid;not null"                             json:"homework_id"`
	StudentID    string                          `gorm:"type:uuid;not null"                             json:"student_id"`
	Content      string                          `gorm:"type:text"                                      json:"content,omitempty"`
	Attachments  datatypes.JSONSlice[Attachment] `gorm:"type:jsonb;not null;default:'[]'"               json:"attachments"`
	Status       string                          `gorm:"type:varchar(20);not null;default:'submitted'"  json:"status"` // submitted | late | graded | missing
	Grade        *float64                        `gorm:"type:numeric(5,2)"                              json:"grade,omitempty"`
	Feedback     string                          `gorm:"type:text"                                      json:"feedback,omitempty"`
	SubmittedAt  *time.Time                      `json:"submitted_at,omitempty"`
	GradedAt     *time.Time                      `json:"graded_at,omitempty"`
	BaseModel

	// 关联
	Student *User `gorm:"foreignKey:StudentID;references:UserID" json:"student,omitempty"`
}

// TableName 指定表名
func (HomeworkSubmission) TableName() string { return "homework_submissions" }
