package model

import (
	"time"

	"gorm.io/datatypes"
)

// 题型
const (
	QuestionMCQ       = "mcq"
	QuestionTrueFalse = "true_false"
	QuestionShort     = "short"
)

// 考试结果状态
const (
	ResultInProgress = "in_progress"
	ResultSubmitted  = "submitted"
)

// Question 试题（内联存储在考试文档上）
type Question struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Type    string   `json:"type"` // mcq | true_false | short
	Options []string `json:"options,omitempty"`
	Answer  string   `json:"answer"`
	Points  float64  `json:"points"`
}

// Exam 考试表，对应 exams
type Exam struct {
	ExamID          string                        `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"exam_id"`
	TeacherID       string                        `gorm:"type:uuid;not null"                             json:"teacher_id"`
	ClassID         string                        `gorm:"type:uuid;not null"                             json:"class_id"`
	Title           string                        `gorm:"type:varchar(200);not null"                     json:"title"`
	Description     string                        `gorm:"type:text"                                      json:"description,omitempty"`
	Questions       datatypes.JSONSlice[Question] `gorm:"type:jsonb;not null;default:'[]'"               json:"questions"`
	DurationMinutes int                           `gorm:"not null"                                       json:"duration_minutes"`
	StartAt         time.Time                     `gorm:"not null"                                       json:"start_at"`
	EndAt           time.Time                     `gorm:"not null"                                       json:"end_at"`
	PassPercentage  float64                       `gorm:"type:numeric(5,2);not null;default:50"          json:"pass_percentage"`
	IsPublished     bool                          `gorm:"not null;default:false"                         json:"is_published"`
	VersionedModel

	// 关联
	Class *Class `gorm:"foreignKey:ClassID;references:ClassID" json:"class,omitempty"`
}

// TableName 指定表名
func (Exam) TableName() string { return "exams" }

// TotalPoints 试卷总分
func (e *Exam) TotalPoints() float64 {
	var total float64
	for _, q := range e.Questions {
		total += q.Points
	}
	return total
}

// ExamResult 考试结果表，对应 exam_results（每名学生每场考试一条）
type ExamResult struct {
	ResultID         string                                `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"result_id"`
	ExamID           string                                `gorm:"type:uuid;not null"                             json:"exam_id"`
	StudentID        string                                `gorm:"type:uuid;not null"                             json:"student_id"`
	Answers          datatypes.JSONType[map[string]string] `gorm:"type:jsonb;not null;default:'{}'"               json:"answers"`
	Score            float64                               `gorm:"type:numeric(8,2);not null;default:0"           json:"score"`
	TotalPoints      float64                               `gorm:"type:numeric(8,2);not null;default:0"           json:"total_points"`
	Percentage       float64                               `gorm:"type:numeric(5,2);not null;default:0"           json:"percentage"`
	Passed           bool                                  `gorm:"not null;default:false"                         json:"passed"`
	TimeTakenSeconds int                                   `gorm:"not null;default:0"                             json:"time_taken_seconds"`
	StartedAt        time.Time                             `gorm:"not null"                                       json:"started_at"`
	SubmittedAt      *time.Time                            `json:"submitted_at,omitempty"`
	Status           string                                `gorm:"type:varchar(20);not null;default:'in_progress'" json:"status"`
	BaseModel

	// 关联
	Exam    *Exam `gorm:"foreignKey:ExamID;references:ExamID"    json:"exam,omitempty"`
	Student *User `gorm:"foreignKey:StudentID;references:UserID" json:"student,omitempty"`
}

// TableName 指定表名
func (ExamResult) TableName() string { return "exam_results" }
