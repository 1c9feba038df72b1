package dto

// ── 考试模块 DTO ──

// QuestionInput 题目
type QuestionInput struct {
	Text    string   `json:"text"    binding:"required,max=2000"`
	Type    string   `json:"type"    binding:"required,oneof=mcq true_false short"`
	Options []string `json:"options" binding:"omitempty,max=10,dive,max=500"`
	Answer  string   `json:"answer"  binding:"required,max=500"`
	Points  float64  `json:"points"  binding:"omitempty,min=0,max=100"`
}

// CreateExamRequest 创建考试
type CreateExamRequest struct {
	ClassID         string          `json:"class_id"         binding:"required,uuid"`
	Title           string          `json:"title"            binding:"required,min=1,max=200"`
	Description     string          `json:"description"      binding:"omitempty,max=5000"`
	DurationMinutes int             `json:"duration_minutes" binding:"required,min=1,max=600"`
	StartAt         string          `json:"start_at"         binding:"required"` // RFC3339
	EndAt           string          `json:"end_at"           binding:"required"`
	PassPercentage  float64         `json:"pass_percentage"  binding:"omitempty,min=0,max=100"`
	Questions       []QuestionInput `json:"questions"        binding:"omitempty,dive"`
}

// UpdateExamRequest 修改考试
type UpdateExamRequest struct {
	Title           *string  `json:"title"            binding:"omitempty,min=1,max=200"`
	Description     *string  `json:"description"      binding:"omitempty,max=5000"`
	DurationMinutes *int     `json:"duration_minutes" binding:"omitempty,min=1,max=600"`
	StartAt         *string  `json:"start_at"`
	EndAt           *string  `json:"end_at"`
	PassPercentage  *float64 `json:"pass_percentage"  binding:"omitempty,min=0,max=100"`
}

// ReplaceQuestionsRequest 替换全部题目
type ReplaceQuestionsRequest struct {
	Questions []QuestionInput `json:"questions" binding:"required,dive"`
}

// PublishExamRequest 发布/取消发布
type PublishExamRequest struct {
	Published bool `json:"published"`
}

// ExamListRequest 考试列表
type ExamListRequest struct {
	PaginationRequest
	ClassID string `form:"class_id" binding:"omitempty,uuid"`
}

// QuestionResponse 题目（学生作答时不含答案）
type QuestionResponse struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Type    string   `json:"type"`
	Options []string `json:"options,omitempty"`
	Answer  string   `json:"answer,omitempty"`
	Points  float64  `json:"points"`
}

// ExamResponse 考试信息
type ExamResponse struct {
	ID              string             `json:"id"`
	ClassID         string             `json:"class_id"`
	ClassName       string             `json:"class_name,omitempty"`
	TeacherID       string             `json:"teacher_id"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	DurationMinutes int                `json:"duration_minutes"`
	StartAt         string             `json:"start_at"`
	EndAt           string             `json:"end_at"`
	PassPercentage  float64            `json:"pass_percentage"`
	IsPublished     bool               `json:"is_published"`
	QuestionCount   int                `json:"question_count"`
	TotalPoints     float64            `json:"total_points"`
	Questions       []QuestionResponse `json:"questions,omitempty"`
	CreatedAt       string             `json:"created_at"`
}

// StartExamResponse 开始作答
type StartExamResponse struct {
	ResultID        string             `json:"result_id"`
	ExamID          string             `json:"exam_id"`
	Title           string             `json:"title"`
	DurationMinutes int                `json:"duration_minutes"`
	StartedAt       string             `json:"started_at"`
	Deadline        string             `json:"deadline"`
	Questions       []QuestionResponse `json:"questions"`
}

// SubmitExamRequest 交卷：question_id -> answer
type SubmitExamRequest struct {
	Answers map[string]string `json:"answers" binding:"required"`
}

// ExamResultResponse 考试成绩
type ExamResultResponse struct {
	ID               string  `json:"id"`
	ExamID           string  `json:"exam_id"`
	ExamTitle        string  `json:"exam_title,omitempty"`
	StudentID        string  `json:"student_id"`
	StudentName      string  `json:"student_name,omitempty"`
	Score            float64 `json:"score"`
	TotalPoints      float64 `json:"total_points"`
	Percentage       float64 `json:"percentage"`
	Passed           bool    `json:"passed"`
	TimeTakenSeconds int     `json:"time_taken_seconds"`
	Status           string  `json:"status"`
	StartedAt        string  `json:"started_at"`
	SubmittedAt      string  `json:"submitted_at,omitempty"`
}

// ExamStatsResponse 考试统计
type ExamStatsResponse struct {
	Count    int     `json:"count"`
	Average  float64 `json:"average"`
	Max      float64 `json:"max"`
	Min      float64 `json:"min"`
	PassRate float64 `json:"pass_rate"`
}
