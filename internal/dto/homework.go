package dto

// ── 作业模块 DTO ──

// CreateHomeworkRequest 布置作业（multipart 表单，附件字段为 files）
type CreateHomeworkRequest struct {
	ClassID     string `form:"class_id"    binding:"required,uuid"`
	Title       string `form:"title"       binding:"required,min=1,max=200"`
	Description string `form:"description" binding:"omitempty,max=5000"`
	Deadline    string `form:"deadline"    binding:"required"` // RFC3339
}

// UpdateHomeworkRequest 修改作业
type UpdateHomeworkRequest struct {
	Title       *string `json:"title"       binding:"omitempty,min=1,max=200"`
	Description *string `json:"description" binding:"omitempty,max=5000"`
	Deadline    *string `json:"deadline"`
}

// HomeworkListRequest 作业列表查询
type HomeworkListRequest struct {
	PaginationRequest
	ClassID string `form:"class_id" binding:"omitempty,uuid"`
}

// AttachmentResponse 附件
type AttachmentResponse struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// HomeworkResponse 作业信息
type HomeworkResponse struct {
	ID           string               `json:"id"`
	ClassID      string               `json:"class_id"`
	ClassName    string               `json:"class_name,omitempty"`
	TeacherID    string               `json:"teacher_id"`
	Title        string               `json:"title"`
	Description  string               `json:"description"`
	Deadline     string               `json:"deadline"`
	IsOverdue    bool                 `json:"is_overdue"`
	Attachments  []AttachmentResponse `json:"attachments"`
	MySubmission *SubmissionResponse  `json:"my_submission,omitempty"`
	CreatedAt    string               `json:"created_at"`
}

// SubmitHomeworkRequest 提交作业（multipart 表单，附件字段为 files）
type SubmitHomeworkRequest struct {
	Content string `form:"content" binding:"omitempty,max=10000"`
}

// SubmissionResponse 作业提交
type SubmissionResponse struct {
	ID          string               `json:"id"`
	HomeworkID  string               `json:"homework_id"`
	StudentID   string               `json:"student_id"`
	StudentName string               `json:"student_name,omitempty"`
	Content     string               `json:"content"`
	Attachments []AttachmentResponse `json:"attachments"`
	Status      string               `json:"status"`
	Grade       *float64             `json:"grade"`
	Feedback    string               `json:"feedback"`
	SubmittedAt string               `json:"submitted_at,omitempty"`
	GradedAt    string               `json:"graded_at,omitempty"`
}

// GradeSubmissionRequest 批改
type GradeSubmissionRequest struct {
	Grade    *float64 `json:"grade"    binding:"required,min=0,max=100"`
	Feedback string   `json:"feedback" binding:"omitempty,max=2000"`
}

// HomeworkProgressResponse 作业完成情况
type HomeworkProgressResponse struct {
	HomeworkID      string         `json:"homework_id"`
	RosterSize      int            `json:"roster_size"`
	Submitted       int            `json:"submitted"`
	Pending         int            `json:"pending"`
	Graded          int            `json:"graded"`
	Late            int            `json:"late"`
	Missing         int            `json:"missing"`
	SubmissionRate  float64        `json:"submission_rate"`
	PendingStudents []StudentBrief `json:"pending_students"`
}

// ChildHomeworkResponse 家长视角：某个孩子的作业
type ChildHomeworkResponse struct {
	Child    StudentBrief       `json:"child"`
	Homework []HomeworkResponse `json:"homework"`
}
