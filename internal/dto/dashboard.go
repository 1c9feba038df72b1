package dto

// ── 仪表盘 DTO ──

// AdminDashboardResponse 管理员概览
type AdminDashboardResponse struct {
	UsersByRole map[string]int64 `json:"users_by_role"`
	Classes     int64            `json:"classes"`
	Homework    int64            `json:"homework"`
	Exams       int64            `json:"exams"`
}

// TeacherDashboardResponse 教师概览
type TeacherDashboardResponse struct {
	Classes             int            `json:"classes"`
	Students            int64          `json:"students"`
	TodayMarked         int            `json:"today_marked"`
	TodayAttendanceRate float64        `json:"today_attendance_rate"`
	PendingGrading      int64          `json:"pending_grading"`
	UpcomingExams       []ExamResponse `json:"upcoming_exams"`
}

// ChildOverview 家长视角：单个孩子概览
type ChildOverview struct {
	Student              StudentBrief `json:"student"`
	ClassName            string       `json:"class_name,omitempty"`
	AttendanceRate       float64      `json:"attendance_rate"` // 近 30 天
	PendingHomework      int          `json:"pending_homework"`
	LatestExamTitle      string       `json:"latest_exam_title,omitempty"`
	LatestExamPercentage *float64     `json:"latest_exam_percentage,omitempty"`
}

// ParentDashboardResponse 家长概览
type ParentDashboardResponse struct {
	Children []ChildOverview `json:"children"`
}
