package dto

// ── 考勤模块 DTO ──

// AttendanceEntry 单个学生的考勤
type AttendanceEntry struct {
	StudentID string `json:"student_id" binding:"required,uuid"`
	Status    string `json:"status"     binding:"required,oneof=present absent late excused"`
	Notes     string `json:"notes"      binding:"omitempty,max=500"`
}

// MarkAttendanceRequest 批量录入某日考勤
type MarkAttendanceRequest struct {
	ClassID string            `json:"class_id" binding:"required,uuid"`
	Date    string            `json:"date"     binding:"required,ymd"`
	Entries []AttendanceEntry `json:"entries"  binding:"required,min=1,dive"`
}

// MarkAttendanceResponse 录入结果
type MarkAttendanceResponse struct {
	Date    string `json:"date"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Absent  int    `json:"absent"`
}

// AttendanceQuery 考勤查询参数
type AttendanceQuery struct {
	ClassID string `form:"class_id" binding:"required,uuid"`
	From    string `form:"from"     binding:"omitempty,ymd"`
	To      string `form:"to"       binding:"omitempty,ymd"`
	Status  string `form:"status"   binding:"omitempty,oneof=present absent late excused"`
}

// AttendanceExportQuery 导出参数
type AttendanceExportQuery struct {
	AttendanceQuery
	Format string `form:"format" binding:"omitempty,oneof=csv xlsx"`
}

// DeleteAttendanceByDateQuery 按日期删除
type DeleteAttendanceByDateQuery struct {
	ClassID string `form:"class_id" binding:"required,uuid"`
	Date    string `form:"date"     binding:"required,ymd"`
}

// UpdateAttendanceRequest 修改单条考勤
type UpdateAttendanceRequest struct {
	Status *string `json:"status" binding:"omitempty,oneof=present absent late excused"`
	Notes  *string `json:"notes"  binding:"omitempty,max=500"`
}

// AttendanceRecordResponse 考勤记录
type AttendanceRecordResponse struct {
	ID          string `json:"id"`
	ClassID     string `json:"class_id"`
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name,omitempty"`
	Date        string `json:"date"`
	Status      string `json:"status"`
	Notes       string `json:"notes"`
}

// AttendanceCounts 各状态计数
type AttendanceCounts struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
	Excused int `json:"excused"`
}

// AttendanceDayResponse 按天分组的考勤
type AttendanceDayResponse struct {
	Date    string                     `json:"date"`
	Counts  AttendanceCounts           `json:"counts"`
	Records []AttendanceRecordResponse `json:"records"`
}

// AttendanceSummaryResponse 考勤汇总
type AttendanceSummaryResponse struct {
	AttendanceCounts
	Rate float64 `json:"rate"` // (present+late)/total*100
}

// StudentAttendanceResponse 学生考勤历史
type StudentAttendanceResponse struct {
	Student StudentBrief               `json:"student"`
	Summary AttendanceSummaryResponse  `json:"summary"`
	Records []AttendanceRecordResponse `json:"records"`
}

// DeletedCountResponse 删除数量
type DeletedCountResponse struct {
	Deleted int64 `json:"deleted"`
}
